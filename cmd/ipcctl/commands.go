package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/IPCDebugger/internal/client"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/scenario"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

var errUsage = errors.New("invalid arguments")

var commands map[string]command

func init() {
	commands = map[string]command{
		"health":    {"health", health},
		"actor":     {"actor create NAME | list | get ID | destroy ID", actor},
		"resource":  {"resource create -kind K [-name N] [-capacity N] [-size N] [-mode M] [-priority] [-exclusive-reads] [-timeout D] | list [-kind K] | get ID | destroy ID [-force] | size ID | close ID", resource},
		"op":        {"op OP RESOURCE -actor ID [-data S] [-base64] [-size N] [-offset N] [-priority N] [-mode M] [-role R] [-timeout D] [-async]", op},
		"detect":    {"detect", detect},
		"deadlocks": {"deadlocks [-n N]", deadlocks},
		"graph":     {"graph", graph},
		"stats":     {"stats", stats},
		"snapshot":  {"snapshot", snapshot},
		"events":    {"events [-from N] [-limit N] [-kind K] [-actor ID] [-resource ID]", listEvents},
		"export":    {"export [-format json|yaml] [-compress none|gzip|zstd] [-out FILE] [-from N] [-limit N] [-kind K]", exportEvents},
		"scenarios": {"scenarios", scenarios},
		"run":       {"run NAME [-param key=value]... [-settle D] [-keep]", runScenario},
		"reset":     {"reset", reset},
	}
}

// split separates n leading positional arguments from the flags after them
func split(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if len(args) < n {
		return nil, errUsage
	}
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args[n:]); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected %q", errUsage, fs.Arg(0))
	}
	return args[:n], nil
}

func health(ctx context.Context, e *env, _ []string) error {
	h, err := e.client.Health(ctx)
	if err != nil {
		return err
	}
	return e.print(h)
}

func actor(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "create":
		if len(args) != 2 {
			return errUsage
		}
		a, err := e.client.CreateActor(ctx, args[1])
		if err != nil {
			return err
		}
		return e.print(a)
	case "list":
		actors, err := e.client.Actors(ctx)
		if err != nil {
			return err
		}
		return e.print(actors)
	case "get", "destroy":
		if len(args) != 2 {
			return errUsage
		}
		aid, err := id.ParseActorID(args[1])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if args[0] == "destroy" {
			return e.client.DestroyActor(ctx, aid)
		}
		a, err := e.client.Actor(ctx, aid)
		if err != nil {
			return err
		}
		return e.print(a)
	}
	return errUsage
}

func resource(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := flag.NewFlagSet("resource", flag.ContinueOnError)
	switch args[0] {
	case "create":
		var req client.ResourceRequest
		fs.StringVar(&req.Kind, "kind", "", "pipe, queue, shm or lock")
		fs.StringVar(&req.Name, "name", "", "Display name")
		fs.IntVar(&req.Capacity, "capacity", 0, "Pipe or queue capacity")
		fs.IntVar(&req.Size, "size", 0, "Shared memory size")
		fs.StringVar(&req.Mode, "mode", "", "Lock mode")
		fs.BoolVar(&req.PriorityOrdering, "priority", false, "Serve queue messages by priority")
		fs.BoolVar(&req.ExclusiveReads, "exclusive-reads", false, "Shared memory readers exclude each other")
		fs.StringVar(&req.Timeout, "timeout", "", "Default operation timeout")
		if _, err := split(fs, args, 1); err != nil {
			return err
		}
		if req.Kind == "" {
			return fmt.Errorf("%w: -kind is required", errUsage)
		}
		st, err := e.client.CreateResource(ctx, req)
		if err != nil {
			return err
		}
		return e.print(st)
	case "list":
		kind := fs.String("kind", "", "Only resources of this kind")
		if _, err := split(fs, args, 1); err != nil {
			return err
		}
		list, err := e.client.Resources(ctx, *kind)
		if err != nil {
			return err
		}
		return e.print(list)
	}

	force := fs.Bool("force", false, "Destroy even while held or waited on")
	pos, err := split(fs, args, 2)
	if err != nil {
		return err
	}
	rid, err := id.ParseResourceID(pos[1])
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	switch pos[0] {
	case "get":
		st, err := e.client.Resource(ctx, rid)
		if err != nil {
			return err
		}
		return e.print(st)
	case "destroy":
		return e.client.DestroyResource(ctx, rid, *force)
	case "size":
		n, err := e.client.Size(ctx, rid)
		if err != nil {
			return err
		}
		return e.print(map[string]int{"size": n})
	case "close":
		return e.client.Close(ctx, rid)
	}
	return errUsage
}

var opNames = map[string]bool{
	"write": true, "read": true, "put": true, "get": true,
	"acquire": true, "release": true, "write-bytes": true, "read-bytes": true,
	"attach": true, "detach": true,
}

func op(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("op", flag.ContinueOnError)
	var req client.OpRequest
	actorFlag := fs.String("actor", "", "Acting actor ID")
	b64 := fs.Bool("base64", false, "Data is base64 and results are returned base64")
	fs.StringVar(&req.Data, "data", "", "Payload")
	fs.IntVar(&req.Size, "size", 0, "Bytes to read")
	fs.IntVar(&req.Offset, "offset", 0, "Shared memory offset")
	fs.IntVar(&req.Priority, "priority", 0, "Message priority")
	fs.StringVar(&req.Mode, "mode", "", "Access mode: read or write")
	fs.StringVar(&req.Role, "role", "", "Pipe role: read or write")
	fs.StringVar(&req.Timeout, "timeout", "", "Give up after this long")
	fs.BoolVar(&req.Async, "async", false, "Return once the operation parks")

	pos, err := split(fs, args, 2)
	if err != nil {
		return err
	}
	if !opNames[pos[0]] {
		return fmt.Errorf("%w: unknown operation %q", errUsage, pos[0])
	}
	rid, err := id.ParseResourceID(pos[1])
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if req.Actor, err = id.ParseActorID(*actorFlag); err != nil {
		return fmt.Errorf("%w: -actor: %v", errUsage, err)
	}
	if *b64 {
		req.Encoding = "base64"
	}

	res, err := e.client.Op(ctx, rid, pos[0], req)
	if err != nil {
		return err
	}
	return e.print(res)
}

func detect(ctx context.Context, e *env, _ []string) error {
	reports, err := e.client.RunDetector(ctx)
	if err != nil {
		return err
	}
	return e.print(reports)
}

func deadlocks(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("deadlocks", flag.ContinueOnError)
	n := fs.Int("n", 0, "Most recent N reports (0 = all retained)")
	if _, err := split(fs, args, 0); err != nil {
		return err
	}
	reports, err := e.client.Deadlocks(ctx, *n)
	if err != nil {
		return err
	}
	return e.print(reports)
}

func graph(ctx context.Context, e *env, _ []string) error {
	g, err := e.client.Graph(ctx)
	if err != nil {
		return err
	}
	return e.print(g)
}

func stats(ctx context.Context, e *env, _ []string) error {
	s, err := e.client.Stats(ctx)
	if err != nil {
		return err
	}
	return e.print(s)
}

func snapshot(ctx context.Context, e *env, _ []string) error {
	s, err := e.client.Snapshot(ctx)
	if err != nil {
		return err
	}
	return e.print(s)
}

func eventFlags(fs *flag.FlagSet) func() (client.EventQuery, error) {
	from := fs.Uint64("from", 0, "First sequence number")
	limit := fs.Int("limit", 0, "Maximum entries")
	kind := fs.String("kind", "", "Only this event kind")
	actorFlag := fs.String("actor", "", "Only events of this actor")
	resourceFlag := fs.String("resource", "", "Only events on this resource")
	return func() (client.EventQuery, error) {
		q := client.EventQuery{From: *from, Limit: *limit, Kind: *kind}
		var err error
		if *actorFlag != "" {
			if q.Actor, err = id.ParseActorID(*actorFlag); err != nil {
				return q, fmt.Errorf("%w: -actor: %v", errUsage, err)
			}
		}
		if *resourceFlag != "" {
			if q.Resource, err = id.ParseResourceID(*resourceFlag); err != nil {
				return q, fmt.Errorf("%w: -resource: %v", errUsage, err)
			}
		}
		return q, nil
	}
}

func listEvents(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	query := eventFlags(fs)
	if _, err := split(fs, args, 0); err != nil {
		return err
	}
	q, err := query()
	if err != nil {
		return err
	}
	page, err := e.client.Events(ctx, q)
	if err != nil {
		return err
	}
	return e.print(page)
}

func exportEvents(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	query := eventFlags(fs)
	format := fs.String("format", "json", "json or yaml")
	compress := fs.String("compress", "", "none, gzip or zstd")
	out := fs.String("out", "", "Write to this file instead of stdout")
	if _, err := split(fs, args, 0); err != nil {
		return err
	}
	q, err := query()
	if err != nil {
		return err
	}

	w := e.out
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return e.client.ExportEvents(ctx, q, *format, *compress, w)
}

func scenarios(ctx context.Context, e *env, _ []string) error {
	names, err := e.client.Scenarios(ctx)
	if err != nil {
		return err
	}
	return e.print(names)
}

// paramList collects repeated -param key=value flags
type paramList scenario.Params

func (p paramList) String() string { return fmt.Sprint(map[string]int(p)) }

func (p paramList) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("want key=value, got %q", v)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("param %s: %w", key, err)
	}
	p[key] = n
	return nil
}

func runScenario(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	params := paramList{}
	var req client.ScenarioRequest
	fs.Var(params, "param", "Scenario parameter key=value (repeatable)")
	fs.StringVar(&req.Settle, "settle", "", "How long to let actors park before detection")
	fs.BoolVar(&req.Keep, "keep", false, "Leave actors and resources in place afterwards")
	pos, err := split(fs, args, 1)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		req.Params = scenario.Params(params)
	}

	res, err := e.client.RunScenario(ctx, pos[0], req)
	if err != nil {
		return err
	}
	return e.print(res)
}

func reset(ctx context.Context, e *env, _ []string) error {
	return e.client.Reset(ctx)
}
