package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCDebugger/internal/client"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/config"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/logging"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/tracing"
)

// env carries what every command needs
type env struct {
	client *client.Client
	out    io.Writer
	format string
}

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	fs := flag.NewFlagSet("ipcctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", cfg.URL, "Server base URL")
	format := fs.String("o", "json", "Output format: json or yaml")
	verbose := fs.Bool("v", false, "Log requests and breaker changes to stderr")
	trace := fs.Bool("trace", false, "Send trace headers with every request")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(stderr, fs)
		return 2
	}
	if *format != "json" && *format != "yaml" {
		fmt.Fprintf(stderr, "unknown output format %q\n", *format)
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(stderr, fs)
		return 2
	}

	logger := logging.NewNop()
	if *verbose {
		logger = logging.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	opts := []client.Option{client.WithLogger(logger.Component("client"))}
	if *trace {
		tracer := tracing.New("ipcctl", logger.Component("tracing"))
		defer tracer.Close()
		opts = append(opts, client.WithTracer(tracer))
	}

	c := client.New(client.Config{
		BaseURL:      *url,
		Timeout:      cfg.Timeout,
		RetryMax:     cfg.RetryMax,
		RetryWaitMin: cfg.RetryWaitMin,
		RetryWaitMax: cfg.RetryWaitMax,
		RateLimit:    cfg.RateLimit,
	}, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{client: c, out: stdout, format: *format}
	if err := cmd.run(ctx, e, fs.Args()[1:]); err != nil {
		logger.Debug("Command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "usage: ipcctl %s\n", cmd.usage)
			return 2
		}
		return 1
	}
	return 0
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: ipcctl [flags] <command> [args]")
	fmt.Fprintln(w, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w, "\nFlags:")
	fs.PrintDefaults()
}

// print writes v in the selected output format
func (e *env) print(v any) error {
	if e.format == "yaml" {
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = e.out.Write(data)
		return err
	}
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.out, "%s\n", data)
	return err
}
