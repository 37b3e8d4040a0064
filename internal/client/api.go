package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/deadlock"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/orchestrator"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/scenario"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// ResourceRequest describes a resource to create
type ResourceRequest struct {
	Kind             string `json:"kind"`
	Name             string `json:"name,omitempty"`
	Capacity         int    `json:"capacity,omitempty"`
	Size             int    `json:"size,omitempty"`
	Mode             string `json:"mode,omitempty"`
	PriorityOrdering bool   `json:"priority_ordering,omitempty"`
	ExclusiveReads   bool   `json:"exclusive_reads,omitempty"`
	Timeout          string `json:"timeout,omitempty"`
}

// OpRequest is the body of a per-resource operation. Data travels base64
// encoded so arbitrary bytes survive the round trip.
type OpRequest struct {
	Actor    id.ActorID `json:"actor"`
	Data     string     `json:"data,omitempty"`
	Encoding string     `json:"encoding,omitempty"`
	Size     int        `json:"size,omitempty"`
	Offset   int        `json:"offset,omitempty"`
	Priority int        `json:"priority,omitempty"`
	Mode     string     `json:"mode,omitempty"`
	Role     string     `json:"role,omitempty"`
	Timeout  string     `json:"timeout,omitempty"`
	Async    bool       `json:"async,omitempty"`
}

// SetData stores b base64 encoded
func (r *OpRequest) SetData(b []byte) {
	r.Data = base64.StdEncoding.EncodeToString(b)
	r.Encoding = "base64"
}

// MessageView is a dequeued message as returned by the server
type MessageView struct {
	Payload    string     `json:"payload"`
	Priority   int        `json:"priority"`
	Seq        uint64     `json:"seq"`
	Sender     id.ActorID `json:"sender"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// OpResult is the union of every operation response
type OpResult struct {
	Pending    bool         `json:"pending"`
	Cursor     uint64       `json:"cursor"`
	Written    int          `json:"written"`
	Data       string       `json:"data"`
	Size       int          `json:"size"`
	Generation uint64       `json:"generation"`
	Message    *MessageView `json:"message"`
}

// Bytes decodes Data, which the server encodes the way the request asked
func (r *OpResult) Bytes(req OpRequest) ([]byte, error) {
	if req.Encoding == "base64" {
		return base64.StdEncoding.DecodeString(r.Data)
	}
	return []byte(r.Data), nil
}

// GraphView is the waits-for graph as served
type GraphView struct {
	Graph struct {
		AsOf  uint64          `json:"as_of"`
		Edges []deadlock.Edge `json:"edges"`
	} `json:"graph"`
	Actors []id.ActorID `json:"actors"`
}

// EventPage is one page of the event log
type EventPage struct {
	Events []events.Entry `json:"events"`
	Count  int            `json:"count"`
	First  uint64         `json:"first"`
	Last   uint64         `json:"last"`
	Next   uint64         `json:"next"`
}

// EventQuery selects log entries
type EventQuery struct {
	From     uint64
	Limit    int
	Kind     string
	Actor    id.ActorID
	Resource id.ResourceID
}

func (q EventQuery) params() map[string]string {
	p := map[string]string{}
	if q.From > 0 {
		p["from"] = strconv.FormatUint(q.From, 10)
	}
	if q.Limit > 0 {
		p["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Kind != "" {
		p["kind"] = q.Kind
	}
	if q.Actor != 0 {
		p["actor"] = q.Actor.String()
	}
	if q.Resource != 0 {
		p["resource"] = q.Resource.String()
	}
	return p
}

// Health reports server liveness
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.call(ctx, http.MethodGet, "/health", nil, &out, nil)
	return out, err
}

// CreateActor registers an actor
func (c *Client) CreateActor(ctx context.Context, name string) (orchestrator.ActorInfo, error) {
	var out struct {
		Actor orchestrator.ActorInfo `json:"actor"`
	}
	err := c.call(ctx, http.MethodPost, "/actors", map[string]string{"name": name}, &out, nil)
	return out.Actor, err
}

// Actors lists every actor
func (c *Client) Actors(ctx context.Context) ([]orchestrator.ActorInfo, error) {
	var out struct {
		Actors []orchestrator.ActorInfo `json:"actors"`
	}
	err := c.call(ctx, http.MethodGet, "/actors", nil, &out, nil)
	return out.Actors, err
}

// Actor returns one actor
func (c *Client) Actor(ctx context.Context, actor id.ActorID) (orchestrator.ActorInfo, error) {
	var out struct {
		Actor orchestrator.ActorInfo `json:"actor"`
	}
	err := c.call(ctx, http.MethodGet, "/actors/"+actor.String(), nil, &out, nil)
	return out.Actor, err
}

// DestroyActor terminates an actor
func (c *Client) DestroyActor(ctx context.Context, actor id.ActorID) error {
	return c.call(ctx, http.MethodDelete, "/actors/"+actor.String(), nil, nil, nil)
}

// CreateResource creates a resource
func (c *Client) CreateResource(ctx context.Context, req ResourceRequest) (ipc.ResourceState, error) {
	var out struct {
		Resource ipc.ResourceState `json:"resource"`
	}
	err := c.call(ctx, http.MethodPost, "/resources", req, &out, nil)
	return out.Resource, err
}

// Resources lists resources, optionally of one kind
func (c *Client) Resources(ctx context.Context, kind string) ([]ipc.ResourceState, error) {
	var out struct {
		Resources []ipc.ResourceState `json:"resources"`
	}
	var query map[string]string
	if kind != "" {
		query = map[string]string{"kind": kind}
	}
	err := c.call(ctx, http.MethodGet, "/resources", nil, &out, query)
	return out.Resources, err
}

// Resource returns one resource's state
func (c *Client) Resource(ctx context.Context, rid id.ResourceID) (ipc.ResourceState, error) {
	var out struct {
		Resource ipc.ResourceState `json:"resource"`
	}
	err := c.call(ctx, http.MethodGet, "/resources/"+rid.String(), nil, &out, nil)
	return out.Resource, err
}

// DestroyResource removes a resource
func (c *Client) DestroyResource(ctx context.Context, rid id.ResourceID, force bool) error {
	return c.call(ctx, http.MethodDelete, "/resources/"+rid.String(), nil, nil,
		map[string]string{"force": strconv.FormatBool(force)})
}

// Size returns a queue's length
func (c *Client) Size(ctx context.Context, rid id.ResourceID) (int, error) {
	var out struct {
		Size int `json:"size"`
	}
	err := c.call(ctx, http.MethodGet, "/resources/"+rid.String()+"/size", nil, &out, nil)
	return out.Size, err
}

// Close closes a pipe or queue
func (c *Client) Close(ctx context.Context, rid id.ResourceID) error {
	return c.call(ctx, http.MethodPost, "/resources/"+rid.String()+"/close", nil, nil, nil)
}

// Op runs any per-resource operation: attach, detach, write, read, put,
// get, acquire, release, write-bytes or read-bytes
func (c *Client) Op(ctx context.Context, rid id.ResourceID, op string, req OpRequest) (*OpResult, error) {
	var out OpResult
	if err := c.call(ctx, http.MethodPost, fmt.Sprintf("/resources/%s/%s", rid, op), req, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Write writes data into a pipe, blocking until it fits
func (c *Client) Write(ctx context.Context, actor id.ActorID, rid id.ResourceID, data []byte) error {
	req := OpRequest{Actor: actor}
	req.SetData(data)
	_, err := c.Op(ctx, rid, "write", req)
	return err
}

// Read reads up to n bytes from a pipe
func (c *Client) Read(ctx context.Context, actor id.ActorID, rid id.ResourceID, n int) ([]byte, error) {
	req := OpRequest{Actor: actor, Size: n, Encoding: "base64"}
	res, err := c.Op(ctx, rid, "read", req)
	if err != nil {
		return nil, err
	}
	return res.Bytes(req)
}

// Put enqueues a message
func (c *Client) Put(ctx context.Context, actor id.ActorID, rid id.ResourceID, payload []byte, priority int) error {
	req := OpRequest{Actor: actor, Priority: priority}
	req.SetData(payload)
	_, err := c.Op(ctx, rid, "put", req)
	return err
}

// Get dequeues the next message
func (c *Client) Get(ctx context.Context, actor id.ActorID, rid id.ResourceID) (ipc.Message, error) {
	res, err := c.Op(ctx, rid, "get", OpRequest{Actor: actor, Encoding: "base64"})
	if err != nil {
		return ipc.Message{}, err
	}
	if res.Message == nil {
		return ipc.Message{}, fmt.Errorf("get on %s: response carried no message", rid)
	}
	payload, err := base64.StdEncoding.DecodeString(res.Message.Payload)
	if err != nil {
		return ipc.Message{}, err
	}
	return ipc.Message{
		Payload:    payload,
		Priority:   res.Message.Priority,
		Seq:        res.Message.Seq,
		Sender:     res.Message.Sender,
		EnqueuedAt: res.Message.EnqueuedAt,
	}, nil
}

// Acquire takes a lock or shared memory segment
func (c *Client) Acquire(ctx context.Context, actor id.ActorID, rid id.ResourceID, mode ipc.Mode) error {
	req := OpRequest{Actor: actor}
	if mode != 0 {
		req.Mode = mode.String()
	}
	_, err := c.Op(ctx, rid, "acquire", req)
	return err
}

// Release releases a lock or shared memory segment
func (c *Client) Release(ctx context.Context, actor id.ActorID, rid id.ResourceID) error {
	_, err := c.Op(ctx, rid, "release", OpRequest{Actor: actor})
	return err
}

// WriteBytes writes into a held shared memory segment
func (c *Client) WriteBytes(ctx context.Context, actor id.ActorID, rid id.ResourceID, offset int, data []byte) error {
	req := OpRequest{Actor: actor, Offset: offset}
	req.SetData(data)
	_, err := c.Op(ctx, rid, "write-bytes", req)
	return err
}

// ReadBytes reads from a held shared memory segment
func (c *Client) ReadBytes(ctx context.Context, actor id.ActorID, rid id.ResourceID, offset, n int) ([]byte, uint64, error) {
	req := OpRequest{Actor: actor, Offset: offset, Size: n, Encoding: "base64"}
	res, err := c.Op(ctx, rid, "read-bytes", req)
	if err != nil {
		return nil, 0, err
	}
	data, err := res.Bytes(req)
	return data, res.Generation, err
}

// Attach registers actor as a pipe or queue endpoint
func (c *Client) Attach(ctx context.Context, actor id.ActorID, rid id.ResourceID, role ipc.Mode) error {
	_, err := c.Op(ctx, rid, "attach", OpRequest{Actor: actor, Role: role.String()})
	return err
}

// Detach removes actor's endpoint
func (c *Client) Detach(ctx context.Context, actor id.ActorID, rid id.ResourceID) error {
	_, err := c.Op(ctx, rid, "detach", OpRequest{Actor: actor})
	return err
}

// RunDetector runs detection once on the server
func (c *Client) RunDetector(ctx context.Context) ([]deadlock.Report, error) {
	var out struct {
		Deadlocks []deadlock.Report `json:"deadlocks"`
	}
	err := c.call(ctx, http.MethodPost, "/detector/run", nil, &out, nil)
	return out.Deadlocks, err
}

// Deadlocks returns the last n reports, newest first (n <= 0 for all)
func (c *Client) Deadlocks(ctx context.Context, n int) ([]deadlock.Report, error) {
	var out struct {
		Deadlocks []deadlock.Report `json:"deadlocks"`
	}
	var query map[string]string
	if n > 0 {
		query = map[string]string{"limit": strconv.Itoa(n)}
	}
	err := c.call(ctx, http.MethodGet, "/deadlocks", nil, &out, query)
	return out.Deadlocks, err
}

// Graph returns the current waits-for graph
func (c *Client) Graph(ctx context.Context) (*GraphView, error) {
	var out GraphView
	if err := c.call(ctx, http.MethodGet, "/graph", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns the simulation summary
func (c *Client) Stats(ctx context.Context) (orchestrator.Stats, error) {
	var out struct {
		Stats orchestrator.Stats `json:"stats"`
	}
	err := c.call(ctx, http.MethodGet, "/stats", nil, &out, nil)
	return out.Stats, err
}

// Snapshot returns a consistent copy of every resource
func (c *Client) Snapshot(ctx context.Context) (ipc.Snapshot, error) {
	var out struct {
		Snapshot ipc.Snapshot `json:"snapshot"`
	}
	err := c.call(ctx, http.MethodGet, "/snapshot", nil, &out, nil)
	return out.Snapshot, err
}

// Events returns one page of the event log
func (c *Client) Events(ctx context.Context, q EventQuery) (*EventPage, error) {
	var out EventPage
	if err := c.call(ctx, http.MethodGet, "/events", nil, &out, q.params()); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportEvents streams an event export in format ("json" or "yaml") with
// optional compression ("gzip" or "zstd") into w
func (c *Client) ExportEvents(ctx context.Context, q EventQuery, format, compress string, w io.Writer) error {
	params := q.params()
	if format != "" {
		params["format"] = format
	}
	if compress != "" {
		params["compress"] = compress
	}
	return c.download(ctx, "/events/export", params, w)
}

// Scenarios lists runnable scenario names
func (c *Client) Scenarios(ctx context.Context) ([]string, error) {
	var out struct {
		Scenarios []string `json:"scenarios"`
	}
	err := c.call(ctx, http.MethodGet, "/scenarios", nil, &out, nil)
	return out.Scenarios, err
}

// ScenarioRequest tunes a scenario run
type ScenarioRequest struct {
	Params scenario.Params `json:"params,omitempty"`
	Keep   bool            `json:"keep,omitempty"`
	Settle string          `json:"settle,omitempty"`
}

// RunScenario plays a scenario on the server and returns its result
func (c *Client) RunScenario(ctx context.Context, name string, req ScenarioRequest) (*scenario.Result, error) {
	var out struct {
		Result scenario.Result `json:"result"`
	}
	if err := c.call(ctx, http.MethodPost, "/scenarios/"+name, req, &out, nil); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// Reset clears the whole simulation
func (c *Client) Reset(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/reset", nil, nil, nil)
}
