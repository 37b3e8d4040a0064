package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/orchestrator"
	"github.com/GriffinCanCode/IPCDebugger/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

const (
	DefaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxMessageSize      = 4096
	backlog             = 64
)

var errShutdown = errors.New("stream handler closed")

// Message is the envelope of everything sent or received on the stream
type Message struct {
	Type      string        `json:"type"`
	Event     *events.Entry `json:"event,omitempty"`
	Cursor    uint64        `json:"cursor,omitempty"`
	Dropped   uint64        `json:"dropped,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// Filter selects the entries a client receives. Zero fields match anything.
type Filter struct {
	Kind     events.Kind
	Actor    id.ActorID
	Resource id.ResourceID
}

// Match reports whether e passes the filter
func (f Filter) Match(e events.Entry) bool {
	return (f.Kind == "" || e.Kind == f.Kind) &&
		(f.Actor == 0 || e.Actor == f.Actor) &&
		(f.Resource == 0 || e.Resource == f.Resource)
}

// Option configures a Handler
type Option func(*Handler)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) { h.logger = log }
}

// WithMetrics records connections and messages
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithPingInterval sets the keep-alive interval
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithCheckOrigin replaces the upgrader's origin check
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// Handler manages event stream connections
type Handler struct {
	orch         *orchestrator.Orchestrator
	logger       *zap.Logger
	metrics      *monitoring.Metrics
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	done chan struct{}
	once sync.Once
}

// NewHandler creates a new WebSocket handler
func NewHandler(orch *orchestrator.Orchestrator, opts ...Option) *Handler {
	h := &Handler{
		orch:         orch,
		logger:       zap.NewNop(),
		pingInterval: DefaultPingInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS middleware guards the origin
			},
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close ends every open stream with a going-away close frame
func (h *Handler) Close() {
	h.once.Do(func() { close(h.done) })
}

// parseQuery reads the starting cursor and the filter. Without ?from= the
// stream follows only new entries.
func (h *Handler) parseQuery(c *gin.Context) (uint64, Filter, error) {
	var f Filter
	from := h.orch.Log().Last() + 1
	if s, ok := c.GetQuery("from"); ok {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, f, fmt.Errorf("invalid from: %w", err)
		}
		from = n
	}
	f.Kind = events.Kind(c.Query("kind"))
	var err error
	if s := c.Query("actor"); s != "" {
		if f.Actor, err = id.ParseActorID(s); err != nil {
			return 0, f, err
		}
	}
	if s := c.Query("resource"); s != "" {
		if f.Resource, err = id.ParseResourceID(s); err != nil {
			return 0, f, err
		}
	}
	return from, f, nil
}

// HandleConnection handles WebSocket upgrade and streams the log
func (h *Handler) HandleConnection(c *gin.Context) {
	from, filter, err := h.parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "kind": "InvalidArgument"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	sub := h.orch.Subscribe(from)
	log := h.logger.With(zap.String("subscription", sub.ID.String()), zap.String("remote", c.ClientIP()))
	log.Debug("Stream opened", zap.Uint64("from", sub.Cursor()))

	g, ctx := errgroup.WithContext(c.Request.Context())
	feed := make(chan Message, backlog)
	replies := make(chan Message, 4)

	g.Go(func() error { return h.pump(ctx, sub, filter, feed) })
	g.Go(func() error { return h.readLoop(ctx, conn, replies) })
	g.Go(func() error { return h.writeLoop(ctx, conn, sub.Cursor(), feed, replies) })
	g.Go(func() error {
		<-ctx.Done()
		return conn.Close()
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, errShutdown) && !isClose(err) {
		log.Debug("Stream ended", zap.Error(err))
	}
	log.Debug("Stream closed", zap.Uint64("cursor", sub.Cursor()), zap.Uint64("dropped", sub.Dropped()))
}

// pump follows the subscription and forwards matching entries
func (h *Handler) pump(ctx context.Context, sub *events.Subscription, filter Filter, feed chan<- Message) error {
	var reported uint64
	for {
		e, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		if d := sub.Dropped(); d > reported {
			msg := Message{Type: "dropped", Dropped: d - reported, Cursor: e.Seq, Timestamp: time.Now().Unix()}
			reported = d
			if err := forward(ctx, feed, msg); err != nil {
				return err
			}
		}
		if !filter.Match(e) {
			continue
		}
		if err := forward(ctx, feed, Message{Type: "event", Event: &e, Timestamp: e.Time.Unix()}); err != nil {
			return err
		}
	}
}

func forward(ctx context.Context, ch chan<- Message, msg Message) error {
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop handles client messages and keep-alive pongs
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, replies chan<- Message) error {
	wait := 2 * h.pingInterval
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		h.metrics.RecordWSMessage("in", msg.Type)

		reply := Message{Type: "pong", Timestamp: time.Now().Unix()}
		if msg.Type != "ping" {
			reply = Message{Type: "error", Message: fmt.Sprintf("unknown message type %q", msg.Type), Timestamp: time.Now().Unix()}
		}
		if err := forward(ctx, replies, reply); err != nil {
			return err
		}
	}
}

// writeLoop is the connection's only writer
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, cursor uint64, feed, replies <-chan Message) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	if err := h.send(conn, Message{Type: "system", Message: "Connected to IPC debugger event stream", Cursor: cursor, Timestamp: time.Now().Unix()}); err != nil {
		return err
	}

	for {
		select {
		case msg := <-feed:
			if err := h.send(conn, msg); err != nil {
				return err
			}
		case msg := <-replies:
			if err := h.send(conn, msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return errShutdown
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	h.metrics.RecordWSMessage("out", msg.Type)
	return nil
}

func isClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, context.Canceled)
}
