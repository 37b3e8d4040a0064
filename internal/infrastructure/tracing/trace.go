package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Propagation headers.
const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"
)

const spanBuffer = 1024

type (
	TraceID string
	SpanID  string
)

// Span times one API call. It is owned by the goroutine that started it
// until End hands it to the tracer.
type Span struct {
	TraceID  TraceID
	SpanID   SpanID
	ParentID SpanID
	Name     string
	Start    time.Time
	Duration time.Duration
	Status   int
	Err      error

	attrs  []zap.Field
	tracer *Tracer
}

// Attr attaches a string attribute.
func (s *Span) Attr(key, value string) {
	s.attrs = append(s.attrs, zap.String(key, value))
}

// Fail records err. A span without a status is then treated as a 500.
func (s *Span) Fail(err error) {
	s.Err = err
}

// End stamps the duration and status and queues the span for logging.
func (s *Span) End(status int) {
	s.Duration = time.Since(s.Start)
	if status == 0 && s.Err != nil {
		status = http.StatusInternalServerError
	}
	s.Status = status
	s.tracer.submit(s)
}

// Tracer logs finished spans from a background goroutine so request paths
// never block on the log sink.
type Tracer struct {
	service string
	logger  *zap.Logger
	queue   chan *Span

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a tracer for service.
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger.With(zap.String("service", service)),
		queue:   make(chan *Span, spanBuffer),
	}
	t.wg.Add(1)
	go t.drain()
	return t
}

// Start opens a span named name. It joins the trace carried by ctx or
// starts a new one, and returns ctx updated to point at the new span.
func (t *Tracer) Start(ctx context.Context, name string) (context.Context, *Span) {
	parent := fromContext(ctx)
	if parent.trace == "" {
		parent.trace = TraceID(id.Default().GenerateWithPrefix("tr"))
	}
	s := &Span{
		TraceID:  parent.trace,
		SpanID:   SpanID(id.Default().GenerateWithPrefix("sp")),
		ParentID: parent.span,
		Name:     name,
		Start:    time.Now(),
		tracer:   t,
	}
	return withSpanContext(ctx, spanContext{trace: s.TraceID, span: s.SpanID}), s
}

// Close stops accepting spans and waits for queued ones to be logged.
func (t *Tracer) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracer) submit(s *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- s:
	default:
		t.logger.Warn("Span queue full, dropping span",
			zap.String("trace_id", string(s.TraceID)),
			zap.String("name", s.Name))
	}
}

func (t *Tracer) drain() {
	defer t.wg.Done()
	for s := range t.queue {
		t.log(s)
	}
}

func (t *Tracer) log(s *Span) {
	fields := make([]zap.Field, 0, 6+len(s.attrs))
	fields = append(fields,
		zap.String("trace_id", string(s.TraceID)),
		zap.String("span_id", string(s.SpanID)),
		zap.String("name", s.Name),
		zap.Duration("duration", s.Duration),
		zap.Int("status", s.Status),
	)
	if s.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(s.ParentID)))
	}
	fields = append(fields, s.attrs...)

	if s.Err != nil || s.Status >= http.StatusInternalServerError {
		t.logger.Warn("Span failed", append(fields, zap.Error(s.Err))...)
		return
	}
	t.logger.Debug("Span finished", fields...)
}

type spanContext struct {
	trace TraceID
	span  SpanID
}

type ctxKey struct{}

func withSpanContext(ctx context.Context, sc spanContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

func fromContext(ctx context.Context) spanContext {
	sc, _ := ctx.Value(ctxKey{}).(spanContext)
	return sc
}

// WithTraceID returns ctx joined to an existing trace.
func WithTraceID(ctx context.Context, trace TraceID) context.Context {
	sc := fromContext(ctx)
	sc.trace = trace
	return withSpanContext(ctx, sc)
}

// TraceIDFrom returns the trace ctx belongs to, or "".
func TraceIDFrom(ctx context.Context) TraceID {
	return fromContext(ctx).trace
}

// SpanIDFrom returns the innermost span of ctx, or "".
func SpanIDFrom(ctx context.Context) SpanID {
	return fromContext(ctx).span
}

// Inject copies the trace context of ctx into outgoing headers.
func Inject(ctx context.Context, h http.Header) {
	sc := fromContext(ctx)
	if sc.trace != "" {
		h.Set(TraceHeader, string(sc.trace))
	}
	if sc.span != "" {
		h.Set(SpanHeader, string(sc.span))
	}
}

// Extract returns ctx joined to the trace named in incoming headers.
func Extract(ctx context.Context, h http.Header) context.Context {
	sc := spanContext{trace: TraceID(h.Get(TraceHeader)), span: SpanID(h.Get(SpanHeader))}
	if sc.trace == "" {
		return ctx
	}
	return withSpanContext(ctx, sc)
}
