// Package id provides centralized ID generation for the debugger.
//
// Two families of identifiers are used:
//   - Sequential IDs for actors and resources. They are small, strictly
//     increasing and never reused, which gives the deadlock detector a fixed
//     iteration order and keeps log lines readable.
//   - Prefixed ULIDs for reports and subscriptions. They are K-sortable, so
//     report history can be ordered without a separate timestamp.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// ActorID identifies a simulated thread or process
type ActorID uint64

// ResourceID identifies a pipe, queue, shared memory segment or lock
type ResourceID uint64

// ReportID identifies a deadlock report
type ReportID string

// SubscriptionID identifies an event log subscription
type SubscriptionID string

const (
	ReportPrefix       = "dl"
	SubscriptionPrefix = "sub"
)

// String methods for ID types
func (id ActorID) String() string        { return "a" + strconv.FormatUint(uint64(id), 10) }
func (id ResourceID) String() string     { return "r" + strconv.FormatUint(uint64(id), 10) }
func (id ReportID) String() string       { return string(id) }
func (id SubscriptionID) String() string { return string(id) }

// ============================================================================
// Sequences
// ============================================================================

// Sequence hands out strictly increasing IDs starting at 1
type Sequence struct {
	last atomic.Uint64
}

// Next returns the next value of the sequence
func (s *Sequence) Next() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently issued value, or 0
func (s *Sequence) Last() uint64 {
	return s.last.Load()
}

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewReportID generates a new deadlock report ID
func NewReportID() ReportID {
	return ReportID(Default().GenerateWithPrefix(ReportPrefix))
}

// NewSubscriptionID generates a new subscription ID
func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(Default().GenerateWithPrefix(SubscriptionPrefix))
}

// IsValid checks if an ID string is a valid ULID, with or without a prefix
func IsValid(id string) bool {
	_, err := ulid.Parse(stripPrefix(id))
	return err == nil
}

// Timestamp extracts the timestamp from a ULID, with or without a prefix
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(stripPrefix(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// ParseActorID parses the numeric or "a"-prefixed form of an actor ID
func ParseActorID(s string) (ActorID, error) {
	n, err := parseSeq(s, 'a')
	return ActorID(n), err
}

// ParseResourceID parses the numeric or "r"-prefixed form of a resource ID
func ParseResourceID(s string) (ResourceID, error) {
	n, err := parseSeq(s, 'r')
	return ResourceID(n), err
}

func parseSeq(s string, prefix byte) (uint64, error) {
	if len(s) > 0 && s[0] == prefix {
		s = s[1:]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return n, nil
}

func stripPrefix(id string) string {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}
