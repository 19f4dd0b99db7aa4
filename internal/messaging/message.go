// Package messaging defines the immutable command/event value types flowing
// through the execution engine, and the FIFO queue carrying them.
package messaging

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Category discriminates the two message families.
type Category string

const (
	CategoryCommand Category = "COMMAND"
	CategoryEvent   Category = "EVENT"
)

// MessageID is a globally unique, lexicographically sortable message
// identifier. IDs generated by one process are strictly monotonic even within
// the same millisecond.
type MessageID struct {
	value ulid.ULID
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID generates a fresh identifier stamped with ts.
func NewMessageID(ts time.Time) MessageID {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return MessageID{value: ulid.MustNew(ulid.Timestamp(ts), entropy)}
}

// ParseMessageID parses the canonical string form of a MessageID.
func ParseMessageID(s string) (MessageID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return MessageID{}, err
	}

	return MessageID{value: id}, nil
}

// IsZero reports whether the id was never generated.
func (id MessageID) IsZero() bool {
	return id.value == ulid.ULID{}
}

// Compare returns -1, 0 or 1 ordering ids lexicographically (generation order).
func (id MessageID) Compare(other MessageID) int {
	return id.value.Compare(other.value)
}

func (id MessageID) String() string {
	return id.value.String()
}

// Message is the root of the command/event hierarchy. Instances are immutable
// once constructed; the identifier is never reused.
type Message interface {
	// ID returns the message's unique identifier.
	ID() MessageID

	// Timestamp returns the creation time of the message.
	Timestamp() time.Time

	// Category returns COMMAND or EVENT.
	Category() Category

	// Type returns the concrete message type name used for dispatch.
	Type() string
}

// Command is a request for the system to perform an action.
type Command interface {
	Message
	isCommand()
}

// Event is a fact about something that already happened.
type Event interface {
	Message
	isEvent()
}

type messageBase struct {
	id MessageID
	ts time.Time
}

func newMessageBase(ts time.Time) messageBase {
	return messageBase{id: NewMessageID(ts), ts: ts}
}

func (m messageBase) ID() MessageID        { return m.id }
func (m messageBase) Timestamp() time.Time { return m.ts }

type commandBase struct {
	messageBase
}

func (commandBase) Category() Category { return CategoryCommand }
func (commandBase) isCommand()         {}

type eventBase struct {
	messageBase
}

func (eventBase) Category() Category { return CategoryEvent }
func (eventBase) isEvent()           {}
