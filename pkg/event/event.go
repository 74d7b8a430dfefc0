// Package event defines the immutable event value exchanged between
// providers and listeners.
//
// An Event is created by a provider, handed to the bus, and may be
// delivered to many listeners concurrently. After emission an Event is
// read-only; anything that needs to alter one must work on a Clone.
package event

import (
	"encoding/json"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Well-known data fields present on every serialized event.
const (
	// FieldType is the serialized key for the event type.
	FieldType = "event_type"

	// FieldSource is the serialized key for the emitting provider's name.
	FieldSource = "source"

	// FieldTimestamp is the serialized key for the emission timestamp.
	FieldTimestamp = "timestamp"
)

// Event is a single occurrence reported by a provider.
//
// Data is an insertion-ordered open mapping: providers populate arbitrary
// fields and listeners must not assume any field exists beyond Type,
// Source and Timestamp.
type Event struct {
	// Type identifies what happened (provider-defined vocabulary).
	Type string

	// Source is the name of the provider that emitted the event.
	Source string

	// Timestamp is when the provider created the event.
	Timestamp time.Time

	data *orderedmap.OrderedMap[string, any]
}

// New creates an Event with the given type and source, timestamped now.
func New(eventType, source string) *Event {
	return &Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		data:      orderedmap.New[string, any](),
	}
}

// Set records a data field, preserving insertion order, and returns the
// event for chaining during construction.
func (e *Event) Set(key string, value any) *Event {
	e.data.Set(key, value)

	return e
}

// Get returns a data field and whether it was present.
func (e *Event) Get(key string) (any, bool) {
	return e.data.Get(key)
}

// GetString returns a data field as a string, or "" when absent or not a
// string.
func (e *Event) GetString(key string) string {
	v, ok := e.data.Get(key)
	if !ok {
		return ""
	}

	s, _ := v.(string)

	return s
}

// Len returns the number of data fields.
func (e *Event) Len() int {
	return e.data.Len()
}

// Each visits every data field in insertion order.
func (e *Event) Each(fn func(key string, value any)) {
	for pair := e.data.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Clone returns an independent copy of the event. Field values are copied
// shallowly; they are scalars or nested read-only values by contract.
func (e *Event) Clone() *Event {
	data := orderedmap.New[string, any]()
	for pair := e.data.Oldest(); pair != nil; pair = pair.Next() {
		data.Set(pair.Key, pair.Value)
	}

	return &Event{
		Type:      e.Type,
		Source:    e.Source,
		Timestamp: e.Timestamp,
		data:      data,
	}
}

// MarshalJSON serializes the event as a single flat document: the three
// well-known fields followed by the data fields in insertion order.
func (e *Event) MarshalJSON() ([]byte, error) {
	doc := orderedmap.New[string, any]()
	doc.Set(FieldType, e.Type)
	doc.Set(FieldSource, e.Source)
	doc.Set(FieldTimestamp, e.Timestamp.Format(time.RFC3339Nano))

	for pair := e.data.Oldest(); pair != nil; pair = pair.Next() {
		doc.Set(pair.Key, pair.Value)
	}

	return json.Marshal(doc)
}

// UnmarshalJSON rebuilds an event from its flat document form. Used by the
// host when reading events streamed from external provider processes.
func (e *Event) UnmarshalJSON(raw []byte) error {
	doc := orderedmap.New[string, any]()
	if err := json.Unmarshal(raw, doc); err != nil {
		return err
	}

	e.data = orderedmap.New[string, any]()

	for pair := doc.Oldest(); pair != nil; pair = pair.Next() {
		switch pair.Key {
		case FieldType:
			e.Type, _ = pair.Value.(string)
		case FieldSource:
			e.Source, _ = pair.Value.(string)
		case FieldTimestamp:
			if s, ok := pair.Value.(string); ok {
				ts, err := time.Parse(time.RFC3339Nano, s)
				if err == nil {
					e.Timestamp = ts
				}
			}
		default:
			e.data.Set(pair.Key, pair.Value)
		}
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	return nil
}
