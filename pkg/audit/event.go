// Package audit records security-relevant signature operations.
//
// Audit logs are separate from technical logs:
//   - Audit failure = Operation failure
//   - Never log key material, digests or signature bytes
//   - All timestamps in UTC
//   - Events are hash chained for tamper evidence
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	// Encoding events
	EventEncodePKCS1 EventType = "ENCODE_PKCS1"
	EventEncodePSS   EventType = "ENCODE_PSS"

	// Signature format conversion
	EventSigConvert EventType = "SIG_CONVERT"

	// Signing and verification
	EventSigSign   EventType = "SIG_SIGN"
	EventSigVerify EventType = "SIG_VERIFY"

	// COSE events
	EventCOSESign   EventType = "COSE_SIGN"
	EventCOSEVerify EventType = "COSE_VERIFY"

	// Key events
	EventKeyAccessed EventType = "KEY_ACCESSED"
)

// Result represents the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor represents who performed the action.
type Actor struct {
	Type string `json:"type"`           // "user", "service"
	ID   string `json:"id"`             // username or service identifier
	Host string `json:"host,omitempty"` // hostname, or remote address for API calls
}

// Object represents what was acted upon.
type Object struct {
	Type  string `json:"type"`             // "digest", "signature", "key", "message"
	Path  string `json:"path,omitempty"`   // file path, HSM module or API route
	KeyID string `json:"key_id,omitempty"` // key label or fingerprint
}

// Context provides additional details about the operation.
type Context struct {
	Algorithm   string `json:"algorithm,omitempty"`    // signature or encoding algorithm
	Hash        string `json:"hash,omitempty"`         // digest algorithm
	KeyFamily   string `json:"key_family,omitempty"`   // RSA, EC, ED25519, ...
	ModulusBits int    `json:"modulus_bits,omitempty"` // RSA modulus or field size
	SaltLength  int    `json:"salt_length,omitempty"`  // PSS salt length
	Format      string `json:"format,omitempty"`       // target signature format
	Size        int    `json:"size,omitempty"`         // output size in bytes
	Reason      string `json:"reason,omitempty"`       // failure reason
}

// Event represents a single audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"` // SHA-256 hash of previous event
	Hash      string    `json:"hash"`      // SHA-256 hash of this event
}

// NewEvent creates a new audit event with current timestamp and actor info.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME") // Windows
	}
	if username == "" {
		username = "unknown"
	}

	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "user",
			ID:   username,
			Host: hostname,
		},
		Result: result,
	}
}

// ResultOf maps an operation error to its audit result.
func ResultOf(err error) Result {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field. A failure reason recorded by
// WithError is kept.
func (e *Event) WithContext(ctx Context) *Event {
	if ctx.Reason == "" {
		ctx.Reason = e.Context.Reason
	}
	e.Context = ctx
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// WithError marks the event failed and records err as the reason.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Result = ResultFailure
		e.Context.Reason = err.Error()
	}
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return fmt.Errorf("actor type and id are required")
	}
	if e.Result == "" {
		return fmt.Errorf("result is required")
	}
	return nil
}

// eventForHash is Event without its Hash field.
type eventForHash struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"`
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"`
}

// CanonicalJSON returns the JSON form hashed by the chain.
func (e *Event) CanonicalJSON() ([]byte, error) {
	return json.Marshal(eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
