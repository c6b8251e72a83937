package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Portable is the wire and persistence form of an Event. Every optional
// field carries omitempty so unset fields never appear as nulls on the wire.
// Timestamps travel as ISO-8601 strings.
type Portable struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Stack     string         `json:"stack,omitempty"`
	Frames    []StackFrame   `json:"frames,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Device    *Device        `json:"device,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	UserName  string         `json:"userName,omitempty"`
	UserEmail string         `json:"userEmail,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
}

// ToPortable converts an event into its wire form.
func (e *Event) ToPortable() Portable {
	return Portable{
		ID:        e.ID,
		Category:  e.Category.String(),
		Severity:  e.Severity.String(),
		Message:   e.Message,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Stack:     e.Stack,
		Frames:    e.Frames,
		Metadata:  e.Metadata,
		Device:    e.Device,
		UserID:    e.UserID,
		UserName:  e.UserName,
		UserEmail: e.UserEmail,
		SessionID: e.SessionID,
	}
}

// FromPortable converts a wire record back into an Event. The conversion is
// tolerant: legacy category names map through the synonym table and a
// missing severity defaults to info. A malformed timestamp is the only
// rejection, since an event without an instant cannot be ordered.
func FromPortable(p Portable) (*Event, error) {
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event timestamp %q: %w", p.Timestamp, err)
	}

	return &Event{
		ID:        p.ID,
		Category:  ParseCategory(p.Category),
		Severity:  ParseSeverity(p.Severity),
		Message:   p.Message,
		Timestamp: ts,
		Stack:     p.Stack,
		Frames:    p.Frames,
		Metadata:  p.Metadata,
		Device:    p.Device,
		UserID:    p.UserID,
		UserName:  p.UserName,
		UserEmail: p.UserEmail,
		SessionID: p.SessionID,
	}, nil
}

// Encode serializes the event's portable form to JSON.
func (e *Event) Encode() (string, error) {
	raw, err := json.Marshal(e.ToPortable())
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return string(raw), nil
}

// Decode deserializes a persisted portable record back into an Event.
func Decode(raw string) (*Event, error) {
	var p Portable
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return FromPortable(p)
}
