package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// idCounter wraps at idCounterLimit so ids stay short while remaining
// locally unique within a process lifetime.
const idCounterLimit = 10000

var idCounter atomic.Uint64

// StackFrame represents one parsed frame of a raw stack trace. File, Line
// and Method are always set on a parsed frame; Column and Class only when
// the source text carries them.
type StackFrame struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
	Method string `json:"method"`
	Class  string `json:"class,omitempty"`
}

// Device is a snapshot of host metadata attached to events. All fields are
// optional; collection falls back to platform-only on any failure.
type Device struct {
	Platform       string `json:"platform,omitempty"`
	OSVersion      string `json:"osVersion,omitempty"`
	DeviceModel    string `json:"deviceModel,omitempty"`
	AppVersion     string `json:"appVersion,omitempty"`
	AppBuildNumber string `json:"appBuildNumber,omitempty"`
}

// Event represents one telemetry record. Events are immutable after
// creation: enrichment happens before the event enters the buffer, and no
// component mutates an event afterwards.
type Event struct {
	ID        string
	Category  Category
	Severity  Severity
	Message   string
	Timestamp time.Time
	Stack     string
	Frames    []StackFrame
	Metadata  map[string]any
	Device    *Device
	UserID    string
	UserName  string
	UserEmail string
	SessionID string
}

// NewID returns a timestamp-derived event id with a wrapping per-process
// counter suffix, locally unique and roughly ordered.
func NewID() string {
	n := idCounter.Add(1) % idCounterLimit
	return fmt.Sprintf("%d-%04d", time.Now().UnixMilli(), n)
}

// NewEvent creates an event from the given fields, assigning an id and a
// timestamp at the call site.
func NewEvent(category Category, severity Severity, message string) *Event {
	return &Event{
		ID:        NewID(),
		Category:  category,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
