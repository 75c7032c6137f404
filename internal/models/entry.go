// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package models defines the data structures shared across Logpond: the log
// entry record, its severity level, and the serialized exception tree.
package models

import (
	"time"
)

// LogEntry is one persisted log event.
//
// Entries are constructed by a producer, immutable once enqueued, written by
// the batch writer, and read back as fresh instances by the reader. ID is
// assigned by the storage engine on insert; it is zero until then.
//
// Custom fields go into Parameters (an open string-keyed map) rather than
// into per-caller entry subtypes.
type LogEntry struct {
	// ID is the monotonic row id assigned by storage. Zero before insert.
	ID int64 `json:"id"`

	// Timestamp is when the event occurred. Producers that leave it zero get
	// the enqueue time.
	Timestamp time.Time `json:"timestamp"`

	// Level is the entry severity.
	Level Level `json:"level"`

	// Category names the producing component or logger.
	Category string `json:"category"`

	// EventID and EventName identify the event kind within a category.
	EventID   int32  `json:"event_id,omitempty"`
	EventName string `json:"event_name,omitempty"`

	// MessageTemplate is the message before parameter substitution,
	// RenderedMessage the final text.
	MessageTemplate string `json:"message_template,omitempty"`
	RenderedMessage string `json:"rendered_message"`

	// Parameters carries named values referenced by the template, plus any
	// caller-defined extension fields. Insertion order is not significant.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Scopes is the nested contextual key/value chain active when the entry
	// was logged, outermost scope first.
	Scopes []map[string]any `json:"scopes,omitempty"`

	// Exception is the serialized error attached to the entry, if any.
	Exception *SerializedException `json:"exception,omitempty"`
}

// SerializedException is a language-neutral exception tree: type, message,
// optional stack/source, arbitrary data, and at most one inner cause. The
// inner instance is exclusively owned by its parent.
type SerializedException struct {
	Type       string               `json:"type"`
	Message    string               `json:"message"`
	StackTrace string               `json:"stack_trace,omitempty"`
	Source     string               `json:"source,omitempty"`
	Data       map[string]any       `json:"data,omitempty"`
	Inner      *SerializedException `json:"inner,omitempty"`
}

// Depth returns the number of exceptions in the cause chain, counting the
// receiver. A nil receiver has depth zero.
func (e *SerializedException) Depth() int {
	depth := 0
	for ; e != nil; e = e.Inner {
		depth++
	}
	return depth
}
