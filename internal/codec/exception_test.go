// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package codec

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/logpond/logpond/internal/models"
)

// tracedError carries a stack trace and structured data for encoding tests.
type tracedError struct {
	msg   string
	stack string
	data  map[string]any
	cause error
}

func (e *tracedError) Error() string        { return e.msg }
func (e *tracedError) Unwrap() error        { return e.cause }
func (e *tracedError) StackTrace() string   { return e.stack }
func (e *tracedError) Data() map[string]any { return e.data }

func TestExceptionFromErrorNil(t *testing.T) {
	if got := ExceptionFromError(nil); got != nil {
		t.Errorf("ExceptionFromError(nil) = %+v, want nil", got)
	}
}

func TestExceptionFromErrorChain(t *testing.T) {
	root := errors.New("connection refused")
	mid := fmt.Errorf("dial storage: %w", root)
	top := &tracedError{
		msg:   "write batch: " + mid.Error(),
		stack: "goroutine 1 [running]:\nmain.main()",
		data:  map[string]any{"batch_size": 10},
		cause: mid,
	}

	exc := ExceptionFromError(top)
	if exc == nil {
		t.Fatal("expected non-nil exception")
	}
	if exc.Depth() != 3 {
		t.Fatalf("chain depth = %d, want 3", exc.Depth())
	}
	if exc.StackTrace == "" {
		t.Error("expected stack trace on outer exception")
	}
	if exc.Data["batch_size"] != 10 {
		t.Errorf("expected data map carried over, got %+v", exc.Data)
	}
	if exc.Inner.Message != mid.Error() {
		t.Errorf("inner message = %q, want %q", exc.Inner.Message, mid.Error())
	}
	if exc.Inner.Inner.Message != "connection refused" {
		t.Errorf("root message = %q", exc.Inner.Inner.Message)
	}
}

func TestExceptionRoundTrip(t *testing.T) {
	exc := &models.SerializedException{
		Type:       "TimeoutException",
		Message:    "operation timed out",
		StackTrace: "at Worker.Run()",
		Source:     "worker",
		Data:       map[string]any{"attempt": "3"},
		Inner: &models.SerializedException{
			Type:    "SocketException",
			Message: "broken pipe",
		},
	}

	text, err := EncodeException(exc)
	if err != nil {
		t.Fatalf("EncodeException: %v", err)
	}

	back := DecodeException(text)
	if back == nil {
		t.Fatal("DecodeException returned nil")
	}
	if back.Type != exc.Type || back.Message != exc.Message {
		t.Errorf("outer mismatch: got %s/%s", back.Type, back.Message)
	}
	if back.Depth() != exc.Depth() {
		t.Errorf("depth = %d, want %d", back.Depth(), exc.Depth())
	}
	if back.Inner.Type != "SocketException" {
		t.Errorf("inner type = %q", back.Inner.Type)
	}
	if back.Data["attempt"] != "3" {
		t.Errorf("data lost in round trip: %+v", back.Data)
	}
}

func TestDecodeExceptionEmptyAndMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not json", "definitely not json"},
		{"wrong shape", `[1, 2, 3]`},
		{"truncated", `{"type": "X", "mess`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeException(tt.text); got != nil {
				t.Errorf("DecodeException(%q) = %+v, want nil", tt.text, got)
			}
		})
	}
}

func TestDecodeExceptionDepthCap(t *testing.T) {
	// Build JSON nested far beyond the cap.
	var b strings.Builder
	const levels = 200
	for i := 0; i < levels; i++ {
		fmt.Fprintf(&b, `{"type":"E%d","message":"m","inner":`, i)
	}
	b.WriteString("null")
	b.WriteString(strings.Repeat("}", levels))

	exc := DecodeException(b.String())
	if exc == nil {
		t.Fatal("expected decode to succeed")
	}
	if exc.Depth() > maxExceptionDepth {
		t.Errorf("depth = %d, want <= %d", exc.Depth(), maxExceptionDepth)
	}
}

func TestEncodeExceptionNil(t *testing.T) {
	text, err := EncodeException(nil)
	if err != nil {
		t.Fatalf("EncodeException(nil): %v", err)
	}
	if text != "" {
		t.Errorf("EncodeException(nil) = %q, want empty", text)
	}
}
