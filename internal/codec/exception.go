// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package codec serializes the structured parts of a log entry, exception
// trees, parameter maps, and scope chains, to and from the single text
// columns the schema declares for them.
//
// Decoding is defensive throughout: malformed stored text yields a nil or
// empty value, never an error that would fail the whole row.
package codec

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/logpond/logpond/internal/models"
)

// maxExceptionDepth caps the nesting accepted on decode and followed on
// encode. Well-formed chains are far shallower; the cap exists so malformed
// or cyclic input cannot loop the decoder.
const maxExceptionDepth = 64

// StackTracer is implemented by errors that carry a captured stack trace.
type StackTracer interface {
	StackTrace() string
}

// Sourcer is implemented by errors that know the component they came from.
type Sourcer interface {
	Source() string
}

// DataCarrier is implemented by errors that attach structured key/value data.
type DataCarrier interface {
	Data() map[string]any
}

// ExceptionFromError flattens a Go error chain into a SerializedException
// tree, following errors.Unwrap one cause at a time. Returns nil for a nil
// error.
func ExceptionFromError(err error) *models.SerializedException {
	if err == nil {
		return nil
	}

	var root, tail *models.SerializedException
	for depth := 0; err != nil && depth < maxExceptionDepth; depth++ {
		node := &models.SerializedException{
			Type:    fmt.Sprintf("%T", err),
			Message: err.Error(),
		}
		if st, ok := err.(StackTracer); ok {
			node.StackTrace = st.StackTrace()
		}
		if src, ok := err.(Sourcer); ok {
			node.Source = src.Source()
		}
		if dc, ok := err.(DataCarrier); ok {
			node.Data = dc.Data()
		}

		if root == nil {
			root = node
		} else {
			tail.Inner = node
		}
		tail = node
		err = errors.Unwrap(err)
	}
	return root
}

// EncodeException serializes an exception tree to JSON text. A nil tree
// encodes to the empty string.
func EncodeException(exc *models.SerializedException) (string, error) {
	if exc == nil {
		return "", nil
	}
	data, err := json.Marshal(exc)
	if err != nil {
		return "", fmt.Errorf("marshal exception: %w", err)
	}
	return string(data), nil
}

// DecodeException reconstructs an exception tree from stored text. Empty or
// malformed input decodes to nil; a chain nested beyond the depth cap is
// truncated at the cap.
func DecodeException(text string) *models.SerializedException {
	if text == "" {
		return nil
	}
	var exc models.SerializedException
	if err := json.Unmarshal([]byte(text), &exc); err != nil {
		return nil
	}
	truncateAtDepth(&exc, maxExceptionDepth)
	return &exc
}

// truncateAtDepth cuts the inner chain after limit nodes.
func truncateAtDepth(exc *models.SerializedException, limit int) {
	for depth := 1; exc != nil; depth++ {
		if depth >= limit {
			exc.Inner = nil
			return
		}
		exc = exc.Inner
	}
}
