// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package codec

import (
	"fmt"

	"github.com/goccy/go-json"
)

// EncodeParameters serializes a parameter map to JSON text. Nil and empty
// maps encode to the empty string so the column stays NULL-ish for entries
// without parameters.
func EncodeParameters(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal parameters: %w", err)
	}
	return string(data), nil
}

// DecodeParameters reconstructs a parameter map from stored text. Empty or
// malformed input decodes to nil.
func DecodeParameters(text string) map[string]any {
	if text == "" {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(text), &params); err != nil {
		return nil
	}
	return params
}

// EncodeScopes serializes a scope chain to JSON text, outermost scope first.
func EncodeScopes(scopes []map[string]any) (string, error) {
	if len(scopes) == 0 {
		return "", nil
	}
	data, err := json.Marshal(scopes)
	if err != nil {
		return "", fmt.Errorf("marshal scopes: %w", err)
	}
	return string(data), nil
}

// DecodeScopes reconstructs a scope chain from stored text. Empty or
// malformed input decodes to nil.
func DecodeScopes(text string) []map[string]any {
	if text == "" {
		return nil
	}
	var scopes []map[string]any
	if err := json.Unmarshal([]byte(text), &scopes); err != nil {
		return nil
	}
	return scopes
}
