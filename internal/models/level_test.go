// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package models

import "testing"

func TestLevelOrdering(t *testing.T) {
	ordered := []Level{LevelTrace, LevelDebug, LevelInformation, LevelWarning, LevelError, LevelCritical, LevelNone}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Errorf("level %s must sort below %s", ordered[i-1], ordered[i])
		}
	}
}

func TestLevelFromIntFallback(t *testing.T) {
	tests := []struct {
		input int32
		want  Level
	}{
		{0, LevelTrace},
		{2, LevelInformation},
		{5, LevelCritical},
		{6, LevelNone},
		{-1, LevelNone},
		{99, LevelNone},
	}

	for _, tt := range tests {
		if got := LevelFromInt(tt.input); got != tt.want {
			t.Errorf("LevelFromInt(%d) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"Information", LevelInformation, false},
		{"info", LevelInformation, false},
		{"WARN", LevelWarning, false},
		{" error ", LevelError, false},
		{"critical", LevelCritical, false},
		{"none", LevelNone, false},
		{"verbose", LevelNone, true},
		{"", LevelNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelTextRoundTrip(t *testing.T) {
	for _, l := range []Level{LevelTrace, LevelDebug, LevelInformation, LevelWarning, LevelError, LevelCritical, LevelNone} {
		text, err := l.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", l, err)
		}
		var back Level
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != l {
			t.Errorf("round trip of %s yielded %s", l, back)
		}
	}
}

func TestExceptionDepth(t *testing.T) {
	var nilExc *SerializedException
	if nilExc.Depth() != 0 {
		t.Errorf("nil exception depth = %d, want 0", nilExc.Depth())
	}

	exc := &SerializedException{
		Type:    "outer",
		Message: "outer failed",
		Inner: &SerializedException{
			Type:    "middle",
			Message: "middle failed",
			Inner: &SerializedException{
				Type:    "root",
				Message: "root cause",
			},
		},
	}
	if exc.Depth() != 3 {
		t.Errorf("chain depth = %d, want 3", exc.Depth())
	}
}
