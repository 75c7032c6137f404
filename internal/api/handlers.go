// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package api exposes the sink over HTTP: an ingest endpoint feeding the
// write buffer, read endpoints over the Reader, and retention triggers for
// the Housekeeper.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/logpond/logpond/internal/housekeeping"
	"github.com/logpond/logpond/internal/metrics"
	"github.com/logpond/logpond/internal/models"
	"github.com/logpond/logpond/internal/reader"
	"github.com/logpond/logpond/internal/sink"
)

const maxIngestBodyBytes = 8 << 20 // 8 MiB

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	sink        *sink.Sink
	reader      *reader.Reader
	housekeeper *housekeeping.Housekeeper
}

// NewHandler creates the handler set.
func NewHandler(s *sink.Sink, r *reader.Reader, h *housekeeping.Housekeeper) *Handler {
	return &Handler{sink: s, reader: r, housekeeper: h}
}

// ingestEntry is the wire form of a log entry on the ingest endpoint.
type ingestEntry struct {
	Timestamp       time.Time                   `json:"timestamp"`
	Level           string                      `json:"level"`
	Category        string                      `json:"category" validate:"required,max=1024"`
	EventID         int32                       `json:"event_id"`
	EventName       string                      `json:"event_name"`
	MessageTemplate string                      `json:"message_template"`
	RenderedMessage string                      `json:"rendered_message"`
	Parameters      map[string]any              `json:"parameters"`
	Scopes          []map[string]any            `json:"scopes"`
	Exception       *models.SerializedException `json:"exception"`
}

func (e *ingestEntry) toModel() (*models.LogEntry, error) {
	level := models.LevelInformation
	if e.Level != "" {
		var err error
		if level, err = models.ParseLevel(e.Level); err != nil {
			return nil, err
		}
	}

	return &models.LogEntry{
		Timestamp:       e.Timestamp,
		Level:           level,
		Category:        e.Category,
		EventID:         e.EventID,
		EventName:       e.EventName,
		MessageTemplate: e.MessageTemplate,
		RenderedMessage: e.RenderedMessage,
		Parameters:      e.Parameters,
		Scopes:          e.Scopes,
		Exception:       e.Exception,
	}, nil
}

// ingestResult reports what happened to a submitted batch.
type ingestResult struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// Ingest accepts one entry or an array of entries and enqueues them.
//
// Method: POST
// Path: /api/v1/entries
//
// Response:
//   - 202: Entries accepted (some may report as dropped on buffer overflow)
//   - 400: Malformed body or invalid entry
//   - 503: Sink is shut down
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body := http.MaxBytesReader(w, r.Body, maxIngestBodyBytes)
	dec := json.NewDecoder(body)

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Request body is not valid JSON", err)
		return
	}

	var wire []ingestEntry
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &wire); err != nil {
			respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Entry array is not valid", err)
			return
		}
	} else {
		var one ingestEntry
		if err := json.Unmarshal(raw, &one); err != nil {
			respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "Entry is not valid", err)
			return
		}
		wire = append(wire, one)
	}

	if len(wire) == 0 {
		respondError(w, http.StatusBadRequest, "EMPTY_BATCH", "No entries in request", nil)
		return
	}

	entries := make([]*models.LogEntry, 0, len(wire))
	for i := range wire {
		if err := validate.Struct(&wire[i]); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Entry failed validation", err)
			return
		}
		entry, err := wire[i].toModel()
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_LEVEL", "Entry has an unknown level", err)
			return
		}
		entries = append(entries, entry)
	}

	// Validation passed for the whole batch; now enqueue. Drops are not
	// errors here, they are the configured overflow behavior.
	var result ingestResult
	for _, entry := range entries {
		switch err := h.sink.Enqueue(entry); err {
		case nil:
			result.Accepted++
		case sink.ErrBufferFull:
			result.Dropped++
		default:
			respondError(w, http.StatusServiceUnavailable, "SINK_UNAVAILABLE", "Sink is not accepting entries", err)
			return
		}
	}

	respondSuccess(w, http.StatusAccepted, result, start)
}

// Entries returns stored entries matching the query filters.
//
// Method: GET
// Path: /api/v1/entries
//
// Query parameters: min_level, category, since, until (RFC 3339),
// limit, offset.
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filter, err := parseEntryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error(), nil)
		return
	}

	entries, err := h.reader.Entries(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query entries", err)
		return
	}
	if entries == nil {
		entries = []*models.LogEntry{}
	}

	respondSuccess(w, http.StatusOK, entries, start)
}

// Count returns the number of stored entries.
//
// Method: GET
// Path: /api/v1/entries/count
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	count, err := h.reader.EntryCount(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count entries", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]int64{"count": count}, start)
}

// statsResponse aggregates sink and storage statistics.
type statsResponse struct {
	Sink          sink.Stats `json:"sink"`
	EntryCount    int64      `json:"entry_count"`
	FileSizeBytes int64      `json:"file_size_bytes"`
}

// Stats returns sink counters, the stored row count and the storage file
// size.
//
// Method: GET
// Path: /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	count, err := h.reader.EntryCount(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count entries", err)
		return
	}
	size, err := h.reader.DatabaseFileSize()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to stat storage file", err)
		return
	}

	metrics.RecordStorageCensus(count, size)

	respondSuccess(w, http.StatusOK, statsResponse{
		Sink:          h.sink.Stats(),
		EntryCount:    count,
		FileSizeBytes: size,
	}, start)
}

// RetentionRun triggers one retention sweep with the configured bounds.
//
// Method: POST
// Path: /api/v1/retention/run
func (h *Handler) RetentionRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	deleted, err := h.housekeeper.RunOnce(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RETENTION_ERROR", "Retention sweep failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]int64{"deleted": deleted}, start)
}

// DeleteEntries deletes stored entries.
//
// Method: DELETE
// Path: /api/v1/entries
//
// With older_than (RFC 3339) only entries before that instant are deleted;
// without it every entry is deleted.
func (h *Handler) DeleteEntries(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var (
		deleted int64
		err     error
	)
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		cutoff, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			respondError(w, http.StatusBadRequest, "INVALID_FILTER", "older_than must be RFC 3339", parseErr)
			return
		}
		deleted, err = h.housekeeper.DeleteOlderThan(r.Context(), cutoff)
	} else {
		deleted, err = h.housekeeper.DeleteAll(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RETENTION_ERROR", "Delete failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]int64{"deleted": deleted}, start)
}

// Health reports liveness: the sink worker must be running and the store
// reachable.
//
// Method: GET
// Path: /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !h.sink.IsRunning() {
		respondError(w, http.StatusServiceUnavailable, "SINK_STOPPED", "Sink worker is not running", nil)
		return
	}
	if _, err := h.reader.EntryCount(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "Store is not reachable", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, start)
}

func parseEntryFilter(r *http.Request) (reader.EntryFilter, error) {
	var filter reader.EntryFilter
	q := r.URL.Query()

	if raw := q.Get("min_level"); raw != "" {
		level, err := models.ParseLevel(raw)
		if err != nil {
			return filter, err
		}
		filter.MinLevel = &level
	}
	filter.Category = q.Get("category")

	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.Since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.Until = t
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errInvalidInt("limit", raw)
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errInvalidInt("offset", raw)
		}
		filter.Offset = n
	}

	return filter, nil
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return e.name + " must be a non-negative integer, got " + sanitizeLogValue(e.value)
}

func errInvalidInt(name, value string) error {
	return &paramError{name: name, value: value}
}
