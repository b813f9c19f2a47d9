// Package audit writes the append-only JSONL event trail for pipeline
// runs. One event is recorded per phase transition and per staged or
// applied operation, keyed by session and batch, so operators can
// reconstruct exactly what a run did after the fact.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reckon/internal/logging"
)

// Event categories.
const (
	CategorySession        = "session"
	CategoryBatch          = "batch"
	CategoryResearch       = "research"
	CategoryReconciliation = "reconciliation"
	CategoryStaging        = "staging"
	CategoryApply          = "apply"
	CategoryQuestion       = "question"
	CategoryCheckpoint     = "checkpoint"
	CategoryError          = "error"
)

// Event is one line of the audit trail.
type Event struct {
	Timestamp  time.Time      `json:"ts"`
	SessionID  string         `json:"session_id"`
	Category   string         `json:"category"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
}

// Logger appends events to a JSONL file. It is carried explicitly by
// the orchestrator rather than held in package state, one instance per
// session. Safe for concurrent use.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	sessionID string
	log       *slog.Logger
}

// Open creates or appends to the audit log at path. Events are mirrored
// to the debug level of logger; a nil logger disables mirroring.
func Open(path, sessionID string, logger *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Logger{
		file:      file,
		path:      path,
		sessionID: sessionID,
		log:       logger,
	}, nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Path returns the audit log location.
func (l *Logger) Path() string { return l.path }

// Log appends an event.
func (l *Logger) Log(category, action string, details map[string]any) {
	l.write(Event{
		Timestamp: time.Now().UTC(),
		SessionID: l.sessionID,
		Category:  category,
		Action:    action,
		Details:   details,
	})
}

// LogDuration appends an event carrying an elapsed time.
func (l *Logger) LogDuration(category, action string, elapsed time.Duration, details map[string]any) {
	l.write(Event{
		Timestamp:  time.Now().UTC(),
		SessionID:  l.sessionID,
		Category:   category,
		Action:     action,
		Details:    details,
		DurationMS: elapsed.Milliseconds(),
	})
}

// LogError appends an error event.
func (l *Logger) LogError(err error, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["error"] = err.Error()
	l.write(Event{
		Timestamp: time.Now().UTC(),
		SessionID: l.sessionID,
		Category:  CategoryError,
		Action:    "exception",
		Details:   details,
	})
}

func (l *Logger) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		l.log.Warn("audit event not encodable", logging.Error(err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		// The trail is best-effort; a full disk must not fail the run.
		l.log.Warn("audit write failed", logging.Error(err))
		return
	}
	l.log.Debug("audit event",
		logging.String("category", event.Category),
		logging.String("action", event.Action))
}

// Filter selects events when reading the trail back.
type Filter struct {
	SessionID string
	Category  string
	Action    string
	Since     time.Time
	Limit     int
}

// ReadEvents reads events from an audit log, oldest first. Malformed
// lines are skipped. A zero Filter returns up to 1000 events.
func ReadEvents(path string, filter Filter) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if filter.SessionID != "" && event.SessionID != filter.SessionID {
			continue
		}
		if filter.Category != "" && event.Category != filter.Category {
			continue
		}
		if filter.Action != "" && event.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
			continue
		}
		events = append(events, event)
		if len(events) > limit {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return events, nil
}

// Prune rewrites the log dropping events older than retention. Returns
// the number of events removed. Malformed lines are kept. Call before
// opening a Logger on the same path; an open Logger keeps appending to
// the replaced file.
func Prune(path string, retention time.Duration) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}

	cutoff := time.Now().UTC().Add(-retention)
	var kept [][]byte
	removed := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			kept = append(kept, line)
			continue
		}
		if event.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	scanErr := scanner.Err()
	_ = file.Close()
	if scanErr != nil {
		return 0, fmt.Errorf("read audit log: %w", scanErr)
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("rewrite audit log: %w", err)
	}
	for _, line := range kept {
		if _, err := out.Write(append(line, '\n')); err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("rewrite audit log: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("rewrite audit log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("replace audit log: %w", err)
	}
	return removed, nil
}
