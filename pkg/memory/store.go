// Package memory persists chat turns per session.
//
// Persistence model:
//   - One append-only table; a row is one user or assistant message.
//   - Rows are never updated. A session is cleared by deleting all its rows.
//   - Tool calls and tool results are transient and never stored.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// RoleUser marks a turn written on behalf of the caller.
	RoleUser = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant = "assistant"

	// ContextWindow is the number of recent turns folded into a context summary.
	ContextWindow = 5

	previewRunes = 50
)

// ErrStorageUnavailable is wrapped by every error caused by the storage layer.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Turn is one stored message.
type Turn struct {
	ID        int64     `json:"-"`
	SessionID string    `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"-"`
}

// SessionInfo is a lightweight summary of one session (for listing).
type SessionInfo struct {
	SessionID    string
	FirstMessage time.Time
	LastMessage  time.Time
	MessageCount int
	Preview      string
}

// Store manages the persistence of chat history.
type Store interface {
	// Append inserts one immutable turn.
	Append(ctx context.Context, sessionID, role, content string) error

	// Recent returns up to limit most recent turns, oldest first.
	// A session without turns yields an empty slice and no error.
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// ContextSummary renders the last ContextWindow turns as a system hint.
	// It returns "" when the session has no history.
	ContextSummary(ctx context.Context, sessionID string) (string, error)

	// Clear deletes every turn of the session and reports how many were removed.
	Clear(ctx context.Context, sessionID string) (int64, error)

	// ListSessions summarizes every session, most recently active first.
	ListSessions(ctx context.Context) ([]SessionInfo, error)

	// Ping checks that the storage is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// RenderSummary formats turns the way ContextSummary returns them.
func RenderSummary(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return "Recent conversation:\n" + strings.Join(lines, "\n")
}

func preview(firstUserMessage string) string {
	if firstUserMessage == "" {
		return "Empty chat"
	}
	r := []rune(firstUserMessage)
	if len(r) <= previewRunes {
		return firstUserMessage
	}
	return string(r[:previewRunes]) + "..."
}

// StorageError carries the failed operation and the driver error.
// errors.Is(err, ErrStorageUnavailable) holds for every StorageError.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
