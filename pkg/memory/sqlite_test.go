package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newTestStore(t *testing.T, opts ...Option) (*SQLiteStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chat_history.db")
	s, err := NewSQLiteStore(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath
}

func TestSQLiteStore_UnknownSessionIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	turns, err := s.Recent(ctx, "never-written", 10)
	require.NoError(t, err)
	require.NotNil(t, turns)
	require.Empty(t, turns)

	summary, err := s.ContextSummary(ctx, "never-written")
	require.NoError(t, err)
	require.Equal(t, "", summary)
}

func TestSQLiteStore_RecentReturnsLastTurnsOldestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		require.NoError(t, s.Append(ctx, "s1", RoleUser, fmt.Sprintf("m%d", i)))
	}

	turns, err := s.Recent(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, "m5", turns[0].Content)
	require.Equal(t, "m6", turns[1].Content)
	require.Equal(t, "m7", turns[2].Content)
	require.Less(t, turns[0].ID, turns[2].ID)

	all, err := s.Recent(ctx, "s1", 50)
	require.NoError(t, err)
	require.Len(t, all, 7)
	require.Equal(t, "m1", all[0].Content)

	none, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSQLiteStore_RecentHugeLimit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "s1", RoleUser, "only"))

	turns, err := s.Recent(ctx, "s1", 2_000_000_000_000)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.LessOrEqual(t, cap(turns), recentPrealloc)
}

func TestSQLiteStore_ContextSummary(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", RoleUser, "old"))
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Append(ctx, "s1", RoleUser, "hi"))
		require.NoError(t, s.Append(ctx, "s1", RoleAssistant, "hello"))
	}
	require.NoError(t, s.Append(ctx, "s1", RoleUser, "weather?"))

	summary, err := s.ContextSummary(ctx, "s1")
	require.NoError(t, err)

	lines := strings.Split(summary, "\n")
	require.Equal(t, "Recent conversation:", lines[0])
	require.Len(t, lines, 1+ContextWindow)
	require.Equal(t, "assistant: hello", lines[2])
	require.Equal(t, "user: weather?", lines[len(lines)-1])
	require.NotContains(t, summary, "old")
}

func TestSQLiteStore_ClearIsolatesSessions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "a", RoleUser, "a1"))
	require.NoError(t, s.Append(ctx, "a", RoleAssistant, "a2"))
	require.NoError(t, s.Append(ctx, "b", RoleUser, "b1"))

	n, err := s.Clear(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	turns, err := s.Recent(ctx, "a", 10)
	require.NoError(t, err)
	require.Empty(t, turns)

	other, err := s.Recent(ctx, "b", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, "b1", other[0].Content)

	n, err = s.Clear(ctx, "never-used")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "chat.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "durable", RoleUser, "remember me"))
	require.NoError(t, s.Append(ctx, "durable", RoleAssistant, "ok"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	turns, err := reopened.Recent(ctx, "durable", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "remember me", turns[0].Content)
	require.Equal(t, RoleAssistant, turns[1].Role)
}

func TestSQLiteStore_ListSessions(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(stepClock(start)))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "old", RoleUser, "first question in the old session"))
	require.NoError(t, s.Append(ctx, "old", RoleAssistant, "answer"))
	require.NoError(t, s.Append(ctx, "new", RoleUser, strings.Repeat("x", 60)))

	infos, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	require.Equal(t, "new", infos[0].SessionID)
	require.Equal(t, 1, infos[0].MessageCount)
	require.Equal(t, strings.Repeat("x", 50)+"...", infos[0].Preview)

	require.Equal(t, "old", infos[1].SessionID)
	require.Equal(t, 2, infos[1].MessageCount)
	require.Equal(t, start.Add(time.Second), infos[1].FirstMessage)
	require.Equal(t, start.Add(2*time.Second), infos[1].LastMessage)
	require.Equal(t, "first question in the old session", infos[1].Preview)
}

func TestSQLiteStore_ClosedStoreReportsUnavailable(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Close())

	err := s.Append(context.Background(), "s", RoleUser, "x")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStorageUnavailable))

	require.True(t, errors.Is(s.Ping(context.Background()), ErrStorageUnavailable))
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	require.Error(t, err)
}
