package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"peerchat/datamodel/message"
)

func TestAppendAndRecent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	defer s.Close()

	for i := 1; i <= 25; i++ {
		msg := message.Message{
			Type:    message.TypeDirect,
			From:    "alice",
			Content: fmt.Sprintf("message %d", i),
		}
		require.NoError(t, s.Append(msg, time.Now()))
	}
	require.Equal(t, 25, s.Len())

	entries, err := s.Recent(20)
	require.NoError(t, err)
	require.Len(t, entries, 20)

	// Oldest of the returned window first, newest last.
	require.Equal(t, "message 6", entries[0].Content)
	require.Equal(t, "message 25", entries[len(entries)-1].Content)
	require.Equal(t, "direct", entries[0].Type)
	require.Equal(t, "alice", entries[0].From)
}

func TestRecentOnEmptyStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.Recent(20)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")

	s, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(message.Message{Type: message.TypeBroadcast, From: "bob", Content: "hi"}, time.Now()))
	}
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 3, s.Len())
	require.NoError(t, s.Append(message.Message{Type: message.TypeDirect, From: "bob", Content: "again"}, time.Now()))

	entries, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, "again", entries[3].Content)
}
