package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/require"
)

// newTestCLI wires readline to in-memory streams so execute's output can be
// inspected without a terminal.
func newTestCLI(t *testing.T) (*CLI, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "> ",
		Stdin:  io.NopCloser(strings.NewReader("")),
		Stdout: &out,
		Stderr: &out,
	})
	require.NoError(t, err)
	t.Cleanup(func() { rl.Close() })

	return &CLI{rl: rl}, &out
}

func TestExecuteUsageHints(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"/msg", "Usage: /msg <peer_id> <message>"},
		{"/msg bob", "Usage: /msg <peer_id> <message>"},
		{"/msg bob  ", "Usage: /msg <peer_id> <message>"},
		{"/broadcast", "Usage: /broadcast <message>"},
		{"/broadcast  ", "Usage: /broadcast <message>"},
	}

	for _, tc := range cases {
		c, out := newTestCLI(t)
		quit := c.execute(context.Background(), tc.line)
		require.False(t, quit, "%q must not exit the loop", tc.line)
		require.Contains(t, out.String(), tc.want, "input %q", tc.line)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	c, out := newTestCLI(t)
	quit := c.execute(context.Background(), "/frobnicate")
	require.False(t, quit)
	require.Contains(t, out.String(), "Unknown command")
}

func TestExecuteQuit(t *testing.T) {
	c, _ := newTestCLI(t)
	require.True(t, c.execute(context.Background(), "/quit"))
}

func TestExecuteHistoryDisabled(t *testing.T) {
	c, out := newTestCLI(t)
	require.False(t, c.execute(context.Background(), "/history"))
	require.Contains(t, out.String(), "History is disabled")
}
