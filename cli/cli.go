// Package cli is the interactive command loop of the chat client. It only
// translates /-commands into peer operations; all networking lives in the
// peer package.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	log "github.com/sirupsen/logrus"

	"peerchat/datamodel/message"
	"peerchat/datastore/history"
	"peerchat/peer"
)

const historyWindow = 20

var (
	directColor    = color.New(color.FgGreen)
	broadcastColor = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
)

type CLI struct {
	rl   *readline.Instance
	p    *peer.Peer
	hist *history.Store
}

func New(hist *history.Store) (*CLI, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return nil, err
	}
	return &CLI{rl: rl, hist: hist}, nil
}

// Attach binds the peer whose operations the commands drive. Must be called
// before Run.
func (c *CLI) Attach(p *peer.Peer) {
	c.p = p
}

// Notify renders an inbound message above the prompt. It runs on the
// listener's connection goroutine, never on the readline loop, which is
// exactly why writing through rl.Stdout() matters: it repaints the prompt.
func (c *CLI) Notify(msg message.Message) {
	switch msg.Type {
	case message.TypeBroadcast:
		broadcastColor.Fprintf(c.rl.Stdout(), "[%s] Broadcast: %s\n", msg.From, msg.Content)
	default:
		directColor.Fprintf(c.rl.Stdout(), "[%s] %s\n", msg.From, msg.Content)
	}
}

// Run reads commands until /quit, EOF or context cancellation.
func (c *CLI) Run(ctx context.Context) error {
	// Unblock Readline when the background tasks die.
	go func() {
		<-ctx.Done()
		c.rl.Close()
	}()
	defer c.rl.Close()

	c.printHelp()

	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if quit := c.execute(ctx, line); quit {
			return nil
		}
	}
}

// execute runs one command line and reports whether the loop should exit.
func (c *CLI) execute(ctx context.Context, line string) bool {
	switch {
	case line == "/msg" || strings.HasPrefix(line, "/msg "):
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
			fmt.Fprintln(c.rl.Stdout(), "Usage: /msg <peer_id> <message>")
			return false
		}
		c.sendDirect(ctx, parts[1], parts[2])

	case line == "/broadcast" || strings.HasPrefix(line, "/broadcast "):
		content := strings.TrimSpace(strings.TrimPrefix(line, "/broadcast"))
		if content == "" {
			fmt.Fprintln(c.rl.Stdout(), "Usage: /broadcast <message>")
			return false
		}
		c.broadcast(ctx, content)

	case line == "/peers":
		c.refresh(ctx)
		c.printPeers()

	case line == "/refresh":
		c.refresh(ctx)

	case line == "/history":
		c.printHistory()

	case line == "/help":
		c.printHelp()

	case line == "/quit":
		fmt.Fprintln(c.rl.Stdout(), "Exiting...")
		return true

	default:
		fmt.Fprintln(c.rl.Stdout(), "Unknown command. Type /help for available commands")
	}
	return false
}

func (c *CLI) sendDirect(ctx context.Context, peerID, content string) {
	if err := c.p.SendDirect(ctx, peerID, content); err != nil {
		errorColor.Fprintf(c.rl.Stdout(), "%v\n", err)
		if errors.Is(err, peer.ErrUnknownPeer) {
			fmt.Fprintln(c.rl.Stdout(), "Try /refresh to update the peer list")
		}
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Sent to %s\n", peerID)
}

func (c *CLI) broadcast(ctx context.Context, content string) {
	results := c.p.Broadcast(ctx, content)
	if len(results) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No peers to broadcast to")
		return
	}

	sent := 0
	for _, res := range results {
		if res.Err != nil {
			errorColor.Fprintf(c.rl.Stdout(), "  %s: %v\n", res.PeerID, res.Err)
		} else {
			sent++
		}
	}
	fmt.Fprintf(c.rl.Stdout(), "Broadcast sent to %d of %d peers\n", sent, len(results))
}

func (c *CLI) refresh(ctx context.Context) {
	if err := c.p.RefreshPeers(ctx); err != nil {
		errorColor.Fprintf(c.rl.Stdout(), "Failed to refresh peer list: %v\n", err)
	}
}

func (c *CLI) printPeers() {
	peers := c.p.Peers()
	if len(peers) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No peers available")
		return
	}

	fmt.Fprintln(c.rl.Stdout(), "Available peers:")
	for _, rec := range peers {
		fmt.Fprintf(c.rl.Stdout(), "  %s - %s\n", rec.PeerID, rec.Addr())
	}
}

func (c *CLI) printHistory() {
	if c.hist == nil {
		fmt.Fprintln(c.rl.Stdout(), "History is disabled")
		return
	}

	entries, err := c.hist.Recent(historyWindow)
	if err != nil {
		log.Errorf("cli: failed to read history: %v", err)
		errorColor.Fprintf(c.rl.Stdout(), "Failed to read history: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No message history")
		return
	}

	fmt.Fprintln(c.rl.Stdout(), "Message history:")
	for _, e := range entries {
		fmt.Fprintf(c.rl.Stdout(), "  [%s] %s: %s\n", e.Type, e.From, e.Content)
	}
}

func (c *CLI) printHelp() {
	out := c.rl.Stdout()
	fmt.Fprintln(out, "Chat commands:")
	fmt.Fprintln(out, "  /msg <peer_id> <message>  - Send direct message")
	fmt.Fprintln(out, "  /broadcast <message>      - Broadcast to all peers")
	fmt.Fprintln(out, "  /peers                    - Refresh and list available peers")
	fmt.Fprintln(out, "  /refresh                  - Refresh peer list")
	fmt.Fprintln(out, "  /history                  - Show recent messages")
	fmt.Fprintln(out, "  /quit                     - Exit chat")
}
