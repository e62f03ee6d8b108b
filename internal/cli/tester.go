package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dreambot-go/internal/middleware"
	"github.com/dreambot-go/internal/models"
	"github.com/dreambot-go/internal/services/conversation"
	"github.com/dreambot-go/internal/services/storage"
	"github.com/dreambot-go/pkg/zalgo"
)

const statsShown = 15

// UsageReporter lists the most used responses of a pool.
type UsageReporter interface {
	TopUsage(ctx context.Context, pool string, n int) ([]storage.UsageEntry, error)
}

// Tester is an interactive console that talks to the conversation engine
// as a simulated user, without a Discord connection.
type Tester struct {
	engine    *conversation.Engine
	usage     UsageReporter
	styler    *zalgo.Styler
	intensity zalgo.Intensity
	out       io.Writer

	userID string
	debug  bool
	zalgo  bool
	now    func() time.Time
}

// NewTester creates a console tester for userID.
func NewTester(engine *conversation.Engine, usage UsageReporter, styler *zalgo.Styler, intensity zalgo.Intensity, userID string, out io.Writer) *Tester {
	return &Tester{
		engine:    engine,
		usage:     usage,
		styler:    styler,
		intensity: intensity,
		out:       out,
		userID:    userID,
		now:       time.Now,
	}
}

// Run reads lines from in until EOF or /quit.
func (t *Tester) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(t.out, strings.Repeat("=", 50))
	fmt.Fprintln(t.out, "  Dreambot Chat Tester")
	fmt.Fprintln(t.out, "  Type /help for commands, or just chat!")
	fmt.Fprintln(t.out, strings.Repeat("=", 50))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(t.out, "\n[%s] You: ", t.userID)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !t.Command(ctx, line) {
				fmt.Fprintln(t.out, "\nGoodbye, o bearer mine...")
				return nil
			}
			continue
		}
		t.Chat(ctx, line)
	}
	return scanner.Err()
}

// Chat sends one line to the engine and prints the reply.
func (t *Tester) Chat(ctx context.Context, line string) {
	reply := t.engine.Respond(ctx, models.InboundMessage{
		UserID:    t.userID,
		ChannelID: "console",
		Text:      line,
		Timestamp: t.now(),
	})

	if t.debug {
		fmt.Fprintf(t.out, "[Intent: %s]\n", reply.Intent)
		fmt.Fprintf(t.out, "[Topic: %s]\n", orDash(reply.Topic))
		fmt.Fprintf(t.out, "[Pool: %s]\n", orDash(reply.Pool))
		if reply.Override != conversation.OverrideNone {
			fmt.Fprintf(t.out, "[Override: %s]\n", reply.Override)
		}
		if reply.LoreCallback {
			fmt.Fprintln(t.out, "[Lore callback]")
		}
	}

	if reply.Silent {
		remaining := t.engine.Contexts().EscapeRemaining(t.userID).Round(time.Second)
		fmt.Fprintf(t.out, "Dreambot: (silent, escaped for %s)\n", remaining)
		return
	}

	text := reply.Text
	if t.zalgo {
		text = t.styler.Style(text, t.intensity, middleware.MaxMessageRunes)
	}
	fmt.Fprintf(t.out, "Dreambot: %s\n", text)
}

// Command runs a slash command and reports whether the session continues.
func (t *Tester) Command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	case "/quit", "/exit":
		return false
	case "/help":
		t.help()
	case "/debug":
		t.debug = !t.debug
		fmt.Fprintf(t.out, "Debug mode: %s\n", onOff(t.debug))
	case "/zalgo":
		t.zalgo = !t.zalgo
		fmt.Fprintf(t.out, "Zalgo mode: %s\n", onOff(t.zalgo))
	case "/stats":
		t.stats(ctx, args)
	case "/reset":
		if t.engine.Contexts().Reset(t.userID) {
			fmt.Fprintf(t.out, "Context cleared for user %s\n", t.userID)
		} else {
			fmt.Fprintf(t.out, "No context to clear for user %s\n", t.userID)
		}
	case "/user":
		if len(args) == 0 {
			fmt.Fprintf(t.out, "Current user ID: %s\n", t.userID)
			break
		}
		t.userID = args[0]
		fmt.Fprintf(t.out, "Switched to user ID: %s\n", t.userID)
	default:
		fmt.Fprintf(t.out, "Unknown command: %s\n", command)
		fmt.Fprintln(t.out, "Type /help for available commands.")
	}
	return true
}

func (t *Tester) help() {
	fmt.Fprintf(t.out, `Commands:
  /debug         Toggle debug output (shows intent, topic, pool)
  /zalgo         Toggle zalgo text transformation
  /stats [pool]  Show usage statistics for a pool
  /reset         Clear conversation context for current user
  /user <id>     Change simulated user ID (current: %s)
  /help          Show this help message
  /quit          Exit the tester
`, t.userID)
}

func (t *Tester) stats(ctx context.Context, args []string) {
	catalog := t.engine.Catalog()
	if len(args) == 0 {
		fmt.Fprintf(t.out, "Available pools: %s\n", strings.Join(catalog.Names(), ", "))
		return
	}

	name := strings.ToLower(args[0])
	pool, ok := catalog.Pool(name)
	if !ok {
		fmt.Fprintf(t.out, "Unknown pool: %s\n", name)
		return
	}

	fmt.Fprintf(t.out, "\nPool: %s (%d responses)\n", name, len(pool.Candidates))
	fmt.Fprintln(t.out, strings.Repeat("-", 40))

	entries, err := t.usage.TopUsage(ctx, name, 0)
	if err != nil {
		fmt.Fprintf(t.out, "Failed to load usage: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(t.out, "No usage data yet.")
		return
	}

	for i, e := range entries {
		if i == statsShown {
			fmt.Fprintf(t.out, "  ... and %d more\n", len(entries)-statsShown)
			break
		}
		fmt.Fprintf(t.out, "  %s: %d uses - %q\n", e.ResponseID, e.UsageCount, preview(e.Text, 40))
	}
}

func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
