package cli

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/services/conversation"
	"github.com/dreambot-go/internal/services/responses"
	"github.com/dreambot-go/internal/services/storage"
	"github.com/dreambot-go/pkg/zalgo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTester(t *testing.T) (*Tester, *bytes.Buffer) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.DefaultEngineConfig()
	cfg.LoreCallbackChance = 0

	catalog, err := responses.Load()
	require.NoError(t, err)

	manager := storage.NewLedgerManager(storage.NewMemoryLedger(&config.MemoryConfig{}, log), log)
	contexts := conversation.NewContextManager(cfg, log)
	selector := conversation.NewSelector(manager, log, rand.New(rand.NewSource(1)))
	engine, err := conversation.NewEngine(catalog, contexts, selector, cfg, log)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	styler := zalgo.NewStyler(rand.New(rand.NewSource(1)))
	return NewTester(engine, manager, styler, zalgo.Extreme, "42", out), out
}

func TestTesterChatWithDebug(t *testing.T) {
	tester, out := newTestTester(t)

	err := tester.Run(context.Background(), strings.NewReader("/debug\nhello there\n/quit\n"))
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Debug mode: ON")
	assert.Contains(t, got, "[Intent: GREETING]")
	assert.Contains(t, got, "[Pool: greeting]")
	assert.Contains(t, got, "Dreambot: ")
	assert.Contains(t, got, "Goodbye, o bearer mine...")
}

func TestTesterZalgoToggle(t *testing.T) {
	tester, out := newTestTester(t)

	tester.Command(context.Background(), "/zalgo")
	tester.Chat(context.Background(), "hi")

	got := out.String()
	assert.Contains(t, got, "Zalgo mode: ON")
	assert.NotEqual(t, got, zalgo.Strip(got))
}

func TestTesterStats(t *testing.T) {
	tester, out := newTestTester(t)
	ctx := context.Background()

	tester.Command(ctx, "/stats")
	assert.Contains(t, out.String(), "Available pools:")

	out.Reset()
	tester.Command(ctx, "/stats nope")
	assert.Contains(t, out.String(), "Unknown pool: nope")

	out.Reset()
	tester.Command(ctx, "/stats greeting")
	assert.Contains(t, out.String(), "No usage data yet.")

	tester.Chat(ctx, "hi")
	out.Reset()
	tester.Command(ctx, "/stats greeting")
	assert.Contains(t, out.String(), ": 1 uses - ")
}

func TestTesterUserAndReset(t *testing.T) {
	tester, out := newTestTester(t)
	ctx := context.Background()

	tester.Command(ctx, "/reset")
	assert.Contains(t, out.String(), "No context to clear for user 42")

	tester.Chat(ctx, "hi")
	out.Reset()
	tester.Command(ctx, "/reset")
	assert.Contains(t, out.String(), "Context cleared for user 42")

	out.Reset()
	tester.Command(ctx, "/user 7")
	tester.Command(ctx, "/user")
	assert.Contains(t, out.String(), "Switched to user ID: 7")
	assert.Contains(t, out.String(), "Current user ID: 7")
}

func TestTesterUnknownCommandKeepsRunning(t *testing.T) {
	tester, out := newTestTester(t)

	assert.True(t, tester.Command(context.Background(), "/dance"))
	assert.Contains(t, out.String(), "Unknown command: /dance")
	assert.False(t, tester.Command(context.Background(), "/EXIT"))
}

func TestTesterShowsSilence(t *testing.T) {
	tester, out := newTestTester(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		tester.Chat(ctx, "hi")
	}
	assert.Contains(t, out.String(), "Dreambot: (silent, escaped for")
}
