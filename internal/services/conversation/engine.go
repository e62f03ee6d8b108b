package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/models"
	"github.com/dreambot-go/internal/services/intent"
	"github.com/dreambot-go/internal/services/responses"
	"github.com/dreambot-go/pkg/keylock"
	"github.com/sirupsen/logrus"
)

// Override names the conversational state that replaced the intent pool.
type Override string

const (
	OverrideNone         Override = ""
	OverrideJokeIntense  Override = "joke_intensity"
	OverrideRepetition   Override = "repetition"
	OverrideEscape       Override = "escape"
	OverrideSafeFallback Override = "fallback"
)

type route struct {
	pool       string
	topicAware bool
}

var routes = map[intent.Intent]route{
	intent.Kebab:              {pool: "kebab"},
	intent.Greeting:           {pool: "greeting"},
	intent.Farewell:           {pool: "farewell"},
	intent.Gratitude:          {pool: "gratitude"},
	intent.OutlookRequest:     {pool: "outlook"},
	intent.OpinionRequest:     {pool: "opinion", topicAware: true},
	intent.Existential:        {pool: "existential", topicAware: true},
	intent.MetaLore:           {pool: "meta_lore", topicAware: true},
	intent.Challenge:          {pool: "challenge"},
	intent.AnimalSound:        {pool: "animal_sound"},
	intent.SimpleAffirmation:  {pool: "affirmation"},
	intent.SimpleNegation:     {pool: "negation"},
	intent.SimpleExclamation:  {pool: "exclamation"},
	intent.SelfStatement:      {pool: "self_statement"},
	intent.BotCapability:      {pool: "bot_capability"},
	intent.Imperative:         {pool: "imperative"},
	intent.Sharing:            {pool: "sharing"},
	intent.EmotionalReaction:  {pool: "emotional"},
	intent.RoleplayInvitation: {pool: "roleplay"},
	intent.Correction:         {pool: "correction"},
	intent.Confusion:          {pool: "confusion"},
}

// PoolFor returns the pool an intent maps to and whether it interpolates topics.
func PoolFor(in intent.Intent) (string, bool, bool) {
	r, ok := routes[in]
	return r.pool, r.topicAware, ok
}

// RequiredPools lists every pool the engine may draw from.
func RequiredPools() []string {
	names := []string{responses.PoolEightBall, responses.PoolVague}
	names = append(names, responses.ContextPools...)
	for _, r := range routes {
		names = append(names, r.pool)
	}
	return names
}

// Reply is the engine's decision for one inbound mention.
type Reply struct {
	Text            string
	Silent          bool
	Question        bool
	Intent          intent.Intent
	Topic           string
	Pool            string
	ResponseID      string
	Override        Override
	LoreCallback    bool
	EscapeTriggered bool
}

// Recorder receives engine outcomes for metrics.
type Recorder interface {
	RecordResponse(intentLabel, pool, override string, duration time.Duration)
	RecordSilenced()
	RecordEscape()
	RecordLoreCallback()
	RecordEngineFailure()
}

type nopEngineRecorder struct{}

func (nopEngineRecorder) RecordResponse(string, string, string, time.Duration) {}
func (nopEngineRecorder) RecordSilenced()                                      {}
func (nopEngineRecorder) RecordEscape()                                        {}
func (nopEngineRecorder) RecordLoreCallback()                                  {}
func (nopEngineRecorder) RecordEngineFailure()                                 {}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEngineRecorder sets the metrics sink.
func WithEngineRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// Engine turns inbound mentions into persona replies.
type Engine struct {
	catalog  *responses.Catalog
	contexts *ContextManager
	selector *Selector
	cfg      config.EngineConfig
	locks    *keylock.Striped
	metrics  Recorder
	logger   *logrus.Logger
}

// NewEngine wires the engine and checks that the catalog has every pool it needs.
func NewEngine(
	catalog *responses.Catalog,
	contexts *ContextManager,
	selector *Selector,
	cfg config.EngineConfig,
	logger *logrus.Logger,
	opts ...EngineOption,
) (*Engine, error) {
	if err := catalog.Require(RequiredPools()...); err != nil {
		return nil, err
	}

	e := &Engine{
		catalog:  catalog,
		contexts: contexts,
		selector: selector,
		cfg:      cfg,
		locks:    keylock.New(0),
		metrics:  nopEngineRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Contexts exposes the conversation memory for commands and diagnostics.
func (e *Engine) Contexts() *ContextManager {
	return e.contexts
}

// Catalog exposes the response catalog.
func (e *Engine) Catalog() *responses.Catalog {
	return e.catalog
}

// SelectFrom draws from a named pool outside the mention flow.
func (e *Engine) SelectFrom(ctx context.Context, pool, topic string) (Selection, bool) {
	p, ok := e.catalog.Pool(pool)
	if !ok {
		return Selection{}, false
	}
	return e.selector.Select(ctx, p, topic), true
}

func (e *Engine) draw(ctx context.Context, pool, topic string) Selection {
	p, ok := e.catalog.Pool(pool)
	if !ok {
		p = models.ResponsePool{Name: pool}
	}
	return e.selector.Select(ctx, p, topic)
}

// Respond produces the reply for one mention. Messages from the same user are
// handled one at a time. A silent reply means the user is escaped.
func (e *Engine) Respond(ctx context.Context, msg models.InboundMessage) (reply Reply) {
	unlock := e.locks.Lock(msg.UserID)
	defer unlock()

	start := time.Now()
	log := e.logger.WithFields(logrus.Fields{
		"user_id":    msg.UserID,
		"channel_id": msg.ChannelID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Response engine failed, using safe default")
			e.metrics.RecordEngineFailure()
			reply = e.safeDefault(ctx)
		}

		switch {
		case reply.Silent:
			e.metrics.RecordSilenced()
		default:
			e.metrics.RecordResponse(intentLabel(reply.Intent), reply.Pool, string(reply.Override), time.Since(start))
		}
	}()

	reply = e.respond(ctx, msg)

	log.WithFields(logrus.Fields{
		"intent":   intentLabel(reply.Intent),
		"topic":    reply.Topic,
		"pool":     reply.Pool,
		"override": reply.Override,
		"silent":   reply.Silent,
	}).Debug("Mention handled")
	return reply
}

func (e *Engine) respond(ctx context.Context, msg models.InboundMessage) Reply {
	uid := msg.UserID

	// Messages sent while silenced do not count toward the next escape.
	if e.contexts.IsEscaped(uid) {
		return Reply{Silent: true}
	}
	e.contexts.RecordMessageTimestamp(uid)
	if e.contexts.ShouldTriggerEscape(uid) {
		sel := e.draw(ctx, responses.PoolEscape, "")
		e.contexts.TriggerEscape(uid, e.cfg.EscapeDuration)
		e.metrics.RecordEscape()
		return Reply{
			Text:            sel.Text,
			Pool:            sel.Pool,
			ResponseID:      sel.ID,
			Override:        OverrideEscape,
			EscapeTriggered: true,
		}
	}

	question := intent.IsQuestion(msg.Text)
	in, matched := intent.Classify(msg.Text, question)

	var topic string
	if matched {
		topic, _ = intent.ExtractTopic(msg.Text, in)
	}
	label := intentLabel(in)

	var (
		sel      Selection
		override = OverrideNone
	)
	switch {
	case in == intent.Kebab && e.jokeIntensity(uid, msg.Text) >= e.cfg.JokeIntenseThreshold:
		sel = e.draw(ctx, responses.PoolKebabIntense, "")
		override = OverrideJokeIntense
	case e.contexts.DetectRepetition(uid, label, topic):
		sel = e.draw(ctx, responses.PoolRepetition, "")
		override = OverrideRepetition
	default:
		sel = e.drawForIntent(ctx, in, question, topic)
	}

	// The roll always happens so a pending lore flag can be consumed.
	lore := e.contexts.ShouldLoreCallback(uid) && override == OverrideNone

	e.contexts.RecordMessage(uid, msg.Text, label, topic, sel.Text)

	reply := Reply{
		Text:       sel.Text,
		Question:   question,
		Intent:     in,
		Topic:      topic,
		Pool:       sel.Pool,
		ResponseID: sel.ID,
		Override:   override,
	}
	if lore {
		suffix := e.draw(ctx, responses.PoolLoreCallback, "")
		reply.Text = sel.Text + "\n\n" + suffix.Text
		reply.LoreCallback = true
		e.metrics.RecordLoreCallback()
	}
	return reply
}

func (e *Engine) drawForIntent(ctx context.Context, in intent.Intent, question bool, topic string) Selection {
	if r, ok := routes[in]; ok {
		if !r.topicAware {
			topic = ""
		}
		return e.draw(ctx, r.pool, topic)
	}
	if question {
		return e.draw(ctx, responses.PoolEightBall, "")
	}
	return e.draw(ctx, responses.PoolVague, "")
}

// jokeIntensity counts the stored mentions plus the one in text.
func (e *Engine) jokeIntensity(userID, text string) int {
	kw := e.cfg.JokeKeyword
	n := e.contexts.JokeIntensity(userID, kw)
	if kw != "" && strings.Contains(strings.ToLower(text), kw) {
		n++
	}
	if n > e.cfg.JokeIntensityCap {
		n = e.cfg.JokeIntensityCap
	}
	return n
}

func (e *Engine) safeDefault(ctx context.Context) (reply Reply) {
	defer func() {
		if recover() != nil {
			reply = Reply{Text: EmptyPoolText, Pool: responses.PoolVague, Override: OverrideSafeFallback}
		}
	}()
	sel := e.draw(ctx, responses.PoolVague, "")
	return Reply{Text: sel.Text, Pool: sel.Pool, ResponseID: sel.ID, Override: OverrideSafeFallback}
}

func intentLabel(in intent.Intent) string {
	if in == intent.None {
		return ""
	}
	return in.String()
}
