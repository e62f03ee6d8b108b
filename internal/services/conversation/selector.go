package conversation

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/dreambot-go/internal/models"
	"github.com/dreambot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// EmptyPoolText is returned when a pool has no candidates.
const EmptyPoolText = "..."

// Selection is the outcome of one weighted draw.
type Selection struct {
	Pool     string
	ID       string
	Template string
	Text     string
}

// Selector draws responses from pools, favoring the least used ones.
type Selector struct {
	ledger storage.Ledger
	logger *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector backed by ledger. A nil rng is seeded from the clock.
func NewSelector(ledger storage.Ledger, logger *logrus.Logger, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{ledger: ledger, logger: logger, rng: rng}
}

// Weight is the draw weight of a response used count times.
func Weight(count int) float64 {
	n := float64(count + 1)
	return 1 / (n * n)
}

// Select picks one candidate from pool and records its use. When topic is
// set, templated candidates are preferred and the topic is interpolated.
// Ledger failures degrade to uniform weights and never fail the draw.
func (s *Selector) Select(ctx context.Context, pool models.ResponsePool, topic string) Selection {
	candidates := pool.Candidates
	if topic != "" {
		if templates := pool.Templates(); len(templates) > 0 {
			candidates = templates
		}
	}
	if len(candidates) == 0 {
		s.logger.WithField("pool", pool.Name).Warn("Selecting from empty pool")
		return Selection{Pool: pool.Name, Text: EmptyPoolText}
	}

	usage, err := s.ledger.Load(ctx, pool.Name)
	if err != nil {
		s.logger.WithError(err).WithField("pool", pool.Name).Warn("Usage unavailable, selecting uniformly")
		usage = nil
	}

	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		weights[i] = Weight(usage[c.ID].UsageCount)
	}

	chosen := candidates[s.draw(weights)]

	if _, err := s.ledger.Increment(ctx, pool.Name, chosen.ID, chosen.Text); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"pool":        pool.Name,
			"response_id": chosen.ID,
		}).Warn("Failed to record response usage")
	}

	text := chosen.Text
	if topic != "" && chosen.IsTemplate() {
		text = strings.ReplaceAll(text, models.TopicPlaceholder, topic)
	}

	return Selection{
		Pool:     pool.Name,
		ID:       chosen.ID,
		Template: chosen.Text,
		Text:     text,
	}
}

func (s *Selector) draw(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}
