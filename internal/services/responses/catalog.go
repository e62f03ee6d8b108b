package responses

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dreambot-go/internal/models"
	"gopkg.in/yaml.v3"
)

// Pool names used by the conversation engine outside the intent mapping.
const (
	PoolKebabIntense = "kebab_intense"
	PoolRepetition   = "repetition"
	PoolLoreCallback = "lore_callback"
	PoolEscape       = "escape"
	PoolEightBall    = "8ball"
	PoolVague        = "vague"
	PoolWhispers     = "whispers"
)

// ContextPools are pools selected by conversational state rather than intent.
var ContextPools = []string{PoolKebabIntense, PoolRepetition, PoolLoreCallback, PoolEscape}

//go:embed pools.yaml
var defaultCatalog []byte

type catalogFile struct {
	Pools      map[string][]models.ResponseCandidate `yaml:"pools"`
	Activities []string                              `yaml:"activities"`
}

// Catalog is the immutable set of response pools loaded at startup.
type Catalog struct {
	pools      map[string]models.ResponsePool
	activities []string
}

// Load parses the built-in catalog.
func Load() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile parses a catalog from path, or the built-in catalog when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Load()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{
		pools:      make(map[string]models.ResponsePool, len(file.Pools)),
		activities: file.Activities,
	}
	for name, candidates := range file.Pools {
		if err := validatePool(name, candidates); err != nil {
			return nil, err
		}
		c.pools[name] = models.ResponsePool{Name: name, Candidates: candidates}
	}
	return c, nil
}

func validatePool(name string, candidates []models.ResponseCandidate) error {
	if len(candidates) == 0 {
		return fmt.Errorf("pool %q is empty", name)
	}
	seen := make(map[string]struct{}, len(candidates))
	for i, cand := range candidates {
		if strings.TrimSpace(cand.ID) == "" {
			return fmt.Errorf("pool %q entry %d has no id", name, i)
		}
		if strings.TrimSpace(cand.Text) == "" {
			return fmt.Errorf("pool %q entry %s has no text", name, cand.ID)
		}
		if _, dup := seen[cand.ID]; dup {
			return fmt.Errorf("pool %q has duplicate id %s", name, cand.ID)
		}
		seen[cand.ID] = struct{}{}
	}
	return nil
}

// Require fails when any named pool is missing.
func (c *Catalog) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := c.pools[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("catalog is missing pools: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Pool returns the named pool.
func (c *Catalog) Pool(name string) (models.ResponsePool, bool) {
	p, ok := c.pools[name]
	return p, ok
}

// Names lists pool names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.pools))
	for n := range c.pools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Activities returns the presence texts for status rotation.
func (c *Catalog) Activities() []string {
	out := make([]string, len(c.activities))
	copy(out, c.activities)
	return out
}
