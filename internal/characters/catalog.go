// Package characters resolves character ids to system prompts.
package characters

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ashureev/persona-relay/internal/domain"
	"gopkg.in/yaml.v3"
)

// NeutralPrompt is used when a character id is unknown.
const NeutralPrompt = "Be neutral and helpful."

// builtins are always present in a new catalog. File entries with the same
// id override them.
var builtins = []domain.Character{
	{
		ID:           "buzzwordBot",
		Name:         "Buzzword Bot",
		SystemPrompt: "Use a lot of buzzy and garbage words. Be very short. Call me cutie-patutie.",
	},
	{
		ID:           "angrySkeleton",
		Name:         "Angry Skeleton",
		SystemPrompt: "Respond with short, angry, and sarcastic remarks. Use dark humor and be very blunt.",
	},
}

// Builtins returns a copy of the built-in characters.
func Builtins() []domain.Character {
	out := make([]domain.Character, len(builtins))
	copy(out, builtins)
	return out
}

// catalogFile is the on-disk YAML layout:
//
//	characters:
//	  - id: pirate
//	    name: Captain
//	    prompt: Talk like a pirate.
type catalogFile struct {
	Characters []domain.Character `yaml:"characters"`
}

// ParseCatalog decodes a YAML catalog. Entries without an id or prompt are
// rejected.
func ParseCatalog(data []byte) ([]domain.Character, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse character catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Characters))
	for i, c := range f.Characters {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("character catalog entry %d: missing id", i)
		}
		if strings.TrimSpace(c.SystemPrompt) == "" {
			return nil, fmt.Errorf("character %q: missing prompt", c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("character %q: duplicate id", c.ID)
		}
		seen[c.ID] = struct{}{}
		f.Characters[i] = c
	}
	return f.Characters, nil
}

// LoadFile reads and parses a YAML catalog file.
func LoadFile(path string) ([]domain.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Catalog is an in-memory character set safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	chars map[string]domain.Character
}

// NewCatalog returns a catalog holding the built-ins plus extra.
func NewCatalog(extra ...domain.Character) *Catalog {
	c := &Catalog{}
	c.Replace(extra)
	return c
}

// Replace swaps the non-built-in entries for chars.
func (c *Catalog) Replace(chars []domain.Character) {
	next := make(map[string]domain.Character, len(builtins)+len(chars))
	for _, b := range builtins {
		next[b.ID] = b
	}
	for _, ch := range chars {
		next[ch.ID] = ch
	}

	c.mu.Lock()
	c.chars = next
	c.mu.Unlock()
}

// Get returns the character with id.
func (c *Catalog) Get(id string) (domain.Character, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.chars[id]
	return ch, ok
}

// List returns all characters sorted by id.
func (c *Catalog) List() []domain.Character {
	c.mu.RLock()
	out := make([]domain.Character, 0, len(c.chars))
	for _, ch := range c.chars {
		out = append(out, ch)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
