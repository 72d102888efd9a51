// Package themes is the closed vocabulary of weekly presentation themes.
package themes

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// None is the sentinel for "no theme chosen".
const None = "none"

type Theme struct {
	Key        string `yaml:"key" json:"key"`
	Label      string `yaml:"label" json:"label"`
	Emoji      string `yaml:"emoji" json:"emoji"`
	Background string `yaml:"background" json:"background"` // light app background
	Stage      string `yaml:"stage" json:"stage"`           // dark presentation background
	Accent     string `yaml:"accent" json:"accent"`
}

//go:embed themes.yaml
var catalogYAML []byte

type Catalog struct {
	ordered []Theme
	byKey   map[string]Theme
}

// Parse reads a catalog document. It must contain the None entry.
func Parse(doc []byte) (*Catalog, error) {
	var list []Theme
	if err := yaml.Unmarshal(doc, &list); err != nil {
		return nil, fmt.Errorf("parse theme catalog: %w", err)
	}
	c := &Catalog{byKey: make(map[string]Theme, len(list))}
	for _, t := range list {
		if t.Key == "" {
			return nil, fmt.Errorf("theme catalog: entry without key")
		}
		if _, dup := c.byKey[t.Key]; dup {
			return nil, fmt.Errorf("theme catalog: duplicate key %q", t.Key)
		}
		c.byKey[t.Key] = t
		c.ordered = append(c.ordered, t)
	}
	if _, ok := c.byKey[None]; !ok {
		return nil, fmt.Errorf("theme catalog: missing %q entry", None)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Has(key string) bool {
	_, ok := c.byKey[key]
	return ok
}

// Lookup returns the theme for key, or the None theme for unknown keys.
func (c *Catalog) Lookup(key string) Theme {
	if t, ok := c.byKey[key]; ok {
		return t
	}
	return c.byKey[None]
}

func (c *Catalog) All() []Theme {
	out := make([]Theme, len(c.ordered))
	copy(out, c.ordered)
	return out
}
