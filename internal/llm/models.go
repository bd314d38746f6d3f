package llm

import (
	"fmt"
	"sort"

	"github.com/bmf87/l3vision/internal/domain"
)

// Model is one selectable vision model.
type Model struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// Catalog lists the vision models a user can pick from, grouped by provider.
// It is read-only after construction.
type Catalog struct {
	providers    []string
	byProvider   map[string][]Model
	byID         map[string]Model
	defaultModel string
}

// NewCatalog builds a catalog. order fixes provider listing order; providers
// missing from it are appended alphabetically. defaultModel must be listed.
func NewCatalog(models map[string][]string, order []string, defaultModel string) (*Catalog, error) {
	if len(models) == 0 {
		return nil, domain.ConfigError("model catalog is empty", nil)
	}

	c := &Catalog{
		byProvider: make(map[string][]Model, len(models)),
		byID:       make(map[string]Model),
	}

	seen := make(map[string]bool, len(models))
	for _, p := range order {
		if _, ok := models[p]; ok && !seen[p] {
			c.providers = append(c.providers, p)
			seen[p] = true
		}
	}
	var rest []string
	for p := range models {
		if !seen[p] {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	c.providers = append(c.providers, rest...)

	for _, p := range c.providers {
		for _, id := range models[p] {
			m := Model{ID: id, Provider: p}
			c.byProvider[p] = append(c.byProvider[p], m)
			c.byID[id] = m
		}
	}

	all := c.All()
	if len(all) == 0 {
		return nil, domain.ConfigError("model catalog lists no models", nil)
	}
	if defaultModel == "" {
		defaultModel = all[0].ID
	}
	if _, ok := c.byID[defaultModel]; !ok {
		return nil, domain.ConfigError(fmt.Sprintf("default model %q is not in the catalog", defaultModel), nil)
	}
	c.defaultModel = defaultModel

	return c, nil
}

// Providers returns provider names in listing order.
func (c *Catalog) Providers() []string {
	return append([]string(nil), c.providers...)
}

// ByProvider returns the models offered by provider.
func (c *Catalog) ByProvider(provider string) ([]Model, error) {
	models, ok := c.byProvider[provider]
	if !ok {
		return nil, domain.ValidationError(fmt.Sprintf("unknown provider %q", provider), nil)
	}
	return append([]Model(nil), models...), nil
}

// ByID looks up a model.
func (c *Catalog) ByID(id string) (Model, error) {
	m, ok := c.byID[id]
	if !ok {
		return Model{}, domain.ValidationError(fmt.Sprintf("unknown model %q", id), nil)
	}
	return m, nil
}

// All returns every model, grouped by provider in listing order.
func (c *Catalog) All() []Model {
	var all []Model
	for _, p := range c.providers {
		all = append(all, c.byProvider[p]...)
	}
	return all
}

// Default returns the model used for new sessions.
func (c *Catalog) Default() Model {
	return c.byID[c.defaultModel]
}
