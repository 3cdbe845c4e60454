// Package models holds the catalog of models the relay can serve: their
// display metadata, output token ceilings, vision support and the amount of
// document text a prompt may carry.
package models

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultMaxTokens is requested when a prompt names no limit.
	DefaultMaxTokens = 2000

	// DefaultDocumentChars bounds the extracted text of one document for
	// models without an explicit limit.
	DefaultDocumentChars = 15000
)

// Capabilities describes one model.
type Capabilities struct {
	ID            string `toml:"id" json:"id"`
	Name          string `toml:"name" json:"name"`
	Provider      string `toml:"provider" json:"provider,omitempty"`
	Strength      string `toml:"strength" json:"strength"`
	Context       string `toml:"context" json:"context"`
	Note          string `toml:"note" json:"note,omitempty"`
	MaxTokens     int    `toml:"max_tokens" json:"max_tokens,omitempty"`
	Vision        bool   `toml:"vision" json:"vision"`
	DocumentChars int    `toml:"document_chars" json:"document_chars,omitempty"`
}

// DocumentLimit returns the number of characters of one document the model
// receives.
func (c Capabilities) DocumentLimit() int {
	if c.DocumentChars > 0 {
		return c.DocumentChars
	}
	return DefaultDocumentChars
}

// Unknown returns the capabilities reported for a model not in the catalog.
func Unknown(id string) Capabilities {
	return Capabilities{
		ID:       id,
		Name:     id,
		Strength: "general conversation",
		Context:  "unknown",
	}
}

// Catalog is a concurrency safe set of model capabilities. Built-in entries
// can be overridden from a models.toml file.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]Capabilities
	order  []string
}

// New returns a catalog holding caps in the given order.
func New(caps ...Capabilities) *Catalog {
	c := &Catalog{models: make(map[string]Capabilities, len(caps))}
	c.merge(caps)
	return c
}

// Default returns a catalog holding the built-in models of every provider.
func Default() *Catalog {
	return New(builtin...)
}

// Lookup returns the capabilities of id, or Unknown(id).
func (c *Catalog) Lookup(id string) Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if caps, ok := c.models[id]; ok {
		return caps
	}
	return Unknown(id)
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.models[id]
	return ok
}

// List returns every model in catalog order.
func (c *Catalog) List() []Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Capabilities, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.models[id])
	}
	return out
}

// ForProvider returns the models served by the named provider.
func (c *Catalog) ForProvider(name string) []Capabilities {
	var out []Capabilities
	for _, caps := range c.List() {
		if caps.Provider == name {
			out = append(out, caps)
		}
	}
	return out
}

// ClampMaxTokens returns the output token limit to request for model:
// requested (or DefaultMaxTokens when nil or not positive), capped at the
// model's ceiling.
func (c *Catalog) ClampMaxTokens(model string, requested *int) int {
	limit := DefaultMaxTokens
	if requested != nil && *requested > 0 {
		limit = *requested
	}

	caps := c.Lookup(model)
	if caps.MaxTokens > 0 && limit > caps.MaxTokens {
		return caps.MaxTokens
	}
	return limit
}

// catalogFile is the models.toml layout:
//
//	[[models]]
//	id = "deepseek-chat"
//	max_tokens = 8192
type catalogFile struct {
	Models []Capabilities `toml:"models"`
}

// LoadFile merges the [[models]] tables of the TOML file at path into the
// catalog. Entries replace built-ins with the same id; new ids are appended.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading model catalog: %w", err)
	}

	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing model catalog %s: %w", path, err)
	}

	for i, caps := range file.Models {
		if caps.ID == "" {
			return fmt.Errorf("parsing model catalog %s: model %d has no id", path, i)
		}
	}

	c.merge(file.Models)
	return nil
}

func (c *Catalog) merge(caps []Capabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range caps {
		if m.Name == "" {
			m.Name = m.ID
		}
		if _, ok := c.models[m.ID]; !ok {
			c.order = append(c.order, m.ID)
		}
		c.models[m.ID] = m
	}
}

// IDs returns the sorted model identifiers.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	ids := slices.Clone(c.order)
	c.mu.RUnlock()

	slices.Sort(ids)
	return ids
}
