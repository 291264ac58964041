// Package messages holds the user-facing bot texts, loaded from an embedded YAML catalog.
package messages

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var builtin []byte

// Catalog resolves texts by dot-separated keys such as "errors.E700".
type Catalog struct {
	entries map[string]string
}

// Parse builds a catalog from nested YAML maps of strings.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("messages: parse catalog: %w", err)
	}

	entries := make(map[string]string)
	flatten("", raw, entries)
	if len(entries) == 0 {
		return nil, errors.New("messages: catalog is empty")
	}

	return &Catalog{entries: entries}, nil
}

// T returns the text for key, or key itself when it is missing.
func (c *Catalog) T(key string) string {
	key = strings.TrimSpace(key)
	if c == nil || key == "" {
		return key
	}

	if value, ok := c.entries[key]; ok {
		return value
	}
	return key
}

// Tf formats the text for key with args.
func (c *Catalog) Tf(key string, args ...any) string {
	return fmt.Sprintf(c.T(key), args...)
}

// Has reports whether key is present.
func (c *Catalog) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.entries[key]
	return ok
}

// Keys returns all keys in sorted order.
func (c *Catalog) Keys() []string {
	if c == nil {
		return nil
	}

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func toStringMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case map[interface{}]any:
		converted := make(map[string]any, len(v))
		for key, item := range v {
			keyStr, ok := key.(string)
			if !ok {
				continue
			}
			converted[keyStr] = item
		}
		return converted
	default:
		return nil
	}
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for key, value := range in {
		if key == "" {
			continue
		}

		nextKey := key
		if prefix != "" {
			nextKey = prefix + "." + key
		}

		switch v := value.(type) {
		case string:
			out[nextKey] = v
		default:
			if child := toStringMap(v); len(child) > 0 {
				flatten(nextKey, child, out)
			}
		}
	}
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(builtin)
		if err != nil {
			// embedded at build time
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}
