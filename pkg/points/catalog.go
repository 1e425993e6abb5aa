package points

import (
	"fmt"
	"slices"
	"strings"
)

// CatalogEntry maps a redeem key to a host action and its cost.
type CatalogEntry struct {
	Key        string
	ActionName string
	Cost       int64
}

// Catalog is the ordered set of keys offered by one redeem command.
type Catalog struct {
	name     string
	label    string
	weighted bool
	flatCost int64
	entries  []CatalogEntry
	byKey    map[string]int
}

// NewFlatCatalog builds a catalog where every key costs the same; a blank key picks at random.
func NewFlatCatalog(name string, label string, cost int64, actions map[string]string, order ...string) (Catalog, error) {
	if cost < 0 {
		return Catalog{}, fmt.Errorf("%w: %d", ErrInvalidCost, cost)
	}
	entries := make([]CatalogEntry, 0, len(actions))
	for _, key := range orderedKeys(actions, order) {
		entries = append(entries, CatalogEntry{Key: key, ActionName: actions[key], Cost: cost})
	}
	catalog, err := newCatalog(name, label, false, entries)
	if err != nil {
		return Catalog{}, err
	}
	catalog.flatCost = cost
	return catalog, nil
}

// NewWeightedCatalog builds a catalog with a cost per key; a key is always required.
func NewWeightedCatalog(name string, label string, entries []CatalogEntry) (Catalog, error) {
	for _, entry := range entries {
		if entry.Cost < 0 {
			return Catalog{}, fmt.Errorf("%w: %s costs %d", ErrInvalidCost, entry.Key, entry.Cost)
		}
	}
	return newCatalog(name, label, true, entries)
}

func newCatalog(name string, label string, weighted bool, entries []CatalogEntry) (Catalog, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Catalog{}, fmt.Errorf("%w: empty name", ErrInvalidCatalog)
	}
	if len(entries) == 0 {
		return Catalog{}, fmt.Errorf("%w: %s has no entries", ErrInvalidCatalog, trimmedName)
	}
	catalog := Catalog{
		name:     trimmedName,
		label:    strings.TrimSpace(label),
		weighted: weighted,
		entries:  make([]CatalogEntry, 0, len(entries)),
		byKey:    make(map[string]int, len(entries)),
	}
	if catalog.label == "" {
		catalog.label = trimmedName
	}
	for _, entry := range entries {
		key := strings.TrimSpace(entry.Key)
		actionName := strings.TrimSpace(entry.ActionName)
		if key == "" || actionName == "" {
			return Catalog{}, fmt.Errorf("%w: %s has an entry without key or action", ErrInvalidCatalog, trimmedName)
		}
		normalized := strings.ToLower(key)
		if _, exists := catalog.byKey[normalized]; exists {
			return Catalog{}, fmt.Errorf("%w: %s repeats key %s", ErrInvalidCatalog, trimmedName, key)
		}
		catalog.byKey[normalized] = len(catalog.entries)
		catalog.entries = append(catalog.entries, CatalogEntry{Key: key, ActionName: actionName, Cost: entry.Cost})
	}
	return catalog, nil
}

// Name returns the catalog identifier.
func (catalog Catalog) Name() string {
	return catalog.name
}

// Label returns the display name used in chat replies.
func (catalog Catalog) Label() string {
	return catalog.label
}

// Weighted reports whether costs differ per key.
func (catalog Catalog) Weighted() bool {
	return catalog.weighted
}

// FlatCost returns the shared cost of a flat catalog.
func (catalog Catalog) FlatCost() int64 {
	return catalog.flatCost
}

// Lookup finds an entry by key, ignoring case.
func (catalog Catalog) Lookup(key string) (CatalogEntry, bool) {
	index, ok := catalog.byKey[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return CatalogEntry{}, false
	}
	return catalog.entries[index], true
}

// Entries returns the entries in declaration order.
func (catalog Catalog) Entries() []CatalogEntry {
	return append([]CatalogEntry(nil), catalog.entries...)
}

func orderedKeys(actions map[string]string, order []string) []string {
	keys := make([]string, 0, len(actions))
	seen := make(map[string]struct{}, len(actions))
	for _, key := range order {
		if _, ok := actions[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	remaining := make([]string, 0, len(actions)-len(keys))
	for key := range actions {
		if _, ok := seen[key]; !ok {
			remaining = append(remaining, key)
		}
	}
	slices.Sort(remaining)
	return append(keys, remaining...)
}
