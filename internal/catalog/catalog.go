// Package catalog loads redeem catalogs from YAML documents.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"gopkg.in/yaml.v3"
)

// ErrUnknownCatalog is returned when a handler names a catalog that was never loaded.
var ErrUnknownCatalog = errors.New("unknown catalog")

type entryDocument struct {
	Key    string `yaml:"key"`
	Action string `yaml:"action"`
	Cost   *int64 `yaml:"cost"`
}

type catalogDocument struct {
	Name     string          `yaml:"name"`
	Label    string          `yaml:"label"`
	Cost     int64           `yaml:"cost"`
	Weighted bool            `yaml:"weighted"`
	Prefix   string          `yaml:"prefix"`
	Entries  []entryDocument `yaml:"entries"`
}

type fileDocument struct {
	Catalogs []catalogDocument `yaml:"catalogs"`
}

// Set holds every loaded catalog by name.
type Set struct {
	catalogs map[string]points.Catalog
}

// NewSet indexes catalogs by name; duplicate names are rejected.
func NewSet(catalogs ...points.Catalog) (Set, error) {
	set := Set{catalogs: make(map[string]points.Catalog, len(catalogs))}
	for _, catalog := range catalogs {
		key := strings.ToLower(catalog.Name())
		if _, exists := set.catalogs[key]; exists {
			return Set{}, fmt.Errorf("%w: duplicate catalog %s", points.ErrInvalidCatalog, catalog.Name())
		}
		set.catalogs[key] = catalog
	}
	return set, nil
}

// LoadFile reads a catalog document from disk.
func LoadFile(path string) (Set, error) {
	file, err := os.Open(path)
	if err != nil {
		return Set{}, fmt.Errorf("open catalogs %s: %w", path, err)
	}
	defer file.Close()
	return Load(file)
}

// Load decodes a catalog document. Unknown fields are rejected so typos surface at startup.
func Load(reader io.Reader) (Set, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	var document fileDocument
	if err := decoder.Decode(&document); err != nil {
		if errors.Is(err, io.EOF) {
			return Set{}, fmt.Errorf("%w: empty document", points.ErrInvalidCatalog)
		}
		return Set{}, fmt.Errorf("%w: %v", points.ErrInvalidCatalog, err)
	}
	catalogs := make([]points.Catalog, 0, len(document.Catalogs))
	for index, catalogDoc := range document.Catalogs {
		catalog, err := catalogDoc.build()
		if err != nil {
			return Set{}, fmt.Errorf("catalog %d: %w", index, err)
		}
		catalogs = append(catalogs, catalog)
	}
	return NewSet(catalogs...)
}

func (document catalogDocument) build() (points.Catalog, error) {
	if document.Weighted {
		entries := make([]points.CatalogEntry, 0, len(document.Entries))
		for _, entry := range document.Entries {
			cost := document.Cost
			if entry.Cost != nil {
				cost = *entry.Cost
			}
			entries = append(entries, points.CatalogEntry{
				Key:        entry.Key,
				ActionName: document.Prefix + entry.Action,
				Cost:       cost,
			})
		}
		return points.NewWeightedCatalog(document.Name, document.Label, entries)
	}
	actions := make(map[string]string, len(document.Entries))
	order := make([]string, 0, len(document.Entries))
	for _, entry := range document.Entries {
		if entry.Cost != nil && *entry.Cost != document.Cost {
			return points.Catalog{}, fmt.Errorf("%w: %s sets a cost on %s but is not weighted", points.ErrInvalidCatalog, document.Name, entry.Key)
		}
		if _, exists := actions[entry.Key]; exists {
			return points.Catalog{}, fmt.Errorf("%w: %s repeats key %s", points.ErrInvalidCatalog, document.Name, entry.Key)
		}
		actions[entry.Key] = document.Prefix + entry.Action
		order = append(order, entry.Key)
	}
	return points.NewFlatCatalog(document.Name, document.Label, document.Cost, actions, order...)
}

// Get returns the named catalog, ignoring case.
func (set Set) Get(name string) (points.Catalog, error) {
	catalog, ok := set.catalogs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return points.Catalog{}, fmt.Errorf("%w: %q", ErrUnknownCatalog, name)
	}
	return catalog, nil
}

// Names returns the loaded catalog names in sorted order.
func (set Set) Names() []string {
	names := make([]string, 0, len(set.catalogs))
	for _, catalog := range set.catalogs {
		names = append(names, catalog.Name())
	}
	sort.Strings(names)
	return names
}

// Len reports how many catalogs are loaded.
func (set Set) Len() int {
	return len(set.catalogs)
}
