package points

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the ledgers known to a process, keyed by name.
type Registry struct {
	mutex   sync.RWMutex
	ledgers map[LedgerName]*Ledger
}

// NewRegistry returns a registry populated with the supplied ledgers.
func NewRegistry(ledgers ...*Ledger) (*Registry, error) {
	registry := &Registry{ledgers: map[LedgerName]*Ledger{}}
	for _, ledger := range ledgers {
		if err := registry.Register(ledger); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds a ledger; names must be unique.
func (registry *Registry) Register(ledger *Ledger) error {
	if ledger == nil {
		return fmt.Errorf("%w: ledger is nil", ErrInvalidServiceConfig)
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, exists := registry.ledgers[ledger.Name()]; exists {
		return fmt.Errorf("%w: duplicate ledger %s", ErrInvalidServiceConfig, ledger.Name())
	}
	registry.ledgers[ledger.Name()] = ledger
	return nil
}

// Ledger returns the ledger registered under name.
func (registry *Registry) Ledger(name string) (*Ledger, error) {
	ledgerName, err := NewLedgerName(name)
	if err != nil {
		return nil, err
	}
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	ledger, ok := registry.ledgers[ledgerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", ErrInvalidLedgerName, name)
	}
	return ledger, nil
}

// Names returns the registered ledger names in sorted order.
func (registry *Registry) Names() []string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	names := make([]string, 0, len(registry.ledgers))
	for name := range registry.ledgers {
		names = append(names, name.String())
	}
	sort.Strings(names)
	return names
}
