package adapters

import (
	"fmt"
	"sort"

	"lending-adapters/internal/adapters/aave"
	"lending-adapters/internal/adapters/compound"
	"lending-adapters/internal/adapters/pool"
	"lending-adapters/internal/adapters/vault"
	"lending-adapters/internal/evm"
)

// factories maps product IDs to strategy constructors.
var factories = map[string]func(evm.Backend) pool.Protocol{
	"compound-optimizer": func(b evm.Backend) pool.Protocol { return compound.New(b) },
	"aave-optimizer":     func(b evm.Backend) pool.Protocol { return aave.New(b) },
	"supply-vault":       func(b evm.Backend) pool.Protocol { return vault.New(b) },
}

// New creates the adapter for a product ID.
func New(productID string, backend evm.Backend, opts ...pool.Option) (Adapter, error) {
	factory, ok := factories[productID]
	if !ok {
		return nil, fmt.Errorf("unknown product %q (known: %v)", productID, Products())
	}
	return pool.New(factory(backend), backend, opts...), nil
}

// Products lists the known product IDs in stable order.
func Products() []string {
	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
