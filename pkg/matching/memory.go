package matching

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/shared/mathutil"
)

// MemoryCatalog is an in-process Catalog over a product slice, using
// the same trigram similarity the pg_trgm-backed repository computes
// in SQL. Tests use it.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products []domain.Product
}

// NewMemoryCatalog builds a catalog over products.
func NewMemoryCatalog(products []domain.Product) *MemoryCatalog {
	return &MemoryCatalog{products: append([]domain.Product(nil), products...)}
}

// Add appends a product.
func (c *MemoryCatalog) Add(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = append(c.products, p)
}

// SearchBySKU implements Catalog.
func (c *MemoryCatalog) SearchBySKU(ctx context.Context, tenantID uuid.UUID, query string, threshold float64, limit int) ([]ScoredProduct, error) {
	return c.search(tenantID, query, threshold, limit, func(p domain.Product) string {
		return p.InternalSKU
	})
}

// SearchByText implements Catalog.
func (c *MemoryCatalog) SearchByText(ctx context.Context, tenantID uuid.UUID, query string, threshold float64, limit int) ([]ScoredProduct, error) {
	return c.search(tenantID, query, threshold, limit, func(p domain.Product) string {
		return strings.TrimSpace(p.Name + " " + p.Description)
	})
}

func (c *MemoryCatalog) search(tenantID uuid.UUID, query string, threshold float64, limit int, text func(domain.Product) string) ([]ScoredProduct, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var hits []ScoredProduct
	for _, p := range c.products {
		if p.TenantID != tenantID {
			continue
		}
		score := mathutil.TrigramSimilarity(query, text(p))
		if score >= threshold {
			hits = append(hits, ScoredProduct{Product: p, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// GetByIDs implements Catalog.
func (c *MemoryCatalog) GetByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	result := make(map[uuid.UUID]domain.Product)
	for _, p := range c.products {
		if p.TenantID == tenantID && wanted[p.ID] {
			result[p.ID] = p
		}
	}
	return result, nil
}

// GetBySKU implements Catalog.
func (c *MemoryCatalog) GetBySKU(ctx context.Context, tenantID uuid.UUID, internalSKU string) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.products {
		if p.TenantID == tenantID && p.InternalSKU == internalSKU {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

// MemoryMappings is an in-process MappingLookup.
type MemoryMappings struct {
	mu       sync.RWMutex
	mappings []domain.SKUMapping
}

// NewMemoryMappings builds a lookup over mappings.
func NewMemoryMappings(mappings []domain.SKUMapping) *MemoryMappings {
	return &MemoryMappings{mappings: append([]domain.SKUMapping(nil), mappings...)}
}

// FindConfirmed implements MappingLookup.
func (m *MemoryMappings) FindConfirmed(ctx context.Context, tenantID, customerID uuid.UUID, normalizedSKU string) (*domain.SKUMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mapping := range m.mappings {
		if mapping.TenantID == tenantID &&
			mapping.CustomerID == customerID &&
			mapping.NormalizedSKU == normalizedSKU &&
			mapping.Status == domain.MappingConfirmed {
			found := mapping
			return &found, nil
		}
	}
	return nil, nil
}

// mappingStatusRank orders statuses for Find: the strongest live
// mapping wins; DEPRECATED rows are invisible.
func mappingStatusRank(status domain.MappingStatus) int {
	switch status {
	case domain.MappingConfirmed:
		return 3
	case domain.MappingSuggested:
		return 2
	case domain.MappingRejected:
		return 1
	default:
		return 0
	}
}

// Find implements MappingStore.
func (m *MemoryMappings) Find(ctx context.Context, tenantID, customerID uuid.UUID, normalizedSKU string) (*domain.SKUMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *domain.SKUMapping
	for i := range m.mappings {
		mapping := &m.mappings[i]
		if mapping.TenantID != tenantID ||
			mapping.CustomerID != customerID ||
			mapping.NormalizedSKU != normalizedSKU {
			continue
		}
		rank := mappingStatusRank(mapping.Status)
		if rank == 0 {
			continue
		}
		if best == nil || rank > mappingStatusRank(best.Status) {
			best = mapping
		}
	}
	if best == nil {
		return nil, nil
	}
	found := *best
	return &found, nil
}

// Save implements MappingStore: update by id, append when new.
func (m *MemoryMappings) Save(ctx context.Context, mapping *domain.SKUMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	for i := range m.mappings {
		if m.mappings[i].ID == mapping.ID {
			m.mappings[i] = *mapping
			return nil
		}
	}
	m.mappings = append(m.mappings, *mapping)
	return nil
}

// MemoryPrices is an in-process PriceSource.
type MemoryPrices struct {
	mu    sync.RWMutex
	tiers []domain.CustomerPrice
}

// NewMemoryPrices builds a source over tiers.
func NewMemoryPrices(tiers []domain.CustomerPrice) *MemoryPrices {
	return &MemoryPrices{tiers: append([]domain.CustomerPrice(nil), tiers...)}
}

// TiersFor implements PriceSource.
func (p *MemoryPrices) TiersFor(ctx context.Context, tenantID, customerID uuid.UUID, internalSKU, currency string) ([]domain.CustomerPrice, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []domain.CustomerPrice
	for _, tier := range p.tiers {
		if tier.TenantID == tenantID &&
			tier.CustomerID == customerID &&
			tier.InternalSKU == internalSKU &&
			strings.EqualFold(tier.Currency, currency) {
			result = append(result, tier)
		}
	}
	return result, nil
}
