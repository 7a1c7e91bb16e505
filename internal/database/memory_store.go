package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/temcen/shoprec/pkg/models"
)

// OrderLine is one product of a MemoryOrder.
type OrderLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// MemoryOrder is an order as held by MemoryStore.
type MemoryOrder struct {
	ID        int64              `json:"id"`
	UserID    string             `json:"user_id"`
	Status    models.OrderStatus `json:"status"`
	OrderedAt time.Time          `json:"ordered_at"`
	Lines     []OrderLine        `json:"lines"`
}

type tenantData struct {
	products map[int64]models.ProductCatalogEntry
	orders   []MemoryOrder
	// category of each line at the time the order was added
	lineCategories map[int64]map[int64]*int64
}

// MemoryStore is an interaction store held entirely in process memory. It is
// used for development and as the fixture behind engine tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenantData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*tenantData)}
}

func (m *MemoryStore) tenant(tenantID string) *tenantData {
	t, ok := m.tenants[tenantID]
	if !ok {
		t = &tenantData{
			products:       make(map[int64]models.ProductCatalogEntry),
			lineCategories: make(map[int64]map[int64]*int64),
		}
		m.tenants[tenantID] = t
	}
	return t
}

// AddProducts inserts or replaces catalog entries.
func (m *MemoryStore) AddProducts(tenantID string, products ...models.ProductCatalogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	for _, p := range products {
		t.products[p.ID] = p
	}
}

// AddOrders appends orders. Each line keeps the category its product has at
// insertion time.
func (m *MemoryStore) AddOrders(tenantID string, orders ...MemoryOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	for _, o := range orders {
		categories := make(map[int64]*int64, len(o.Lines))
		for _, l := range o.Lines {
			if p, ok := t.products[l.ProductID]; ok && p.CategoryID != nil {
				categories[l.ProductID] = models.Int64Ptr(*p.CategoryID)
			}
		}
		t.lineCategories[o.ID] = categories
		t.orders = append(t.orders, o)
	}
}

type seedFile struct {
	Tenants map[string]struct {
		Products []models.ProductCatalogEntry `json:"products"`
		Orders   []MemoryOrder                `json:"orders"`
	} `json:"tenants"`
}

// LoadFile seeds the store from a JSON document of the form
// {"tenants": {"<id>": {"products": [...], "orders": [...]}}}.
func (m *MemoryStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for tenantID, t := range seed.Tenants {
		m.AddProducts(tenantID, t.Products...)
		m.AddOrders(tenantID, t.Orders...)
	}
	return nil
}

func (m *MemoryStore) eligibleOrders(tenantID string) ([]MemoryOrder, *tenantData) {
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	out := make([]MemoryOrder, 0, len(t.orders))
	for _, o := range t.orders {
		if o.Status.Eligible() {
			out = append(out, o)
		}
	}
	return out, t
}

// sortRecent orders by time descending, then id descending.
func sortRecent(orders []MemoryOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].OrderedAt.Equal(orders[j].OrderedAt) {
			return orders[i].OrderedAt.After(orders[j].OrderedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

func (m *MemoryStore) FindOrdersContaining(ctx context.Context, tenantID string, productID int64, recencyLimit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders, _ := m.eligibleOrders(tenantID)
	sortRecent(orders)

	var ids []int64
	for _, o := range orders {
		if !o.contains(productID) {
			continue
		}
		ids = append(ids, o.ID)
		if recencyLimit > 0 && len(ids) >= recencyLimit {
			break
		}
	}
	return ids, nil
}

func (m *MemoryStore) CountProductCoOccurrences(ctx context.Context, tenantID string, orderIDs []int64, excludeProductID int64) ([]models.ProductCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[int64]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = struct{}{}
	}

	orders, _ := m.eligibleOrders(tenantID)
	counts := make(map[int64]int)
	for _, o := range orders {
		if _, ok := wanted[o.ID]; !ok {
			continue
		}
		seen := make(map[int64]struct{}, len(o.Lines))
		for _, l := range o.Lines {
			if l.ProductID == excludeProductID {
				continue
			}
			if _, dup := seen[l.ProductID]; dup {
				continue
			}
			seen[l.ProductID] = struct{}{}
			counts[l.ProductID]++
		}
	}

	out := make([]models.ProductCount, 0, len(counts))
	for id, c := range counts {
		out = append(out, models.ProductCount{ProductID: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (m *MemoryStore) FindCatalogEntries(ctx context.Context, tenantID string, filter models.CatalogFilter) ([]models.ProductCatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return []models.ProductCatalogEntry{}, nil
	}

	var include map[int64]struct{}
	if filter.IDs != nil {
		include = make(map[int64]struct{}, len(filter.IDs))
		for _, id := range filter.IDs {
			include[id] = struct{}{}
		}
	}
	exclude := make(map[int64]struct{}, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		exclude[id] = struct{}{}
	}

	out := make([]models.ProductCatalogEntry, 0)
	for _, p := range t.products {
		if include != nil {
			if _, ok := include[p.ID]; !ok {
				continue
			}
		}
		if _, ok := exclude[p.ID]; ok {
			continue
		}
		if filter.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *filter.CategoryID) {
			continue
		}
		if filter.MinPrice != nil && p.Price < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && p.Price > *filter.MaxPrice {
			continue
		}
		if filter.InStockOnly && p.Stock <= 0 {
			continue
		}
		if filter.PublishedOnly && !p.Published {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Featured != out[j].Featured {
			return out[i].Featured
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders, t := m.eligibleOrders(tenantID)
	var records []models.InteractionRecord
	for _, o := range orders {
		if o.OrderedAt.Before(since) {
			continue
		}
		records = append(records, t.records(o)...)
	}
	return records, nil
}

func (m *MemoryStore) FindUserOrderHistory(ctx context.Context, tenantID, userID string, limit int) ([]models.InteractionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders, t := m.eligibleOrders(tenantID)
	sortRecent(orders)

	var records []models.InteractionRecord
	for _, o := range orders {
		if o.UserID != userID {
			continue
		}
		for _, r := range t.records(o) {
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
			records = append(records, r)
		}
	}
	return records, nil
}

func (o MemoryOrder) contains(productID int64) bool {
	for _, l := range o.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

func (t *tenantData) records(o MemoryOrder) []models.InteractionRecord {
	records := make([]models.InteractionRecord, 0, len(o.Lines))
	for _, l := range o.Lines {
		records = append(records, models.InteractionRecord{
			OrderID:    o.ID,
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			CategoryID: t.lineCategories[o.ID][l.ProductID],
			OrderedAt:  o.OrderedAt,
			Status:     o.Status,
		})
	}
	return records
}
