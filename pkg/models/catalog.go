package models

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// EligibleOrderStatuses are the statuses whose orders count towards
// co-occurrence and trending statistics.
var EligibleOrderStatuses = []OrderStatus{OrderStatusCompleted, OrderStatusProcessing}

// Eligible reports whether orders in this status feed the statistics.
func (s OrderStatus) Eligible() bool {
	return s == OrderStatusCompleted || s == OrderStatusProcessing
}

type ProductCatalogEntry struct {
	ID         int64    `json:"id" db:"id"`
	Name       string   `json:"name" db:"name"`
	Slug       string   `json:"slug" db:"slug"`
	CategoryID *int64   `json:"category_id,omitempty" db:"category_id"`
	Price      float64  `json:"price" db:"price"`
	ImageURL   string   `json:"image_url,omitempty" db:"image_url"`
	Tokens     []string `json:"-"`
	Stock      int      `json:"stock" db:"stock"`
	Published  bool     `json:"published" db:"published"`
	Featured   bool     `json:"featured" db:"featured"`
}

// Eligible reports whether the entry may be shown to a shopper.
func (p ProductCatalogEntry) Eligible() bool {
	return p.Stock > 0 && p.Published
}

type InteractionRecord struct {
	OrderID    int64       `json:"order_id" db:"order_id"`
	ProductID  int64       `json:"product_id" db:"product_id"`
	Quantity   int         `json:"quantity" db:"quantity"`
	CategoryID *int64      `json:"category_id,omitempty" db:"category_id"`
	OrderedAt  time.Time   `json:"ordered_at" db:"ordered_at"`
	Status     OrderStatus `json:"status" db:"status"`
}

type ProductCount struct {
	ProductID int64 `json:"product_id"`
	Count     int   `json:"count"`
}

// CatalogFilter narrows FindCatalogEntries. Zero values mean "no constraint".
// Results are ordered featured first, then by id ascending.
type CatalogFilter struct {
	CategoryID    *int64
	MinPrice      *float64
	MaxPrice      *float64
	InStockOnly   bool
	PublishedOnly bool
	IDs           []int64
	ExcludeIDs    []int64
	Limit         int
}

// EligibleOnly returns a copy of f restricted to in-stock, published products.
func (f CatalogFilter) EligibleOnly() CatalogFilter {
	f.InStockOnly = true
	f.PublishedOnly = true
	return f
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
