package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/temcen/shoprec/pkg/models"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PostgresStore reads catalog and order history from the shop database.
//
// Expected tables:
//
//	products(id, tenant_id, name, slug, category_id, price, image_url, stock, published, featured)
//	orders(id, tenant_id, user_id, status, created_at)
//	order_items(order_id, product_id, quantity, category_id)
type PostgresStore struct {
	db DatabaseQuerier
}

func NewPostgresStore(db DatabaseQuerier) *PostgresStore {
	return &PostgresStore{db: db}
}

func eligibleStatuses() []string {
	out := make([]string, len(models.EligibleOrderStatuses))
	for i, s := range models.EligibleOrderStatuses {
		out[i] = string(s)
	}
	return out
}

func (s *PostgresStore) FindOrdersContaining(ctx context.Context, tenantID string, productID int64, recencyLimit int) ([]int64, error) {
	query := `
		SELECT o.id
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.tenant_id = $1
			AND oi.product_id = $2
			AND o.status = ANY($3)
		GROUP BY o.id, o.created_at
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $4`

	rows, err := s.db.Query(ctx, query, tenantID, productID, eligibleStatuses(), recencyLimit)
	if err != nil {
		return nil, fmt.Errorf("orders containing product query failed: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) CountProductCoOccurrences(ctx context.Context, tenantID string, orderIDs []int64, excludeProductID int64) ([]models.ProductCount, error) {
	if len(orderIDs) == 0 {
		return []models.ProductCount{}, nil
	}

	query := `
		SELECT oi.product_id, COUNT(DISTINCT oi.order_id) AS co_count
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.tenant_id = $1
			AND oi.order_id = ANY($2)
			AND oi.product_id <> $3
			AND o.status = ANY($4)
		GROUP BY oi.product_id
		ORDER BY co_count DESC, oi.product_id ASC`

	rows, err := s.db.Query(ctx, query, tenantID, orderIDs, excludeProductID, eligibleStatuses())
	if err != nil {
		return nil, fmt.Errorf("co-occurrence query failed: %w", err)
	}
	defer rows.Close()

	var counts []models.ProductCount
	for rows.Next() {
		var productID, count int64
		if err := rows.Scan(&productID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan co-occurrence count: %w", err)
		}
		counts = append(counts, models.ProductCount{ProductID: productID, Count: int(count)})
	}
	return counts, rows.Err()
}

func (s *PostgresStore) FindCatalogEntries(ctx context.Context, tenantID string, filter models.CatalogFilter) ([]models.ProductCatalogEntry, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []models.ProductCatalogEntry{}, nil
	}

	query, args := buildCatalogQuery(tenantID, filter)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	entries := []models.ProductCatalogEntry{}
	for rows.Next() {
		var (
			e          models.ProductCatalogEntry
			categoryID int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Slug, &categoryID, &e.Price, &e.ImageURL, &e.Stock, &e.Published, &e.Featured); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		if categoryID != 0 {
			e.CategoryID = models.Int64Ptr(categoryID)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func buildCatalogQuery(tenantID string, filter models.CatalogFilter) (string, []interface{}) {
	query := `
		SELECT id, name, slug, COALESCE(category_id, 0), price::float8, COALESCE(image_url, ''),
			stock, published, featured
		FROM products
		WHERE tenant_id = $1`

	args := []interface{}{tenantID}
	argIndex := 2

	if filter.CategoryID != nil {
		query += fmt.Sprintf(" AND category_id = $%d", argIndex)
		args = append(args, *filter.CategoryID)
		argIndex++
	}
	if filter.MinPrice != nil {
		query += fmt.Sprintf(" AND price >= $%d", argIndex)
		args = append(args, *filter.MinPrice)
		argIndex++
	}
	if filter.MaxPrice != nil {
		query += fmt.Sprintf(" AND price <= $%d", argIndex)
		args = append(args, *filter.MaxPrice)
		argIndex++
	}
	if filter.InStockOnly {
		query += " AND stock > 0"
	}
	if filter.PublishedOnly {
		query += " AND published = true"
	}
	if filter.IDs != nil {
		query += fmt.Sprintf(" AND id = ANY($%d)", argIndex)
		args = append(args, filter.IDs)
		argIndex++
	}
	if len(filter.ExcludeIDs) > 0 {
		query += fmt.Sprintf(" AND NOT (id = ANY($%d))", argIndex)
		args = append(args, filter.ExcludeIDs)
		argIndex++
	}

	query += " ORDER BY featured DESC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	return query, args
}

func (s *PostgresStore) FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error) {
	query := `
		SELECT oi.order_id, oi.product_id, oi.quantity, COALESCE(oi.category_id, 0), o.created_at, o.status
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.tenant_id = $1
			AND o.created_at >= $2
			AND o.status = ANY($3)`

	rows, err := s.db.Query(ctx, query, tenantID, since, eligibleStatuses())
	if err != nil {
		return nil, fmt.Errorf("interactions in window query failed: %w", err)
	}
	return scanInteractionRecords(rows)
}

func (s *PostgresStore) FindUserOrderHistory(ctx context.Context, tenantID, userID string, limit int) ([]models.InteractionRecord, error) {
	query := `
		SELECT oi.order_id, oi.product_id, oi.quantity, COALESCE(oi.category_id, 0), o.created_at, o.status
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.tenant_id = $1
			AND o.user_id = $2
			AND o.status = ANY($3)
		ORDER BY o.created_at DESC, oi.order_id DESC
		LIMIT $4`

	rows, err := s.db.Query(ctx, query, tenantID, userID, eligibleStatuses(), limit)
	if err != nil {
		return nil, fmt.Errorf("user order history query failed: %w", err)
	}
	return scanInteractionRecords(rows)
}

func scanInteractionRecords(rows pgx.Rows) ([]models.InteractionRecord, error) {
	defer rows.Close()

	var records []models.InteractionRecord
	for rows.Next() {
		var (
			r          models.InteractionRecord
			categoryID int64
			status     string
		)
		if err := rows.Scan(&r.OrderID, &r.ProductID, &r.Quantity, &categoryID, &r.OrderedAt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan interaction record: %w", err)
		}
		if categoryID != 0 {
			r.CategoryID = models.Int64Ptr(categoryID)
		}
		r.Status = models.OrderStatus(status)
		records = append(records, r)
	}
	return records, rows.Err()
}
