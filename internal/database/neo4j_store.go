package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/temcen/shoprec/pkg/models"
)

// GraphStore reads catalog and order history from a Neo4j graph of
//
//	(:Order {id, tenant_id, user_id, status, ordered_at})-[:CONTAINS {quantity, category_id}]->(:Product)
//
// where ordered_at is epoch milliseconds and products carry the catalog
// attributes as properties.
type GraphStore struct {
	driver neo4j.DriverWithContext
}

func NewGraphStore(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{driver: driver}
}

type recordValues map[string]interface{}

func (s *GraphStore) run(ctx context.Context, cypher string, params map[string]interface{}) ([]recordValues, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	var out []recordValues
	for result.Next(ctx) {
		record := result.Record()
		values := make(recordValues, len(record.Keys))
		for i, key := range record.Keys {
			values[key] = record.Values[i]
		}
		out = append(out, values)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GraphStore) FindOrdersContaining(ctx context.Context, tenantID string, productID int64, recencyLimit int) ([]int64, error) {
	query := `
		MATCH (o:Order {tenant_id: $tenantId})-[:CONTAINS]->(p:Product {tenant_id: $tenantId, id: $productId})
		WHERE o.status IN $statuses
		RETURN DISTINCT o.id AS order_id, o.ordered_at AS ordered_at
		ORDER BY ordered_at DESC, order_id DESC
		LIMIT $limit`

	records, err := s.run(ctx, query, map[string]interface{}{
		"tenantId":  tenantID,
		"productId": productID,
		"statuses":  eligibleStatuses(),
		"limit":     recencyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("graph orders containing product query failed: %w", err)
	}

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, asInt64(r["order_id"]))
	}
	return ids, nil
}

func (s *GraphStore) CountProductCoOccurrences(ctx context.Context, tenantID string, orderIDs []int64, excludeProductID int64) ([]models.ProductCount, error) {
	if len(orderIDs) == 0 {
		return []models.ProductCount{}, nil
	}

	query := `
		MATCH (o:Order {tenant_id: $tenantId})-[:CONTAINS]->(p:Product)
		WHERE o.id IN $orderIds
			AND o.status IN $statuses
			AND p.id <> $excludeId
		RETURN p.id AS product_id, count(DISTINCT o) AS co_count
		ORDER BY co_count DESC, product_id ASC`

	records, err := s.run(ctx, query, map[string]interface{}{
		"tenantId":  tenantID,
		"orderIds":  orderIDs,
		"statuses":  eligibleStatuses(),
		"excludeId": excludeProductID,
	})
	if err != nil {
		return nil, fmt.Errorf("graph co-occurrence query failed: %w", err)
	}

	counts := make([]models.ProductCount, 0, len(records))
	for _, r := range records {
		counts = append(counts, models.ProductCount{
			ProductID: asInt64(r["product_id"]),
			Count:     int(asInt64(r["co_count"])),
		})
	}
	return counts, nil
}

func (s *GraphStore) FindCatalogEntries(ctx context.Context, tenantID string, filter models.CatalogFilter) ([]models.ProductCatalogEntry, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []models.ProductCatalogEntry{}, nil
	}

	query, params := buildCatalogCypher(tenantID, filter)
	records, err := s.run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("graph catalog query failed: %w", err)
	}

	entries := make([]models.ProductCatalogEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, recordToEntry(r))
	}
	return entries, nil
}

func buildCatalogCypher(tenantID string, filter models.CatalogFilter) (string, map[string]interface{}) {
	conditions := []string{"p.tenant_id = $tenantId"}
	params := map[string]interface{}{"tenantId": tenantID}

	if filter.CategoryID != nil {
		conditions = append(conditions, "p.category_id = $categoryId")
		params["categoryId"] = *filter.CategoryID
	}
	if filter.MinPrice != nil {
		conditions = append(conditions, "p.price >= $minPrice")
		params["minPrice"] = *filter.MinPrice
	}
	if filter.MaxPrice != nil {
		conditions = append(conditions, "p.price <= $maxPrice")
		params["maxPrice"] = *filter.MaxPrice
	}
	if filter.InStockOnly {
		conditions = append(conditions, "p.stock > 0")
	}
	if filter.PublishedOnly {
		conditions = append(conditions, "p.published = true")
	}
	if filter.IDs != nil {
		conditions = append(conditions, "p.id IN $ids")
		params["ids"] = filter.IDs
	}
	if len(filter.ExcludeIDs) > 0 {
		conditions = append(conditions, "NOT p.id IN $excludeIds")
		params["excludeIds"] = filter.ExcludeIDs
	}

	query := `
		MATCH (p:Product)
		WHERE ` + strings.Join(conditions, " AND ") + `
		RETURN p.id AS id, p.name AS name, p.slug AS slug, p.category_id AS category_id,
			p.price AS price, p.image_url AS image_url, p.stock AS stock,
			p.published AS published, p.featured AS featured
		ORDER BY coalesce(p.featured, false) DESC, id ASC`

	if filter.Limit > 0 {
		query += "\n\t\tLIMIT $limit"
		params["limit"] = filter.Limit
	}

	return query, params
}

func (s *GraphStore) FindInteractionsInWindow(ctx context.Context, tenantID string, since time.Time) ([]models.InteractionRecord, error) {
	query := `
		MATCH (o:Order {tenant_id: $tenantId})-[c:CONTAINS]->(p:Product)
		WHERE o.ordered_at >= $since
			AND o.status IN $statuses
		RETURN o.id AS order_id, p.id AS product_id, c.quantity AS quantity,
			c.category_id AS category_id, o.ordered_at AS ordered_at, o.status AS status`

	records, err := s.run(ctx, query, map[string]interface{}{
		"tenantId": tenantID,
		"since":    since.UnixMilli(),
		"statuses": eligibleStatuses(),
	})
	if err != nil {
		return nil, fmt.Errorf("graph interactions in window query failed: %w", err)
	}
	return recordsToInteractions(records), nil
}

func (s *GraphStore) FindUserOrderHistory(ctx context.Context, tenantID, userID string, limit int) ([]models.InteractionRecord, error) {
	query := `
		MATCH (o:Order {tenant_id: $tenantId, user_id: $userId})-[c:CONTAINS]->(p:Product)
		WHERE o.status IN $statuses
		RETURN o.id AS order_id, p.id AS product_id, c.quantity AS quantity,
			c.category_id AS category_id, o.ordered_at AS ordered_at, o.status AS status
		ORDER BY ordered_at DESC, order_id DESC
		LIMIT $limit`

	records, err := s.run(ctx, query, map[string]interface{}{
		"tenantId": tenantID,
		"userId":   userID,
		"statuses": eligibleStatuses(),
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("graph user order history query failed: %w", err)
	}
	return recordsToInteractions(records), nil
}

// Record conversion helpers. Neo4j returns integers as int64 and floats as
// float64; missing properties come back as nil.

func recordToEntry(r recordValues) models.ProductCatalogEntry {
	e := models.ProductCatalogEntry{
		ID:        asInt64(r["id"]),
		Name:      asString(r["name"]),
		Slug:      asString(r["slug"]),
		Price:     asFloat64(r["price"]),
		ImageURL:  asString(r["image_url"]),
		Stock:     int(asInt64(r["stock"])),
		Published: asBool(r["published"]),
		Featured:  asBool(r["featured"]),
	}
	if r["category_id"] != nil {
		e.CategoryID = models.Int64Ptr(asInt64(r["category_id"]))
	}
	return e
}

func recordsToInteractions(records []recordValues) []models.InteractionRecord {
	out := make([]models.InteractionRecord, 0, len(records))
	for _, r := range records {
		ir := models.InteractionRecord{
			OrderID:   asInt64(r["order_id"]),
			ProductID: asInt64(r["product_id"]),
			Quantity:  int(asInt64(r["quantity"])),
			OrderedAt: time.UnixMilli(asInt64(r["ordered_at"])).UTC(),
			Status:    models.OrderStatus(asString(r["status"])),
		}
		if r["category_id"] != nil {
			ir.CategoryID = models.Int64Ptr(asInt64(r["category_id"]))
		}
		out = append(out, ir)
	}
	return out
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
