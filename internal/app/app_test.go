package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/internal/handlers"
	"github.com/temcen/shoprec/internal/messaging"
	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/pkg/models"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Recommendation.Store = database.StoreMemory
	cfg.Auth.Enabled = false

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := database.NewMemoryStore()
	recent := time.Now().Add(-time.Hour)
	store.AddProducts("T1",
		models.ProductCatalogEntry{ID: 101, Name: "Trail Shoe", Price: 100, Stock: 5, Published: true, CategoryID: models.Int64Ptr(1)},
		models.ProductCatalogEntry{ID: 201, Name: "Wool Socks", Price: 10, Stock: 5, Published: true, CategoryID: models.Int64Ptr(2)},
		models.ProductCatalogEntry{ID: 202, Name: "Shoe Laces", Price: 5, Stock: 5, Published: true, CategoryID: models.Int64Ptr(2)},
	)
	store.AddOrders("T1",
		database.MemoryOrder{ID: 1, UserID: "a", Status: models.OrderStatusCompleted, OrderedAt: recent,
			Lines: []database.OrderLine{{ProductID: 101, Quantity: 1}, {ProductID: 201, Quantity: 1}}},
		database.MemoryOrder{ID: 2, UserID: "b", Status: models.OrderStatusCompleted, OrderedAt: recent,
			Lines: []database.OrderLine{{ProductID: 101, Quantity: 1}, {ProductID: 201, Quantity: 2}, {ProductID: 202, Quantity: 1}}},
	)

	db := &database.Database{Memory: store}
	reg := prometheus.NewRegistry()
	svc, err := services.New(cfg, logger, db, reg)
	require.NoError(t, err)

	h := handlers.New(logger, svc, messaging.NewDirectSink(svc.Engine))
	return newRouter(cfg, logger, h, reg)
}

func do(router *gin.Engine, method, path, body string, tenant bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tenant {
		req.Header.Set("X-Tenant-ID", "T1")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func productIDs(t *testing.T, w *httptest.ResponseRecorder) []int64 {
	t.Helper()
	var resp models.RecommendationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	ids := make([]int64, len(resp.Recommendations))
	for i, r := range resp.Recommendations {
		ids[i] = r.ProductID
	}
	return ids
}

func TestRouter_EndToEnd(t *testing.T) {
	router := testRouter(t)

	w := do(router, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	w = do(router, http.MethodGet, "/api/v1/trending", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/v1/products/101/frequently-bought-together", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{201, 202}, productIDs(t, w))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(router, http.MethodGet, "/api/v1/trending?limit=2", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{101, 201}, productIDs(t, w))

	w = do(router, http.MethodPost, "/api/v1/interactions/purchase", `{"user_id":"c","product_id":101,"category_id":1}`, true)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(router, http.MethodPost, "/api/v1/interactions/rating", `{"user_id":"c","product_id":101,"rating":9}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/v1/recommendations", `{"product_id":101,"limit":5,"strategies":[{"name":"co-occurrence","weight":1}]}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{201, 202}, productIDs(t, w))

	w = do(router, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recommendation_result_size")
}
