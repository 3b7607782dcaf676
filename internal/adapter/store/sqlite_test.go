package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/domain"
)

func newSeededStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Seed(context.Background()))
	return s
}

func TestSearchProductsByColor(t *testing.T) {
	s := newSeededStore(t)

	products, err := s.SearchProducts(context.Background(), "blue", 10)
	require.NoError(t, err)
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.Equal(t, "blue", p.Color, "product %s", p.SKU)
	}
}

func TestSearchProductsByName(t *testing.T) {
	s := newSeededStore(t)

	products, err := s.SearchProducts(context.Background(), "PRIMER", 10)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "PRM-UN-1L", products[0].SKU)
}

func TestSearchProductsLimit(t *testing.T) {
	s := newSeededStore(t)

	products, err := s.SearchProducts(context.Background(), "", 3)
	require.NoError(t, err)
	assert.Len(t, products, 3)
}

func TestGetOrder(t *testing.T) {
	s := newSeededStore(t)

	order, err := s.GetOrder(context.Background(), "1042")
	require.NoError(t, err)
	assert.Equal(t, "shipped", order.Status)
	assert.NotEmpty(t, order.Tracking)
	assert.Len(t, order.Items, 2)
	assert.False(t, order.UpdatedAt.IsZero(), "UpdatedAt not parsed")
}

func TestGetOrderNotFound(t *testing.T) {
	s := newSeededStore(t)

	_, err := s.GetOrder(context.Background(), "9999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchArticles(t *testing.T) {
	s := newSeededStore(t)

	articles, err := s.SearchArticles(context.Background(), "refund", 5)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "returns-policy", articles[0].Slug)
}

func TestSeedIdempotent(t *testing.T) {
	s := newSeededStore(t)

	require.NoError(t, s.Seed(context.Background()))
	products, err := s.SearchProducts(context.Background(), "", 100)
	require.NoError(t, err)
	assert.Len(t, products, len(seedProducts), "reseeding must not duplicate rows")
}
