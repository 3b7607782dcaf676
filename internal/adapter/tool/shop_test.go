package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"shopchat/internal/domain"
)

func testLogger() *slog.Logger { return slog.Default() }

type fakeStore struct {
	products []domain.Product
	orders   map[string]*domain.Order
	articles []domain.Article
	err      error
}

func (f *fakeStore) SearchProducts(_ context.Context, _ string, _ int) ([]domain.Product, error) {
	return f.products, f.err
}

func (f *fakeStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, domain.NewDomainError("fakeStore.GetOrder", domain.ErrNotFound, id)
	}
	return o, nil
}

func (f *fakeStore) SearchArticles(_ context.Context, _ string, _ int) ([]domain.Article, error) {
	return f.articles, f.err
}

func (f *fakeStore) Close() error { return nil }

func TestProductSearchTool(t *testing.T) {
	store := &fakeStore{products: []domain.Product{
		{SKU: "PNT-AZ-1L", Name: "Azure Silk Interior 1L", Color: "blue", Price: 24.90, Stock: 42},
	}}
	tool := NewProductSearchTool(store, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"blue"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError with content %q", result.Content)
	}
	if !strings.Contains(result.Content, "Azure Silk") {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestProductSearchToolNoMatch(t *testing.T) {
	tool := NewProductSearchTool(&fakeStore{}, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"plasma"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Error("empty result set is not an error")
	}
	if !strings.Contains(result.Content, "no products matched") {
		t.Errorf("Content = %q", result.Content)
	}
}

// A failing store comes back as an error-shaped result, never a Go error,
// so the specialist can apologize instead of the turn aborting.
func TestProductSearchToolStoreFailure(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("%w: disk gone", domain.ErrStoreUnavailable)}
	tool := NewProductSearchTool(store, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"blue"}`))
	if err != nil {
		t.Fatalf("Execute returned a Go error: %v", err)
	}
	if !result.IsError {
		t.Error("store failure should produce IsError result")
	}
	if !strings.Contains(result.Content, "unavailable") {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestOrderStatusTool(t *testing.T) {
	store := &fakeStore{orders: map[string]*domain.Order{
		"1042": {ID: "1042", Status: "shipped", Carrier: "DHL", Tracking: "JD014600003SE"},
	}}
	tool := NewOrderStatusTool(store, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"order_id":"1042"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError with content %q", result.Content)
	}
	if !strings.Contains(result.Content, "shipped") {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestOrderStatusToolNotFound(t *testing.T) {
	tool := NewOrderStatusTool(&fakeStore{orders: map[string]*domain.Order{}}, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"order_id":"9999"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("unknown order should produce IsError result")
	}
	if !strings.Contains(result.Content, "9999") {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestKnowledgeSearchTool(t *testing.T) {
	store := &fakeStore{articles: []domain.Article{
		{Slug: "returns-policy", Title: "Returns and refunds", Body: "30 days."},
	}}
	tool := NewKnowledgeSearchTool(store, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"returns"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Content, "Returns and refunds") {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestToolInvalidParams(t *testing.T) {
	tool := NewProductSearchTool(&fakeStore{}, testLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{not json`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("malformed params should produce IsError result")
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(NewProductSearchTool(&fakeStore{}, testLogger())); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Get("search_products")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "search_products" {
		t.Errorf("Name = %q", got.Name())
	}
	if len(r.Schemas()) != 1 {
		t.Errorf("Schemas = %d", len(r.Schemas()))
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry(testLogger())
	tool := NewOrderStatusTool(&fakeStore{}, testLogger())
	if err := r.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(tool); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry(testLogger())
	if _, err := r.Get("nonexistent"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

// Registering through the registry wraps tools with schema validation, so
// arguments missing required fields bounce before the tool body runs.
func TestRegistrySchemaValidation(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(NewOrderStatusTool(&fakeStore{}, testLogger())); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wrapped, err := r.Get("order_status")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("missing required order_id should fail schema validation")
	}
	if !strings.Contains(result.Content, "schema validation failed") {
		t.Errorf("Content = %q", result.Content)
	}
}
