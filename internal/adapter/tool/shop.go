package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"shopchat/internal/domain"
)

// The shop tools expose the catalog store to the specialists. Each tool
// catches store failures and returns them as error-shaped results so a
// degraded database never aborts a customer turn.

// --- search_products ---

// ProductSearchTool looks up catalog items by free-text query.
type ProductSearchTool struct {
	store  domain.CatalogStore
	logger *slog.Logger
}

// NewProductSearchTool creates the tool.
func NewProductSearchTool(store domain.CatalogStore, logger *slog.Logger) *ProductSearchTool {
	return &ProductSearchTool{store: store, logger: logger}
}

var _ domain.Tool = (*ProductSearchTool)(nil)

func (t *ProductSearchTool) Name() string { return "search_products" }

func (t *ProductSearchTool) Description() string {
	return "Search the shop catalog by product name, category or color. Returns matching products with price and stock."
}

func (t *ProductSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search text, e.g. a color, product name or category"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 25}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	}
}

type productSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (t *ProductSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_products", t.logger, params,
		func(ctx context.Context, span trace.Span, p productSearchParams) (any, error) {
			products, err := t.store.SearchProducts(ctx, p.Query, p.Limit)
			if err != nil {
				return ErrResult("product search is unavailable right now: %v", err)
			}
			if len(products) == 0 {
				return TextResult("no products matched " + p.Query), nil
			}
			return products, nil
		},
	)
}

// --- order_status ---

// OrderStatusTool looks up one order by its ID.
type OrderStatusTool struct {
	store  domain.CatalogStore
	logger *slog.Logger
}

// NewOrderStatusTool creates the tool.
func NewOrderStatusTool(store domain.CatalogStore, logger *slog.Logger) *OrderStatusTool {
	return &OrderStatusTool{store: store, logger: logger}
}

var _ domain.Tool = (*OrderStatusTool)(nil)

func (t *OrderStatusTool) Name() string { return "order_status" }

func (t *OrderStatusTool) Description() string {
	return "Look up an order by its order number. Returns status, carrier and tracking information."
}

func (t *OrderStatusTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"order_id": {"type": "string", "description": "The customer's order number"}
			},
			"required": ["order_id"],
			"additionalProperties": false
		}`),
	}
}

type orderStatusParams struct {
	OrderID string `json:"order_id"`
}

func (t *OrderStatusTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.order_status", t.logger, params,
		func(ctx context.Context, span trace.Span, p orderStatusParams) (any, error) {
			order, err := t.store.GetOrder(ctx, p.OrderID)
			if errors.Is(err, domain.ErrNotFound) {
				return ErrResult("no order found with number %q", p.OrderID)
			}
			if err != nil {
				return ErrResult("order lookup is unavailable right now: %v", err)
			}
			return order, nil
		},
	)
}

// --- search_knowledge ---

// KnowledgeSearchTool searches the policy and how-to knowledge base.
type KnowledgeSearchTool struct {
	store  domain.CatalogStore
	logger *slog.Logger
}

// NewKnowledgeSearchTool creates the tool.
func NewKnowledgeSearchTool(store domain.CatalogStore, logger *slog.Logger) *KnowledgeSearchTool {
	return &KnowledgeSearchTool{store: store, logger: logger}
}

var _ domain.Tool = (*KnowledgeSearchTool)(nil)

func (t *KnowledgeSearchTool) Name() string { return "search_knowledge" }

func (t *KnowledgeSearchTool) Description() string {
	return "Search shop policies and how-to articles: returns, shipping, warranty, paint coverage."
}

func (t *KnowledgeSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Topic to look up, e.g. returns or shipping"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	}
}

type knowledgeSearchParams struct {
	Query string `json:"query"`
}

func (t *KnowledgeSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_knowledge", t.logger, params,
		func(ctx context.Context, span trace.Span, p knowledgeSearchParams) (any, error) {
			articles, err := t.store.SearchArticles(ctx, p.Query, 5)
			if err != nil {
				return ErrResult("knowledge base is unavailable right now: %v", err)
			}
			if len(articles) == 0 {
				return TextResult("no articles matched " + p.Query), nil
			}
			return articles, nil
		},
	)
}
