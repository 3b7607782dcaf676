package domain

import (
	"context"
	"time"
)

// Product is one catalog item.
type Product struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Color    string  `json:"color,omitempty"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
}

// Order is a customer order with its fulfilment status.
type Order struct {
	ID        string    `json:"id"`
	Customer  string    `json:"customer"`
	Status    string    `json:"status"`
	Carrier   string    `json:"carrier,omitempty"`
	Tracking  string    `json:"tracking,omitempty"`
	Items     []string  `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Article is one knowledge-base entry (policies, how-tos).
type Article struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Tags  string `json:"tags,omitempty"`
}

// CatalogStore is the persistence boundary the shop tools talk to.
type CatalogStore interface {
	SearchProducts(ctx context.Context, query string, limit int) ([]Product, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	SearchArticles(ctx context.Context, query string, limit int) ([]Article, error)
	Close() error
}
