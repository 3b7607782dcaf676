package store

import (
	"context"
	"fmt"
	"time"

	"shopchat/internal/domain"
)

// Seed loads the demo paint-shop catalog. Idempotent: existing rows with
// the same keys are overwritten.
func (s *SQLiteStore) Seed(ctx context.Context) error {
	for _, p := range seedProducts {
		if err := s.putProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.SKU, err)
		}
	}
	for _, o := range seedOrders {
		if err := s.putOrder(ctx, o); err != nil {
			return fmt.Errorf("seed order %s: %w", o.ID, err)
		}
	}
	for _, a := range seedArticles {
		if err := s.putArticle(ctx, a); err != nil {
			return fmt.Errorf("seed article %s: %w", a.Slug, err)
		}
	}
	return nil
}

var seedProducts = []domain.Product{
	{SKU: "PNT-AZ-1L", Name: "Azure Silk Interior 1L", Category: "paint", Color: "blue", Price: 24.90, Stock: 42},
	{SKU: "PNT-AZ-5L", Name: "Azure Silk Interior 5L", Category: "paint", Color: "blue", Price: 98.00, Stock: 11},
	{SKU: "PNT-NV-1L", Name: "Deep Navy Matte 1L", Category: "paint", Color: "blue", Price: 27.50, Stock: 18},
	{SKU: "PNT-WH-5L", Name: "Chalk White Ceiling 5L", Category: "paint", Color: "white", Price: 74.00, Stock: 60},
	{SKU: "PNT-TR-1L", Name: "Terracotta Warmth 1L", Category: "paint", Color: "orange", Price: 26.00, Stock: 7},
	{SKU: "PRM-UN-1L", Name: "Universal Primer 1L", Category: "primer", Color: "", Price: 15.90, Stock: 85},
	{SKU: "BRU-FL-50", Name: "Flat Brush 50mm", Category: "brush", Color: "", Price: 8.40, Stock: 120},
	{SKU: "ROL-MF-23", Name: "Microfibre Roller 23cm", Category: "roller", Color: "", Price: 11.20, Stock: 96},
	{SKU: "WLP-BT-10", Name: "Botanical Wallpaper 10m", Category: "wallpaper", Color: "green", Price: 49.00, Stock: 23},
	{SKU: "TPE-MS-50", Name: "Masking Tape 50m", Category: "accessory", Color: "", Price: 4.50, Stock: 200},
}

var seedOrders = []domain.Order{
	{
		ID: "1042", Customer: "j.malik@example.com", Status: "shipped",
		Carrier: "DHL", Tracking: "JD014600003SE",
		Items:     []string{"PNT-AZ-5L", "PRM-UN-1L"},
		UpdatedAt: time.Date(2026, 8, 27, 14, 12, 0, 0, time.UTC),
	},
	{
		ID: "1043", Customer: "anna.k@example.com", Status: "processing",
		Items:     []string{"WLP-BT-10", "TPE-MS-50"},
		UpdatedAt: time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC),
	},
	{
		ID: "1044", Customer: "p.svensson@example.com", Status: "delivered",
		Carrier: "PostNord", Tracking: "PN99201177",
		Items:     []string{"BRU-FL-50", "ROL-MF-23", "PNT-WH-5L"},
		UpdatedAt: time.Date(2026, 8, 25, 16, 45, 0, 0, time.UTC),
	},
}

var seedArticles = []domain.Article{
	{
		Slug:  "returns-policy",
		Title: "Returns and refunds",
		Body:  "Unopened paint and accessories can be returned within 30 days of delivery for a full refund. Tinted paint mixed to order is non-returnable.",
		Tags:  "return,refund,policy",
	},
	{
		Slug:  "shipping-times",
		Title: "Shipping times and carriers",
		Body:  "Standard shipping takes 2-4 business days with DHL or PostNord. Orders over 80 euro ship free. Bulky items (5L and up) may ship separately.",
		Tags:  "shipping,delivery,carrier",
	},
	{
		Slug:  "paint-coverage",
		Title: "How much paint do I need?",
		Body:  "One litre of interior wall paint covers roughly 10-12 square meters in one coat. Porous or dark walls need a primer coat first.",
		Tags:  "coverage,howto,primer",
	},
	{
		Slug:  "warranty",
		Title: "Product warranty",
		Body:  "All tools carry a 2-year warranty against manufacturing defects. Keep your order number as proof of purchase.",
		Tags:  "warranty,policy",
	},
}
