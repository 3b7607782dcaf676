package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shopchat/internal/domain"
)

// SQLiteStore implements domain.CatalogStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.CatalogStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			sku      TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			category TEXT NOT NULL,
			color    TEXT NOT NULL DEFAULT '',
			price    REAL NOT NULL,
			stock    INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS orders (
			id         TEXT PRIMARY KEY,
			customer   TEXT NOT NULL,
			status     TEXT NOT NULL,
			carrier    TEXT NOT NULL DEFAULT '',
			tracking   TEXT NOT NULL DEFAULT '',
			items      TEXT NOT NULL DEFAULT '[]',
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS articles (
			slug  TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			body  TEXT NOT NULL,
			tags  TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SearchProducts returns products whose name, category or color matches
// the query, case-insensitively.
func (s *SQLiteStore) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, color, price, stock FROM products
		WHERE lower(name) LIKE ? OR lower(category) LIKE ? OR lower(color) LIKE ?
		ORDER BY name LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.Color, &p.Price, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetOrder returns one order by ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer, status, carrier, tracking, items, updated_at
		FROM orders WHERE id = ?`, strings.TrimSpace(id),
	)

	var o domain.Order
	var itemsJSON, updatedAt string
	err := row.Scan(&o.ID, &o.Customer, &o.Status, &o.Carrier, &o.Tracking, &itemsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("SQLiteStore.GetOrder", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		o.UpdatedAt = t
	}
	return &o, nil
}

// SearchArticles returns knowledge-base articles matching the query in
// title, body or tags.
func (s *SQLiteStore) SearchArticles(ctx context.Context, query string, limit int) ([]domain.Article, error) {
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, title, body, tags FROM articles
		WHERE lower(title) LIKE ? OR lower(body) LIKE ? OR lower(tags) LIKE ?
		ORDER BY title LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.Slug, &a.Title, &a.Body, &a.Tags); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// upsert helpers used by Seed.

func (s *SQLiteStore) putProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, color, price, stock)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET
			name = excluded.name, category = excluded.category,
			color = excluded.color, price = excluded.price, stock = excluded.stock`,
		p.SKU, p.Name, p.Category, p.Color, p.Price, p.Stock,
	)
	return err
}

func (s *SQLiteStore) putOrder(ctx context.Context, o domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer, status, carrier, tracking, items, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer = excluded.customer, status = excluded.status,
			carrier = excluded.carrier, tracking = excluded.tracking,
			items = excluded.items, updated_at = excluded.updated_at`,
		o.ID, o.Customer, o.Status, o.Carrier, o.Tracking, string(items),
		o.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) putArticle(ctx context.Context, a domain.Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (slug, title, body, tags)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title, body = excluded.body, tags = excluded.tags`,
		a.Slug, a.Title, a.Body, a.Tags,
	)
	return err
}
