package catalog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/pkg/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the catalog schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrate applies the catalog schema.
func Migrate(ctx context.Context, db database.DBTX, logger *slog.Logger) error {
	return database.RunMigrations(ctx, db, Migrations(), logger)
}

const selectProducts = `SELECT id, title, description, category, price::text, quantity FROM products ORDER BY id`

// PostgresSource reads the catalog from the products table.
type PostgresSource struct {
	pool database.DBTX
}

// NewPostgresSource creates a source backed by pool.
func NewPostgresSource(pool database.DBTX) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Name() string {
	return "postgres"
}

func (s *PostgresSource) Load(ctx context.Context) (products []domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, "LoadProducts", selectProducts)
	defer func() { end(err) }()

	rows, err := s.pool.Query(ctx, selectProducts)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p     domain.Product
			id    string
			price string
		)
		if err := rows.Scan(&id, &p.Title, &p.Description, &p.Category, &price, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.ID = domain.ProductID(id)
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of product %s: %w", id, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}
