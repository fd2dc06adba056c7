// Package migrations registers the embedded booking schema with a
// persistence client. Postgres files sit at the migration root and the
// sqlite variants live in the sqlite/ subdirectory.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	bookings "github.com/goliatone/go-bookings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const migrationsPath = "data/sql/migrations"

// Source is one dialect's migration filesystem.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []Source
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithSourceLabel overrides the label reported to the migration runner.
func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithDialects restricts registration to a subset of the shipped dialects.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		next := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			normalized := strings.TrimSpace(strings.ToLower(dialect))
			if normalized == "" || slices.Contains(next, normalized) {
				continue
			}
			next = append(next, normalized)
		}
		if len(next) > 0 {
			r.Dialects = next
		}
	}
}

// Sources resolves the embedded migration filesystems, one per shipped
// dialect, and verifies each carries at least one up migration.
func Sources() ([]Source, error) {
	base, err := fs.Sub(bookings.GetCoreMigrationsFS(), migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", migrationsPath, err)
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: migrationsPath, FS: base},
		{Dialect: DialectSQLite, Path: migrationsPath + "/" + DialectSQLite, FS: sqliteFS},
	}
	for _, source := range sources {
		matches, globErr := fs.Glob(source.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", source.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", source.Dialect, source.Path)
		}
	}
	return sources, nil
}

// Register hands each requested dialect's embedded filesystem to
// registerFn. Both shipped dialects register by default.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	if registerFn == nil {
		return Registration{}, fmt.Errorf("migrations: register function is required")
	}

	reg := Registration{
		SourceLabel: "go-bookings",
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	sources, err := Sources()
	if err != nil {
		return reg, err
	}
	reg.Sources = sources

	for _, dialect := range reg.Dialects {
		index := slices.IndexFunc(sources, func(source Source) bool {
			return source.Dialect == dialect
		})
		if index < 0 {
			return reg, fmt.Errorf("migrations: no migrations shipped for dialect %q", dialect)
		}
		source := sources[index]
		if err := registerFn(ctx, source.Dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
	}
	return reg, nil
}
