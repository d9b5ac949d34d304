package locations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/meridian/internal/shared"
)

// Store defines persistence operations for locations.
type Store interface {
	Create(ctx context.Context, location Location) (Location, error)
	Update(ctx context.Context, location Location) (Location, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (Location, error)
	List(ctx context.Context) ([]Location, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	CountProjects(ctx context.Context, id uuid.UUID) (int64, error)
}

// Repository provides PostgreSQL backed persistence for locations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const locationColumns = `id, code, name, address, is_active, created_at, updated_at`

// Create inserts a new location. A duplicate code yields shared.ErrConflict.
func (r *Repository) Create(ctx context.Context, location Location) (Location, error) {
	if location.ID == uuid.Nil {
		location.ID = uuid.New()
	}
	query := `
		INSERT INTO locations (id, code, name, address, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + locationColumns
	row := r.pool.QueryRow(ctx, query, location.ID, location.Code, location.Name, location.Address, location.IsActive)
	created, err := scanLocation(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Location{}, fmt.Errorf("locations: code %q already in use: %w", location.Code, shared.ErrConflict)
		}
		return Location{}, fmt.Errorf("locations: create: %w", err)
	}
	return created, nil
}

// Update replaces the mutable fields of an existing location.
func (r *Repository) Update(ctx context.Context, location Location) (Location, error) {
	query := `
		UPDATE locations
		SET code = $2, name = $3, address = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + locationColumns
	row := r.pool.QueryRow(ctx, query, location.ID, location.Code, location.Name, location.Address, location.IsActive)
	updated, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, fmt.Errorf("locations: location %s: %w", location.ID, shared.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return Location{}, fmt.Errorf("locations: code %q already in use: %w", location.Code, shared.ErrConflict)
		}
		return Location{}, fmt.Errorf("locations: update: %w", err)
	}
	return updated, nil
}

// Delete removes a location row. Rows still referenced by projects or
// assignments fail with shared.ErrReferentialIntegrity.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("locations: location %s is still referenced: %w", id, shared.ErrReferentialIntegrity)
		}
		return fmt.Errorf("locations: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("locations: location %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// Get fetches a location by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Location, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	location, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, fmt.Errorf("locations: location %s: %w", id, shared.ErrNotFound)
		}
		return Location{}, fmt.Errorf("locations: get: %w", err)
	}
	return location, nil
}

// List returns all locations ordered by code.
func (r *Repository) List(ctx context.Context) ([]Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("locations: list: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		location, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("locations: scan: %w", err)
		}
		out = append(out, location)
	}
	return out, rows.Err()
}

// Exists reports whether a location row with the id is present.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("locations: exists: %w", err)
	}
	return exists, nil
}

// CountProjects returns how many projects belong to the location.
func (r *Repository) CountProjects(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects WHERE location_id = $1`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("locations: count projects: %w", err)
	}
	return count, nil
}

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Code, &l.Name, &l.Address, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
