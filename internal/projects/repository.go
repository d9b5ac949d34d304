package projects

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

// Store defines persistence operations for projects.
type Store interface {
	Create(ctx context.Context, project Project) (Project, error)
	Update(ctx context.Context, project Project) (Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (Project, error)
	List(ctx context.Context) ([]Project, error)
	ListByLocation(ctx context.Context, locationID uuid.UUID) ([]Project, error)
}

// Repository provides PostgreSQL backed persistence for projects.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const projectColumns = `id, location_id, code, name, description, start_date, end_date, is_active, created_at, updated_at`

// Create inserts a new project. The code is unique per location; a duplicate
// yields shared.ErrConflict and an unknown location shared.ErrReferentialIntegrity.
func (r *Repository) Create(ctx context.Context, project Project) (Project, error) {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	query := `
		INSERT INTO projects (id, location_id, code, name, description, start_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + projectColumns
	row := r.pool.QueryRow(ctx, query,
		project.ID, project.LocationID, project.Code, project.Name,
		project.Description, project.StartDate, project.EndDate, project.IsActive)
	created, err := scanProject(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Project{}, fmt.Errorf("projects: code %q already in use at location: %w", project.Code, shared.ErrConflict)
			case "23503":
				return Project{}, fmt.Errorf("projects: location %s: %w", project.LocationID, shared.ErrReferentialIntegrity)
			}
		}
		return Project{}, fmt.Errorf("projects: create: %w", err)
	}
	return created, nil
}

// Update replaces the mutable fields of an existing project.
func (r *Repository) Update(ctx context.Context, project Project) (Project, error) {
	query := `
		UPDATE projects
		SET code = $2, name = $3, description = $4, start_date = $5, end_date = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + projectColumns
	row := r.pool.QueryRow(ctx, query,
		project.ID, project.Code, project.Name, project.Description,
		project.StartDate, project.EndDate, project.IsActive)
	updated, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, fmt.Errorf("projects: project %s: %w", project.ID, shared.ErrNotFound)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Project{}, fmt.Errorf("projects: code %q already in use at location: %w", project.Code, shared.ErrConflict)
		}
		return Project{}, fmt.Errorf("projects: update: %w", err)
	}
	return updated, nil
}

// Delete removes a project row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("projects: project %s is still referenced: %w", id, shared.ErrReferentialIntegrity)
		}
		return fmt.Errorf("projects: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("projects: project %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// Get fetches a project by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, fmt.Errorf("projects: project %s: %w", id, shared.ErrNotFound)
		}
		return Project{}, fmt.Errorf("projects: get: %w", err)
	}
	return project, nil
}

// List returns all projects ordered by code.
func (r *Repository) List(ctx context.Context) ([]Project, error) {
	return r.query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY code`)
}

// ListByLocation returns the projects of one location.
func (r *Repository) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]Project, error) {
	return r.query(ctx, `SELECT `+projectColumns+` FROM projects WHERE location_id = $1 ORDER BY code`, locationID)
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Project, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("projects: query: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("projects: scan: %w", err)
		}
		out = append(out, project)
	}
	return out, rows.Err()
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.LocationID, &p.Code, &p.Name, &p.Description,
		&p.StartDate, &p.EndDate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
