package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// GroupRepository stores research groups. Groups are never created on their
// own: they appear the first time an author names them.
type GroupRepository interface {
	// GetOrCreate trims name and fails with domain.ErrInvalidInput when
	// nothing is left.
	GetOrCreate(ctx context.Context, name string) (*domain.ResearchGroup, error)
	List(ctx context.Context) ([]*domain.ResearchGroup, error)
	Count(ctx context.Context) (int64, error)
}

var _ GroupRepository = (*PgGroupRepository)(nil)

type PgGroupRepository struct {
	db DBTX
}

func NewPgGroupRepository(db DBTX) *PgGroupRepository {
	return &PgGroupRepository{db: db}
}

// upsertGroupSQL touches the conflicting row so RETURNING yields it to every
// concurrent caller.
const upsertGroupSQL = `
	INSERT INTO research_groups (name) VALUES ($1)
	ON CONFLICT (name) DO UPDATE SET name = research_groups.name
	RETURNING id, name`

func (r *PgGroupRepository) GetOrCreate(ctx context.Context, name string) (*domain.ResearchGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("group", "group name is required")
	}

	g := &domain.ResearchGroup{}
	if err := r.db.QueryRow(ctx, upsertGroupSQL, name).Scan(&g.ID, &g.Name); err != nil {
		return nil, fmt.Errorf("group %q: upsert: %w", name, err)
	}
	return g, nil
}

// List orders groups by name.
func (r *PgGroupRepository) List(ctx context.Context) ([]*domain.ResearchGroup, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM research_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.ResearchGroup, error) {
		g := &domain.ResearchGroup{}
		return g, row.Scan(&g.ID, &g.Name)
	})
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (r *PgGroupRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM research_groups`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count groups: %w", err)
	}
	return n, nil
}
