// Package query evaluates declarative specifications against the database.
//
// A specification bundles predicates, relation includes, a multi-key ordering,
// paging and behavior flags into one value that the generic evaluators
// (Find, First, Count, Exists) translate into a GORM query. Models that
// implement models.TenantScoped are filtered by the tenant taken from the
// request context on every evaluation unless the specification opts out.
package query

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/tenant"
)

var (
	// ErrNilDatabase is returned when an evaluator is called without a database handle.
	ErrNilDatabase = errors.New("database handle is required")

	// ErrNilSpec is returned when an evaluator is called without a specification.
	ErrNilSpec = errors.New("query specification is required")
)

// cond is one predicate with its bind arguments.
type cond struct {
	query string
	args  []any
}

// order is one sort key. Keys apply in the order they were added,
// giving a stable primary/then-by multi-key sort.
type order struct {
	column string
	desc   bool
}

// Spec describes one query declaratively. The zero value matches everything
// in the ambient tenant; methods narrow or reshape the result and return the
// receiver for chaining.
type Spec struct {
	conds            []cond
	includes         []string
	orders           []order
	limit            int
	offset           int
	columns          []string
	skipTenantFilter bool
	readOnly         bool
	splitQuery       bool
}

// New creates an empty specification.
func New() *Spec {
	return &Spec{}
}

// Where appends a predicate with bind arguments. Multiple predicates are
// combined with AND.
func (s *Spec) Where(query string, args ...any) *Spec {
	s.conds = append(s.conds, cond{query: query, args: args})
	return s
}

// Include requests the given relation paths to be loaded with the result.
// Includes are skipped when a projection is present, since a projected result
// shape may not materialize relations.
func (s *Spec) Include(paths ...string) *Spec {
	s.includes = append(s.includes, paths...)
	return s
}

// OrderBy appends an ascending sort key.
func (s *Spec) OrderBy(column string) *Spec {
	s.orders = append(s.orders, order{column: column})
	return s
}

// OrderByDesc appends a descending sort key.
func (s *Spec) OrderByDesc(column string) *Spec {
	s.orders = append(s.orders, order{column: column, desc: true})
	return s
}

// Page limits the result to limit rows starting at offset.
// Non-positive values leave the corresponding bound unset.
func (s *Spec) Page(limit, offset int) *Spec {
	s.limit = limit
	s.offset = offset
	return s
}

// Select projects the result onto the given columns.
// Filtering and ordering still apply; includes do not.
func (s *Spec) Select(columns ...string) *Spec {
	s.columns = append(s.columns, columns...)
	return s
}

// WithoutTenantFilter disables the ambient tenant filter for this query.
// Cross-tenant reads must opt in here; there is no implicit escape.
func (s *Spec) WithoutTenantFilter() *Spec {
	s.skipTenantFilter = true
	return s
}

// ReadOnly declares the query will not feed a mutation.
// GORM does not track loaded rows, so the flag only pins the read to its own session.
func (s *Spec) ReadOnly() *Spec {
	s.readOnly = true
	return s
}

// SplitQuery requests relation includes to run as separate statements.
// GORM preloads already issue one statement per include; the flag is accepted
// so callers can state the intent explicitly.
func (s *Spec) SplitQuery() *Spec {
	s.splitQuery = true
	return s
}

// apply builds the gorm query for the given model. forCount strips ordering,
// paging, includes and projection, which have no effect on a count.
func (s *Spec) apply(ctx context.Context, db *gorm.DB, model any, forCount bool) (*gorm.DB, error) {
	tx := db.WithContext(ctx).Model(model)

	if s.readOnly {
		tx = tx.Session(&gorm.Session{})
	}

	if scoped, ok := model.(models.TenantScoped); ok && !s.skipTenantFilter {
		id, err := tenant.FromContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve tenant for query: %w", err)
		}

		tx = tx.Where(scoped.TenantColumn()+" = ?", id)
	}

	for _, c := range s.conds {
		tx = tx.Where(c.query, c.args...)
	}

	if forCount {
		return tx, nil
	}

	for _, o := range s.orders {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.column}, Desc: o.desc})
	}

	if len(s.columns) > 0 {
		tx = tx.Select(s.columns)
	} else {
		for _, path := range s.includes {
			tx = tx.Preload(path)
		}
	}

	if s.limit > 0 {
		tx = tx.Limit(s.limit)
	}

	if s.offset > 0 {
		tx = tx.Offset(s.offset)
	}

	return tx, nil
}

// Find evaluates the specification and returns all matching rows.
func Find[T any](ctx context.Context, db *gorm.DB, spec *Spec) ([]T, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	if spec == nil {
		return nil, ErrNilSpec
	}

	var model T

	tx, err := spec.apply(ctx, db, &model, false)
	if err != nil {
		return nil, err
	}

	var out []T
	if err := tx.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to evaluate list specification: %w", err)
	}

	return out, nil
}

// First evaluates the specification and returns the first matching row.
// When nothing matches, the returned error wraps gorm.ErrRecordNotFound.
func First[T any](ctx context.Context, db *gorm.DB, spec *Spec) (*T, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	if spec == nil {
		return nil, ErrNilSpec
	}

	var model T

	tx, err := spec.apply(ctx, db, &model, false)
	if err != nil {
		return nil, err
	}

	var out T
	if err := tx.First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to evaluate specification: %w", err)
	}

	return &out, nil
}

// Count evaluates the specification's predicates and returns the number of
// matching rows. Ordering, paging and projection are ignored.
func Count[T any](ctx context.Context, db *gorm.DB, spec *Spec) (int64, error) {
	if db == nil {
		return 0, ErrNilDatabase
	}

	if spec == nil {
		return 0, ErrNilSpec
	}

	var model T

	tx, err := spec.apply(ctx, db, &model, true)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to evaluate count specification: %w", err)
	}

	return count, nil
}

// Exists reports whether any row matches the specification's predicates.
func Exists[T any](ctx context.Context, db *gorm.DB, spec *Spec) (bool, error) {
	count, err := Count[T](ctx, db, spec)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
