package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/model"
)

const (
	tableBusiness = "business"
	tableProducts = "products"
)

// namedRow is the shape shared by the business and products tables.
type namedRow struct {
	CreatedAt time.Time
	Name      string
	ID        int64
}

func (r namedRow) business() model.Business {
	return model.Business{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
}

func (r namedRow) product() model.Product {
	return model.Product{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
}

func tableFor(kind model.EntityKind) string {
	if kind == model.KindBusiness {
		return tableBusiness
	}
	return tableProducts
}

// findOrCreate inserts name unless it already exists and returns the row either way.
// The unique constraint arbitrates concurrent callers, so at most one row per name is created.
func (s *Storage) findOrCreate(ctx context.Context, kind model.EntityKind, name string) (namedRow, bool, error) {
	op := "find_or_create_" + string(kind)
	if err := validateContext(ctx); err != nil {
		return namedRow{}, false, err
	}
	name = strings.TrimSpace(name)
	if err := validateString(name, string(kind)+" name"); err != nil {
		return namedRow{}, false, err
	}

	table := tableFor(kind)
	now := s.now().UTC()

	var (
		row     namedRow
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		insertErr := tx.QueryRowContext(ctx,
			s.q(fmt.Sprintf(`INSERT INTO %s (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING RETURNING id`, table)),
			name, s.dialect.timeArg(now),
		).Scan(&id)

		switch {
		case insertErr == nil:
			row = namedRow{ID: id, Name: name, CreatedAt: now}
			created = true
			return nil
		case errors.Is(insertErr, sql.ErrNoRows):
			existing, getErr := s.getNamedByName(ctx, tx, table, name)
			if getErr != nil {
				return getErr
			}
			row = existing
			return nil
		default:
			return insertErr
		}
	})
	if err != nil {
		return namedRow{}, false, common.StoreError(op, err)
	}

	return row, created, nil
}

func (s *Storage) getNamedByName(ctx context.Context, q queryable, table, name string) (namedRow, error) {
	var (
		row       namedRow
		createdAt dbTime
	)
	err := q.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT id, name, created_at FROM %s WHERE name = ?`, table)),
		name,
	).Scan(&row.ID, &row.Name, &createdAt)
	if err != nil {
		return namedRow{}, err
	}
	row.CreatedAt = createdAt.Time
	return row, nil
}

// getNamed loads a row by id, mapping a miss to common.ErrNotFound.
func (s *Storage) getNamed(ctx context.Context, q queryable, kind model.EntityKind, id int64) (namedRow, error) {
	var (
		row       namedRow
		createdAt dbTime
	)
	err := q.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT id, name, created_at FROM %s WHERE id = ?`, tableFor(kind))),
		id,
	).Scan(&row.ID, &row.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return namedRow{}, &common.NotFoundError{Entity: string(kind), ID: id}
	}
	if err != nil {
		return namedRow{}, common.StoreError("get_"+string(kind), err)
	}
	row.CreatedAt = createdAt.Time
	return row, nil
}

// search returns rows whose name contains filter, ignoring case, ordered by name.
func (s *Storage) search(ctx context.Context, kind model.EntityKind, filter string) ([]namedRow, error) {
	op := "search_" + string(kind)
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		s.q(fmt.Sprintf(`SELECT id, name, created_at FROM %s
			WHERE LOWER(name) LIKE LOWER(?) ESCAPE '\'
			ORDER BY name, id`, tableFor(kind))),
		containsPattern(filter),
	)
	if err != nil {
		return nil, common.StoreError(op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []namedRow
	for rows.Next() {
		var (
			row       namedRow
			createdAt dbTime
		)
		if err := rows.Scan(&row.ID, &row.Name, &createdAt); err != nil {
			return nil, common.StoreError(op, err)
		}
		row.CreatedAt = createdAt.Time
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StoreError(op, err)
	}

	return result, nil
}

// GetByID loads a business or product by identifier.
func (s *Storage) GetByID(ctx context.Context, kind model.EntityKind, id int64) (model.Entity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateKind(kind); err != nil {
		return nil, err
	}
	if err := validateID(id, string(kind)+" id"); err != nil {
		return nil, err
	}

	row, err := s.getNamed(ctx, s.db, kind, id)
	if err != nil {
		return nil, err
	}
	if kind == model.KindBusiness {
		return row.business(), nil
	}
	return row.product(), nil
}
