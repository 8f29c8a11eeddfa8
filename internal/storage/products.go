package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/model"
)

// FindOrCreateProduct returns the product called name, creating it when missing.
// The boolean reports whether a new row was inserted.
func (s *Storage) FindOrCreateProduct(ctx context.Context, name string) (*model.Product, bool, error) {
	row, created, err := s.findOrCreate(ctx, model.KindProduct, name)
	if err != nil {
		return nil, false, err
	}
	p := row.product()
	return &p, created, nil
}

// SearchProducts lists products whose name contains filter. An empty filter lists all.
func (s *Storage) SearchProducts(ctx context.Context, filter string) ([]model.Product, error) {
	rows, err := s.search(ctx, model.KindProduct, filter)
	if err != nil {
		return nil, err
	}

	products := make([]model.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.product())
	}
	return products, nil
}

// GetProduct loads a product by id.
func (s *Storage) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	entity, err := s.GetByID(ctx, model.KindProduct, id)
	if err != nil {
		return nil, err
	}
	p := entity.(model.Product)
	return &p, nil
}

// RenameProduct changes a product's display name. The id and every price that
// references it are untouched. Names stay unique ignoring case: a collision
// returns common.ErrDuplicateEntry.
func (s *Storage) RenameProduct(ctx context.Context, id int64, newName string) error {
	const op = "rename_product"
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id, "product id"); err != nil {
		return err
	}
	newName = strings.TrimSpace(newName)
	if err := validateString(newName, "product name"); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getNamed(ctx, tx, model.KindProduct, id); err != nil {
			return err
		}

		var otherID int64
		err := tx.QueryRowContext(ctx,
			s.q(`SELECT id FROM products WHERE LOWER(name) = LOWER(?) AND id <> ?`),
			newName, id,
		).Scan(&otherID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: product %q already exists", common.ErrDuplicateEntry, newName)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if _, err := tx.ExecContext(ctx, s.q(`UPDATE products SET name = ? WHERE id = ?`), newName, id); err != nil {
			if s.dialect.isUniqueViolation(err) {
				return fmt.Errorf("%w: product %q already exists", common.ErrDuplicateEntry, newName)
			}
			return err
		}
		return nil
	})

	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrDuplicateEntry) || errors.Is(err, common.ErrStore) {
		return err
	}
	return common.StoreError(op, err)
}
