package storage

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/model"
)

// AppendPriceObservation records a new price for a (product, business) pair.
// Earlier observations are never modified.
func (s *Storage) AppendPriceObservation(ctx context.Context, productID, businessID int64, price decimal.Decimal) (*model.PriceObservation, error) {
	const op = "append_price"
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(productID, "product id"); err != nil {
		return nil, err
	}
	if err := validateID(businessID, "business id"); err != nil {
		return nil, err
	}
	if err := model.ValidatePrice(price); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	obs := &model.PriceObservation{
		ProductID:  productID,
		BusinessID: businessID,
		Price:      price,
		CreatedAt:  now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getNamed(ctx, tx, model.KindProduct, productID); err != nil {
			return err
		}
		if _, err := s.getNamed(ctx, tx, model.KindBusiness, businessID); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx,
			s.q(`INSERT INTO prices (product_id, business_id, price, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
			productID, businessID, price, s.dialect.timeArg(now),
		).Scan(&obs.ID)
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrStore) {
			return nil, err
		}
		return nil, common.StoreError(op, err)
	}

	return obs, nil
}

// PriceHistory returns every observation for a pair, newest first.
func (s *Storage) PriceHistory(ctx context.Context, productID, businessID int64) ([]model.PriceObservation, error) {
	const op = "price_history"
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, product_id, business_id, price, created_at FROM prices
			WHERE product_id = ? AND business_id = ?
			ORDER BY created_at DESC, id DESC`),
		productID, businessID,
	)
	if err != nil {
		return nil, common.StoreError(op, err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.PriceObservation
	for rows.Next() {
		var (
			obs       model.PriceObservation
			createdAt dbTime
		)
		if err := rows.Scan(&obs.ID, &obs.ProductID, &obs.BusinessID, &obs.Price, &createdAt); err != nil {
			return nil, common.StoreError(op, err)
		}
		obs.CreatedAt = createdAt.Time
		history = append(history, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StoreError(op, err)
	}

	return history, nil
}

// latestPricesQuery ranks each pair's observations by newest first, cheapest on ties.
const latestPricesQuery = `
	SELECT p.id, p.name, p.created_at, b.id, b.name, b.created_at, l.price, l.created_at
	FROM (
		SELECT product_id, business_id, price, created_at,
			ROW_NUMBER() OVER (
				PARTITION BY product_id, business_id
				ORDER BY created_at DESC, price ASC, id ASC
			) AS rn
		FROM prices
	) l
	JOIN products p ON p.id = l.product_id
	JOIN business b ON b.id = l.business_id
	WHERE l.rn = 1 AND LOWER(p.name) LIKE LOWER(?) ESCAPE '\'
	ORDER BY l.created_at DESC, l.price ASC`

// LatestPrices resolves the current price of every (product, business) pair whose
// product name contains filter. Results are ordered by age, then price.
func (s *Storage) LatestPrices(ctx context.Context, filter string) ([]model.LatestPrice, error) {
	const op = "latest_prices"
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.q(latestPricesQuery), containsPattern(filter))
	if err != nil {
		return nil, common.StoreError(op, err)
	}
	defer func() { _ = rows.Close() }()

	now := s.now().UTC()
	var result []model.LatestPrice
	for rows.Next() {
		var (
			lp                                model.LatestPrice
			productAt, businessAt, observedAt dbTime
		)
		if err := rows.Scan(
			&lp.Product.ID, &lp.Product.Name, &productAt,
			&lp.Business.ID, &lp.Business.Name, &businessAt,
			&lp.Price, &observedAt,
		); err != nil {
			return nil, common.StoreError(op, err)
		}
		lp.Product.CreatedAt = productAt.Time
		lp.Business.CreatedAt = businessAt.Time
		lp.ObservedAt = observedAt.Time
		lp.AgeDays = model.AgeInDays(lp.ObservedAt, now)
		result = append(result, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StoreError(op, err)
	}

	sortLatestPrices(result)
	return result, nil
}

func sortLatestPrices(prices []model.LatestPrice) {
	sort.SliceStable(prices, func(i, j int) bool {
		a, b := prices[i], prices[j]
		if a.AgeDays != b.AgeDays {
			return a.AgeDays < b.AgeDays
		}
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c < 0
		}
		if a.Product.Name != b.Product.Name {
			return strings.ToLower(a.Product.Name) < strings.ToLower(b.Product.Name)
		}
		return a.Business.Name < b.Business.Name
	})
}
