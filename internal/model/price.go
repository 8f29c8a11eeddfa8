package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/pricebot/internal/common"
)

// ErrInvalidPrice is returned when a price cannot be parsed or is not positive.
var ErrInvalidPrice = fmt.Errorf("%w: invalid price", common.ErrValidation)

// Prices must fit NUMERIC(14, 4) and survive a round trip through SQLite REAL.
const (
	MaxPriceIntegerDigits = 10
	MaxPriceScale         = 4
)

var maxPrice = decimal.New(1, MaxPriceIntegerDigits)

// PriceObservation is one immutable entry in the price log.
type PriceObservation struct {
	CreatedAt  time.Time
	Price      decimal.Decimal
	ID         int64
	ProductID  int64
	BusinessID int64
}

// LatestPrice is the current price of a product at one business.
type LatestPrice struct {
	ObservedAt time.Time
	Price      decimal.Decimal
	Business   Business
	Product    Product
	AgeDays    int
}

// ParsePrice reads a user supplied price such as "1.50", "$ 3" or "2,75".
func ParsePrice(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	if err := ValidatePrice(price); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// ValidatePrice rejects prices that are not positive, have more than
// MaxPriceIntegerDigits integer digits, or more than MaxPriceScale decimals.
func ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidPrice)
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return fmt.Errorf("%w: at most %d digits before the decimal point", ErrInvalidPrice, MaxPriceIntegerDigits)
	}
	if !price.Equal(price.Truncate(MaxPriceScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidPrice, MaxPriceScale)
	}
	return nil
}

// AgeInDays returns the number of whole days between observedAt and now.
func AgeInDays(observedAt, now time.Time) int {
	if now.Before(observedAt) {
		return 0
	}
	return int(now.Sub(observedAt).Hours() / 24)
}
