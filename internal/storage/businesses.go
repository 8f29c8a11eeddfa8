package storage

import (
	"context"

	"github.com/Veraticus/pricebot/internal/model"
)

// FindOrCreateBusiness returns the business called name, creating it when missing.
// The boolean reports whether a new row was inserted.
func (s *Storage) FindOrCreateBusiness(ctx context.Context, name string) (*model.Business, bool, error) {
	row, created, err := s.findOrCreate(ctx, model.KindBusiness, name)
	if err != nil {
		return nil, false, err
	}
	b := row.business()
	return &b, created, nil
}

// SearchBusinesses lists businesses whose name contains filter. An empty filter lists all.
func (s *Storage) SearchBusinesses(ctx context.Context, filter string) ([]model.Business, error) {
	rows, err := s.search(ctx, model.KindBusiness, filter)
	if err != nil {
		return nil, err
	}

	businesses := make([]model.Business, 0, len(rows))
	for _, row := range rows {
		businesses = append(businesses, row.business())
	}
	return businesses, nil
}

// GetBusiness loads a business by id.
func (s *Storage) GetBusiness(ctx context.Context, id int64) (*model.Business, error) {
	entity, err := s.GetByID(ctx, model.KindBusiness, id)
	if err != nil {
		return nil, err
	}
	b := entity.(model.Business)
	return &b, nil
}
