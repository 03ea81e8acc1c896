package review

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrUnknownStatus = errors.New("review: unknown status")

// Store is the persistence used by Service.
type Store interface {
	List(ctx context.Context, status Status) ([]Record, error)
	Resolve(ctx context.Context, id, operatorID, note string) (Record, error)
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

func (s *Service) List(ctx context.Context, status Status) ([]Record, error) {
	if status != "" && status != StatusOpen && status != StatusResolved {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return s.store.List(ctx, status)
}

// Resolve closes a review once the operator has handled the refund out of band.
func (s *Service) Resolve(ctx context.Context, operatorID, id, note string) (Record, error) {
	if operatorID == "" {
		return Record{}, fmt.Errorf("review: missing operator id")
	}
	rec, err := s.store.Resolve(ctx, id, operatorID, note)
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("settlement review resolved",
		zap.String("review_id", rec.ID),
		zap.String("transaction_id", rec.TransactionID),
		zap.String("operator_id", operatorID),
	)
	return rec, nil
}
