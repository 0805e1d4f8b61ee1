package services

import (
	"context"
	"time"

	"github.com/easypay/payment-gateway/pkg/pg"
)

type HealthService struct {
	db *pg.DB
}

func NewHealthService(db *pg.DB) *HealthService {
	return &HealthService{db: db}
}

// Ping reports whether the read database is reachable.
func (s *HealthService) Ping() error {
	if s.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.Read(ctx).DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
