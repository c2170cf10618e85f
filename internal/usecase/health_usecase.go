package usecase

import (
	"context"
	"time"

	"portfolio-backend/internal/domain"
)

type healthUsecase struct {
	environment string
	now         func() time.Time
}

func NewHealthUsecase(environment string) domain.HealthUsecase {
	return &healthUsecase{environment: environment, now: time.Now}
}

func (u *healthUsecase) Check(ctx context.Context) domain.HealthStatus {
	return domain.HealthStatus{
		Status:      "ok",
		Timestamp:   u.now().UTC(),
		Environment: u.environment,
	}
}
