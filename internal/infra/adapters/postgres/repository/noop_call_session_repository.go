package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/qrave1/CareCall/internal/domain/models"
)

// noopCallSessionRepo используется, когда история звонков отключена (POSTGRES_ENABLED=false)
type noopCallSessionRepo struct{}

func NewNoopCallSessionRepo() CallSessionRepository {
	return noopCallSessionRepo{}
}

func (noopCallSessionRepo) Open(context.Context, *models.CallSession) error { return nil }

func (noopCallSessionRepo) Close(context.Context, uuid.UUID, models.EndReason) error { return nil }

func (noopCallSessionRepo) CloseAll(context.Context, models.EndReason) (int64, error) { return 0, nil }

func (noopCallSessionRepo) ListByRoom(context.Context, string, int) ([]*models.CallSession, error) {
	return nil, nil
}
