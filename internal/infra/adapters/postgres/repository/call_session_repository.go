package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/CareCall/internal/domain/models"
)

type CallSessionRepository interface {
	Open(ctx context.Context, session *models.CallSession) error
	Close(ctx context.Context, sessionID uuid.UUID, reason models.EndReason) error
	CloseAll(ctx context.Context, reason models.EndReason) (int64, error)
	ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.CallSession, error)
}

type callSessionRepo struct {
	db *sqlx.DB
}

func NewCallSessionRepo(db *sqlx.DB) CallSessionRepository {
	return &callSessionRepo{db: db}
}

func (r *callSessionRepo) Open(ctx context.Context, session *models.CallSession) error {
	_, err := r.db.NamedExecContext(
		ctx,
		`INSERT INTO call_sessions (id, room_id, session_id, user_id, role, joined_at)
		 VALUES (:id, :room_id, :session_id, :user_id, :role, :joined_at)`,
		session,
	)

	return err
}

func (r *callSessionRepo) Close(ctx context.Context, sessionID uuid.UUID, reason models.EndReason) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE call_sessions SET left_at = $1, end_reason = $2 WHERE session_id = $3 AND left_at IS NULL",
		time.Now().UTC(),
		string(reason),
		sessionID,
	)

	return err
}

// CloseAll закрывает незавершённые записи, например при остановке сервера
func (r *callSessionRepo) CloseAll(ctx context.Context, reason models.EndReason) (int64, error) {
	res, err := r.db.ExecContext(
		ctx,
		"UPDATE call_sessions SET left_at = $1, end_reason = $2 WHERE left_at IS NULL",
		time.Now().UTC(),
		string(reason),
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *callSessionRepo) ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.CallSession, error) {
	var sessions []*models.CallSession

	query := `
		SELECT id, room_id, session_id, user_id, role, joined_at, left_at, end_reason
		FROM call_sessions
		WHERE room_id = $1
		ORDER BY joined_at DESC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &sessions, query, roomID, limit)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}
