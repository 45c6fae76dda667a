package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"heartlink-backend/internal/domain"
)

// GroupCallRepository stores group call sessions and their append-only
// participant rosters. Roster mutations use single-statement
// find-and-update semantics so the REST and realtime paths cannot lose
// each other's writes.
type GroupCallRepository struct {
	pool *pgxpool.Pool
}

// NewGroupCallRepository creates a new group call repository
func NewGroupCallRepository(pool *pgxpool.Pool) *GroupCallRepository {
	return &GroupCallRepository{pool: pool}
}

// Create inserts a new session and its initial roster entries.
func (r *GroupCallRepository) Create(ctx context.Context, session *domain.GroupCallSession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO group_calls (
			room_id, call_type, creator_id, max_participants, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, query,
		session.RoomID,
		session.CallType,
		session.CreatorID,
		session.MaxParticipants,
		session.Status,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create group call: %w", err)
	}

	for _, p := range session.Participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO group_call_participants (room_id, user_id, joined_at, is_active, is_muted, is_video_off)
			VALUES ($1, $2, $3, $4, false, false)
		`, session.RoomID, p.UserID, p.JoinedAt, p.IsActive)
		if err != nil {
			return fmt.Errorf("failed to add creator participant: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByRoomID retrieves a session with its full roster.
func (r *GroupCallRepository) GetByRoomID(ctx context.Context, roomID string) (*domain.GroupCallSession, error) {
	query := `
		SELECT room_id, call_type, creator_id, max_participants, status,
		       started_at, ended_at, duration, created_at
		FROM group_calls
		WHERE room_id = $1
	`

	session := &domain.GroupCallSession{}
	var duration *int
	err := r.pool.QueryRow(ctx, query, roomID).Scan(
		&session.RoomID,
		&session.CallType,
		&session.CreatorID,
		&session.MaxParticipants,
		&session.Status,
		&session.StartedAt,
		&session.EndedAt,
		&duration,
		&session.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("group call %s: %w", roomID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group call: %w", err)
	}
	if duration != nil {
		session.Duration = *duration
	}

	participants, err := r.getParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	session.Participants = participants

	return session, nil
}

func (r *GroupCallRepository) getParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	query := `
		SELECT room_id, user_id, connection_id, joined_at, left_at, is_active, is_muted, is_video_off
		FROM group_call_participants
		WHERE room_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		var connID *string
		err := rows.Scan(
			&p.RoomID,
			&p.UserID,
			&connID,
			&p.JoinedAt,
			&p.LeftAt,
			&p.IsActive,
			&p.IsMuted,
			&p.IsVideoOff,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if connID != nil {
			p.ConnectionID = *connID
		}
		participants = append(participants, p)
	}

	return participants, nil
}

// ListOpen retrieves waiting/active sessions, newest first.
func (r *GroupCallRepository) ListOpen(ctx context.Context, callType string, limit, offset int) ([]*domain.GroupCallSession, int64, error) {
	query := `
		SELECT room_id
		FROM group_calls
		WHERE status IN ('waiting', 'active')
		  AND ($1 = '' OR call_type = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, callType, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list group calls: %w", err)
	}
	defer rows.Close()

	var roomIDs []string
	for rows.Next() {
		var roomID string
		if err := rows.Scan(&roomID); err != nil {
			return nil, 0, fmt.Errorf("failed to scan room id: %w", err)
		}
		roomIDs = append(roomIDs, roomID)
	}
	rows.Close()

	sessions := make([]*domain.GroupCallSession, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		session, err := r.GetByRoomID(ctx, roomID)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, session)
	}

	var total int64
	countQuery := `
		SELECT count(*) FROM group_calls
		WHERE status IN ('waiting', 'active') AND ($1 = '' OR call_type = $1)
	`
	if err := r.pool.QueryRow(ctx, countQuery, callType).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count group calls: %w", err)
	}

	return sessions, total, nil
}

// AddParticipant appends a new roster entry.
func (r *GroupCallRepository) AddParticipant(ctx context.Context, p *domain.Participant) error {
	query := `
		INSERT INTO group_call_participants (room_id, user_id, joined_at, is_active, is_muted, is_video_off)
		VALUES ($1, $2, $3, true, false, false)
	`

	_, err := r.pool.Exec(ctx, query, p.RoomID, p.UserID, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return nil
}

// AttachParticipant binds a connection to the active roster entry in a
// single statement.
func (r *GroupCallRepository) AttachParticipant(ctx context.Context, roomID string, userID uuid.UUID, connectionID string) (bool, error) {
	query := `
		UPDATE group_call_participants
		SET connection_id = $3
		WHERE room_id = $1 AND user_id = $2 AND is_active = true
	`

	tag, err := r.pool.Exec(ctx, query, roomID, userID, connectionID)
	if err != nil {
		return false, fmt.Errorf("failed to attach participant: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DetachParticipant marks the active roster entry inactive.
func (r *GroupCallRepository) DetachParticipant(ctx context.Context, roomID string, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE group_call_participants
		SET is_active = false, left_at = $3, connection_id = NULL
		WHERE room_id = $1 AND user_id = $2 AND is_active = true
	`

	tag, err := r.pool.Exec(ctx, query, roomID, userID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to detach participant: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DetachAllParticipants marks every active roster entry inactive (creator end).
func (r *GroupCallRepository) DetachAllParticipants(ctx context.Context, roomID string) error {
	query := `
		UPDATE group_call_participants
		SET is_active = false, left_at = $2, connection_id = NULL
		WHERE room_id = $1 AND is_active = true
	`

	_, err := r.pool.Exec(ctx, query, roomID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to detach participants: %w", err)
	}

	return nil
}

// CountActive returns the number of active roster entries.
func (r *GroupCallRepository) CountActive(ctx context.Context, roomID string) (int, error) {
	var count int
	query := `
		SELECT count(*) FROM group_call_participants
		WHERE room_id = $1 AND is_active = true
	`
	if err := r.pool.QueryRow(ctx, query, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active participants: %w", err)
	}
	return count, nil
}

// MarkActive transitions waiting -> active exactly once.
func (r *GroupCallRepository) MarkActive(ctx context.Context, roomID string, startedAt time.Time) error {
	query := `
		UPDATE group_calls
		SET status = 'active', started_at = $2
		WHERE room_id = $1 AND status = 'waiting'
	`

	_, err := r.pool.Exec(ctx, query, roomID, startedAt)
	if err != nil {
		return fmt.Errorf("failed to activate group call: %w", err)
	}

	return nil
}

// MarkEnded finalizes a session: status, ended_at and computed duration.
// Sessions that never went active get duration 0.
func (r *GroupCallRepository) MarkEnded(ctx context.Context, roomID string) error {
	query := `
		UPDATE group_calls
		SET status = 'ended',
		    ended_at = NOW(),
		    duration = COALESCE(EXTRACT(EPOCH FROM (NOW() - started_at))::INT, 0)
		WHERE room_id = $1 AND status IN ('waiting', 'active')
	`

	_, err := r.pool.Exec(ctx, query, roomID)
	if err != nil {
		return fmt.Errorf("failed to end group call: %w", err)
	}

	return nil
}

// FindByActiveConnection scans rosters for open sessions bound to a
// connection (disconnect cleanup).
func (r *GroupCallRepository) FindByActiveConnection(ctx context.Context, connectionID string) ([]*domain.GroupCallSession, error) {
	query := `
		SELECT DISTINCT gc.room_id
		FROM group_calls gc
		JOIN group_call_participants p ON p.room_id = gc.room_id
		WHERE p.connection_id = $1
		  AND p.is_active = true
		  AND gc.status IN ('waiting', 'active')
	`

	rows, err := r.pool.Query(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions by connection: %w", err)
	}
	defer rows.Close()

	var roomIDs []string
	for rows.Next() {
		var roomID string
		if err := rows.Scan(&roomID); err != nil {
			return nil, fmt.Errorf("failed to scan room id: %w", err)
		}
		roomIDs = append(roomIDs, roomID)
	}
	rows.Close()

	var sessions []*domain.GroupCallSession
	for _, roomID := range roomIDs {
		session, err := r.GetByRoomID(ctx, roomID)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

// SetParticipantMuted persists the mute flag for an active roster entry.
func (r *GroupCallRepository) SetParticipantMuted(ctx context.Context, roomID string, userID uuid.UUID, isMuted bool) error {
	query := `
		UPDATE group_call_participants
		SET is_muted = $3
		WHERE room_id = $1 AND user_id = $2 AND is_active = true
	`

	_, err := r.pool.Exec(ctx, query, roomID, userID, isMuted)
	if err != nil {
		return fmt.Errorf("failed to update mute state: %w", err)
	}

	return nil
}

// SetParticipantVideoOff persists the video flag for an active roster entry.
func (r *GroupCallRepository) SetParticipantVideoOff(ctx context.Context, roomID string, userID uuid.UUID, isVideoOff bool) error {
	query := `
		UPDATE group_call_participants
		SET is_video_off = $3
		WHERE room_id = $1 AND user_id = $2 AND is_active = true
	`

	_, err := r.pool.Exec(ctx, query, roomID, userID, isVideoOff)
	if err != nil {
		return fmt.Errorf("failed to update video state: %w", err)
	}

	return nil
}
