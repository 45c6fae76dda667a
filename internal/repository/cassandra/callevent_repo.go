package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"heartlink-backend/internal/domain"
)

// CallEventRepository appends call history to Cassandra. Partitioned by
// (user_id, bucket) so per-user history queries stay bounded.
type CallEventRepository struct {
	session *gocql.Session
}

// NewCallEventRepository creates a new CallEventRepository
func NewCallEventRepository(session *gocql.Session) *CallEventRepository {
	return &CallEventRepository{session: session}
}

// Record appends one call event.
func (r *CallEventRepository) Record(ctx context.Context, event *domain.CallEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Bucket == 0 {
		event.Bucket = domain.CalculateBucket(event.CreatedAt)
	}

	query := `
		INSERT INTO call_events (
			user_id, bucket, created_at, event_id, kind,
			peer_id, room_id, call_type, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		event.UserID,
		event.Bucket,
		event.CreatedAt,
		event.EventID,
		event.Kind,
		event.PeerID,
		event.RoomID,
		event.CallType,
		event.Duration,
	).WithContext(ctx).Exec()

	if err != nil {
		return fmt.Errorf("failed to record call event: %w", err)
	}

	return nil
}

// GetByUser retrieves a user's call history within one day bucket,
// newest first.
func (r *CallEventRepository) GetByUser(ctx context.Context, userID uuid.UUID, bucket, limit int) ([]*domain.CallEvent, error) {
	query := `
		SELECT user_id, bucket, created_at, event_id, kind,
		       peer_id, room_id, call_type, duration
		FROM call_events
		WHERE user_id = ? AND bucket = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	iter := r.session.Query(query, userID, bucket, limit).WithContext(ctx).Iter()
	defer iter.Close()

	var events []*domain.CallEvent
	for {
		event := &domain.CallEvent{}
		if !iter.Scan(
			&event.UserID,
			&event.Bucket,
			&event.CreatedAt,
			&event.EventID,
			&event.Kind,
			&event.PeerID,
			&event.RoomID,
			&event.CallType,
			&event.Duration,
		) {
			break
		}
		events = append(events, event)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read call events: %w", err)
	}

	return events, nil
}
