package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hackgods/tutor-booking/internal/events"
)

// EventLog appends every published event to the event_logs table.
type EventLog struct {
	s *Store
}

func (s *Store) EventLog() EventLog {
	return EventLog{s: s}
}

func (l EventLog) Publish(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = l.s.pool.Exec(ctx, `
		INSERT INTO event_logs (id, event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, string(ev.Type), ev.AggregateID, payload, nullableTime(&ev.OccurredAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
