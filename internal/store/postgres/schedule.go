package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/session"
)

// Helpers

const ruleColumns = `id, instructor_id, rule_type, day_of_week, specific_date, start_minute, end_minute,
	slot_minutes, break_minutes, valid_from, valid_until, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*schedule.AvailabilityRule, error) {
	var r schedule.AvailabilityRule
	var day *int16
	var start, end int

	err := row.Scan(
		&r.ID,
		&r.InstructorID,
		&r.Type,
		&day,
		&r.SpecificDate,
		&start,
		&end,
		&r.SlotMinutes,
		&r.BreakMinutes,
		&r.ValidFrom,
		&r.ValidUntil,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schedule.ErrRuleNotFound
		}
		return nil, err
	}

	if day != nil {
		wd := time.Weekday(*day)
		r.DayOfWeek = &wd
	}
	r.StartTime = schedule.TimeOfDay(start)
	r.EndTime = schedule.TimeOfDay(end)
	return &r, nil
}

func weekdayArg(d *time.Weekday) *int16 {
	if d == nil {
		return nil
	}
	v := int16(*d)
	return &v
}

const slotColumns = `id, instructor_id, start_at, end_at, duration_minutes, status, rule_id, session_id, created_at, updated_at`

func scanSlot(row pgx.Row) (*schedule.BookingSlot, error) {
	var s schedule.BookingSlot

	err := row.Scan(
		&s.ID,
		&s.InstructorID,
		&s.StartAt,
		&s.EndAt,
		&s.DurationMinutes,
		&s.Status,
		&s.RuleID,
		&s.SessionID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schedule.ErrSlotNotFound
		}
		return nil, err
	}
	s.StartAt = s.StartAt.UTC()
	s.EndAt = s.EndAt.UTC()
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]schedule.BookingSlot, error) {
	defer rows.Close()

	var result []schedule.BookingSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Rules

type ruleRepo struct{ q dbtx }

func (r ruleRepo) CreateRule(ctx context.Context, rule *schedule.AvailabilityRule) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO availability_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rule.ID, rule.InstructorID, rule.Type, weekdayArg(rule.DayOfWeek), rule.SpecificDate,
		int(rule.StartTime), int(rule.EndTime), rule.SlotMinutes, rule.BreakMinutes,
		rule.ValidFrom, rule.ValidUntil, rule.IsActive, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (r ruleRepo) UpdateRule(ctx context.Context, rule *schedule.AvailabilityRule) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE availability_rules
		SET rule_type = $2,
		    day_of_week = $3,
		    specific_date = $4,
		    start_minute = $5,
		    end_minute = $6,
		    slot_minutes = $7,
		    break_minutes = $8,
		    valid_from = $9,
		    valid_until = $10,
		    is_active = $11,
		    updated_at = $12
		WHERE id = $1
	`, rule.ID, rule.Type, weekdayArg(rule.DayOfWeek), rule.SpecificDate,
		int(rule.StartTime), int(rule.EndTime), rule.SlotMinutes, rule.BreakMinutes,
		rule.ValidFrom, rule.ValidUntil, rule.IsActive, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schedule.ErrRuleNotFound
	}
	return nil
}

func (r ruleRepo) GetRule(ctx context.Context, id uuid.UUID) (*schedule.AvailabilityRule, error) {
	row := r.q.QueryRow(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = $1`, id)
	return scanRule(row)
}

func (r ruleRepo) ListRules(ctx context.Context, instructorID uuid.UUID, activeOnly bool) ([]schedule.AvailabilityRule, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE instructor_id = $1
		  AND (NOT $2 OR is_active)
		ORDER BY created_at
	`, instructorID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r ruleRepo) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schedule.ErrRuleNotFound
	}
	return nil
}

// Slots

type slotRepo struct{ q dbtx }

func (r slotRepo) CreateSlot(ctx context.Context, s *schedule.BookingSlot) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO booking_slots (`+slotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.InstructorID, s.StartAt, s.EndAt, s.DurationMinutes, s.Status, s.RuleID, s.SessionID, s.CreatedAt, s.UpdatedAt)
	if pgCode(err) == codeExclusionViolation {
		return schedule.ErrSlotOverlap
	}
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r slotRepo) GetSlot(ctx context.Context, id uuid.UUID) (*schedule.BookingSlot, error) {
	row := r.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM booking_slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r slotRepo) LockSlot(ctx context.Context, id uuid.UUID) (*schedule.BookingSlot, error) {
	row := r.q.QueryRow(ctx, `SELECT `+slotColumns+` FROM booking_slots WHERE id = $1 FOR UPDATE`, id)
	return scanSlot(row)
}

func (r slotRepo) FindSlotByStart(ctx context.Context, instructorID uuid.UUID, start time.Time) (*schedule.BookingSlot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM booking_slots
		WHERE instructor_id = $1 AND start_at = $2
	`, instructorID, start)
	return scanSlot(row)
}

func (r slotRepo) ListSlots(ctx context.Context, instructorID uuid.UUID, from, to time.Time) ([]schedule.BookingSlot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM booking_slots
		WHERE instructor_id = $1
		  AND start_at >= $2
		  AND start_at < $3
		ORDER BY start_at
	`, instructorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r slotRepo) UpdateSlot(ctx context.Context, s *schedule.BookingSlot, expected schedule.SlotStatus) error {
	return r.update(ctx, s, expected)
}

// ResizeSlot relies on the exclusion constraint for the overlap check.
func (r slotRepo) ResizeSlot(ctx context.Context, s *schedule.BookingSlot, expected schedule.SlotStatus) error {
	return r.update(ctx, s, expected)
}

func (r slotRepo) update(ctx context.Context, s *schedule.BookingSlot, expected schedule.SlotStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE booking_slots
		SET start_at = $2,
		    end_at = $3,
		    duration_minutes = $4,
		    status = $5,
		    session_id = $6,
		    updated_at = $7
		WHERE id = $1
		  AND status = $8
	`, s.ID, s.StartAt, s.EndAt, s.DurationMinutes, s.Status, s.SessionID, s.UpdatedAt, expected)
	if pgCode(err) == codeExclusionViolation {
		return schedule.ErrSlotOverlap
	}
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetSlot(ctx, s.ID); err != nil {
			return err
		}
		return schedule.ErrSlotStateChanged
	}
	return nil
}

func (r slotRepo) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM booking_slots WHERE id = $1 AND status <> 'booked'`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetSlot(ctx, id); err != nil {
			return err
		}
		return schedule.ErrSlotBooked
	}
	return nil
}

func (r slotRepo) DeleteAvailableSlotsByRule(ctx context.Context, ruleID uuid.UUID) (int, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM booking_slots WHERE rule_id = $1 AND status = 'available'`, ruleID)
	if err != nil {
		return 0, fmt.Errorf("delete rule slots: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Time off

type timeOffRepo struct{ q dbtx }

func (r timeOffRepo) CreateTimeOff(ctx context.Context, t *schedule.TimeOff) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO time_off (id, instructor_id, start_at, end_at, reason, is_recurring, recurrence_day, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.InstructorID, t.StartAt, t.EndAt, t.Reason, t.IsRecurring, weekdayArg(t.RecurrenceDay), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert time off: %w", err)
	}
	return nil
}

func (r timeOffRepo) DeleteTimeOff(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM time_off WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time off: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return schedule.ErrTimeOffNotFound
	}
	return nil
}

func (r timeOffRepo) ListTimeOff(ctx context.Context, instructorID uuid.UUID) ([]schedule.TimeOff, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, instructor_id, start_at, end_at, reason, is_recurring, recurrence_day, created_at
		FROM time_off
		WHERE instructor_id = $1
		ORDER BY start_at
	`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.TimeOff
	for rows.Next() {
		var t schedule.TimeOff
		var day *int16
		if err := rows.Scan(&t.ID, &t.InstructorID, &t.StartAt, &t.EndAt, &t.Reason, &t.IsRecurring, &day, &t.CreatedAt); err != nil {
			return nil, err
		}
		if day != nil {
			wd := time.Weekday(*day)
			t.RecurrenceDay = &wd
		}
		t.StartAt = t.StartAt.UTC()
		t.EndAt = t.EndAt.UTC()
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// BusyWindows returns the windows of sessions that still occupy their time.
func (s *Store) BusyWindows(ctx context.Context, instructorID uuid.UUID, from, to time.Time) ([]schedule.Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_at, end_at
		FROM sessions
		WHERE instructor_id = $1
		  AND status <> $2
		  AND start_at < $4
		  AND end_at > $3
		ORDER BY start_at
	`, instructorID, session.StatusCancelled, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Window
	for rows.Next() {
		var w schedule.Window
		if err := rows.Scan(&w.Start, &w.End); err != nil {
			return nil, err
		}
		result = append(result, schedule.Window{Start: w.Start.UTC(), End: w.End.UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
