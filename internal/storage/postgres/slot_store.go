package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vtishina/consult-bot/internal/domain"
	"github.com/vtishina/consult-bot/internal/policy"
)

// SlotStore is the persistent slot record. Rows are append-only: slots are
// never deleted, only moved between states.
type SlotStore struct {
	pool *pgxpool.Pool
}

func NewSlotStore(pool *pgxpool.Pool) *SlotStore {
	return &SlotStore{pool: pool}
}

func (s *SlotStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

// Seed ensures a slot row exists for every (day, window) pair and expires
// past rows that never reached booked. Existing rows are never touched, so
// repeated seeding with the same policy output is a no-op.
func (s *SlotStore) Seed(ctx context.Context, days []time.Time, windows []policy.Window, today time.Time) (domain.SeedStats, error) {
	const insertStmt = `
INSERT INTO slots (slot_date, start_at, end_at, state)
VALUES ($1, $2, $3, 'available')
ON CONFLICT (slot_date, start_at) DO NOTHING`

	const expireStmt = `
UPDATE slots
SET state = 'expired', holder_token = NULL, hold_expires_at = NULL
WHERE slot_date < $1 AND state IN ('available', 'held')`

	var stats domain.SeedStats
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		for _, day := range days {
			for _, w := range windows {
				tag, err := s.exec(txCtx, insertStmt, day, day.Add(w.Start), day.Add(w.End))
				if err != nil {
					return fmt.Errorf("insert slot %s+%s: %w", day.Format("2006-01-02"), w.Start, err)
				}
				stats.Created += int(tag.RowsAffected())
			}
		}

		tag, err := s.exec(txCtx, expireStmt, today)
		if err != nil {
			return fmt.Errorf("expire past slots: %w", err)
		}
		stats.Expired = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return domain.SeedStats{}, err
	}
	return stats, nil
}

// ListAvailable returns available slots in [from, to], ordered by date then
// start time.
func (s *SlotStore) ListAvailable(ctx context.Context, from, to time.Time) ([]domain.Slot, error) {
	const query = `
SELECT id, slot_date, start_at, end_at, state, created_at
FROM slots
WHERE state = 'available' AND slot_date >= $1::date AND slot_date <= $2::date
ORDER BY slot_date, start_at`

	rows, err := s.query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		var slot domain.Slot
		var state string
		if err := rows.Scan(&slot.ID, &slot.Date, &slot.StartAt, &slot.EndAt, &state, &slot.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slot.State = domain.SlotState(state)
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}

// GetSlot returns one slot in its current state.
func (s *SlotStore) GetSlot(ctx context.Context, slotID string) (domain.Slot, error) {
	const query = `
SELECT id, slot_date, start_at, end_at, state,
       COALESCE(holder_token::text, ''), COALESCE(hold_expires_at, 'epoch'::timestamptz),
       COALESCE(booking_id::text, ''), created_at
FROM slots
WHERE id = $1`

	return s.scanSlot(s.queryRow(ctx, query, slotID))
}

// TryHold transitions available -> held in a single compare-and-set
// statement. This is the linearization point: of any number of concurrent
// attempts on one slot, exactly one update matches.
func (s *SlotStore) TryHold(ctx context.Context, slotID, ownerToken string, expiresAt time.Time) (domain.Slot, error) {
	const stmt = `
UPDATE slots
SET state = 'held', holder_token = $2, hold_expires_at = $3
WHERE id = $1 AND state = 'available'
RETURNING id, slot_date, start_at, end_at, state,
          COALESCE(holder_token::text, ''), COALESCE(hold_expires_at, 'epoch'::timestamptz),
          COALESCE(booking_id::text, ''), created_at`

	slot, err := s.scanSlot(s.queryRow(ctx, stmt, slotID, ownerToken, expiresAt))
	if err == domain.ErrSlotNotFound {
		// The update matched nothing: either the slot does not exist or it
		// is not available. Distinguish for the caller.
		_, getErr := s.GetSlot(ctx, slotID)
		if getErr == nil {
			return domain.Slot{}, domain.ErrSlotUnavailable
		}
		return domain.Slot{}, getErr
	}
	if err == domain.ErrInvalidID {
		return domain.Slot{}, err
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("try hold: %w", err)
	}
	return slot, nil
}

// Confirm transitions held -> booked and attaches the booking, provided the
// hold belongs to ownerToken and has not expired.
func (s *SlotStore) Confirm(ctx context.Context, slotID, ownerToken string, booking domain.Booking, now time.Time) error {
	const slotQuery = `
SELECT state, COALESCE(holder_token::text, ''), COALESCE(hold_expires_at, 'epoch'::timestamptz)
FROM slots
WHERE id = $1
FOR UPDATE`

	const insertBooking = `
INSERT INTO bookings (id, slot_id, client_chat_id, client_name, status, external_calendar_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	const bookSlot = `
UPDATE slots
SET state = 'booked', booking_id = $2, holder_token = NULL, hold_expires_at = NULL
WHERE id = $1`

	return s.WithTx(ctx, func(txCtx context.Context) error {
		var state string
		hold := domain.Hold{SlotID: slotID}
		err := s.queryRow(txCtx, slotQuery, slotID).Scan(&state, &hold.OwnerToken, &hold.ExpiresAt)
		if err != nil {
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			if err == pgx.ErrNoRows {
				return domain.ErrSlotNotFound
			}
			return fmt.Errorf("get slot for confirm: %w", err)
		}

		if state != string(domain.SlotStateHeld) || hold.OwnerToken != ownerToken {
			return domain.ErrHoldMismatch
		}
		if !hold.Active(now) {
			return domain.ErrHoldExpired
		}

		if _, err := s.exec(txCtx, insertBooking,
			booking.ID,
			slotID,
			booking.Client.ChatID,
			booking.Client.DisplayName,
			string(booking.Status),
			nullableText(booking.ExternalCalendarRef),
			booking.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSlotUnavailable
			}
			return fmt.Errorf("insert booking: %w", err)
		}

		if _, err := s.exec(txCtx, bookSlot, slotID, booking.ID); err != nil {
			return fmt.Errorf("book slot: %w", err)
		}
		return nil
	})
}

// Release transitions held -> available when ownerToken matches, or when
// the hold has expired regardless of token (expiry reclamation). No-op for
// slots that are available, booked or expired.
func (s *SlotStore) Release(ctx context.Context, slotID, ownerToken string, now time.Time) error {
	const stmt = `
UPDATE slots
SET state = 'available', holder_token = NULL, hold_expires_at = NULL
WHERE id = $1 AND state = 'held' AND (holder_token = $2 OR hold_expires_at <= $3)`

	if _, err := s.exec(ctx, stmt, slotID, ownerToken, now); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// SweepExpiredHolds releases every held slot whose hold expiry has passed
// and reports how many were reclaimed. Idempotent.
func (s *SlotStore) SweepExpiredHolds(ctx context.Context, now time.Time) (int, error) {
	const stmt = `
UPDATE slots
SET state = 'available', holder_token = NULL, hold_expires_at = NULL
WHERE state = 'held' AND hold_expires_at <= $1`

	tag, err := s.exec(ctx, stmt, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired holds: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetBooking returns the booking attached to a booked slot, or nil.
func (s *SlotStore) GetBooking(ctx context.Context, slotID string) (*domain.Booking, error) {
	const query = `
SELECT id, slot_id, client_chat_id, client_name, status, COALESCE(external_calendar_ref, ''), created_at
FROM bookings
WHERE slot_id = $1`

	var b domain.Booking
	var status string
	err := s.queryRow(ctx, query, slotID).
		Scan(&b.ID, &b.SlotID, &b.Client.ChatID, &b.Client.DisplayName, &status, &b.ExternalCalendarRef, &b.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	b.Status = domain.BookingStatus(status)
	return &b, nil
}

func (s *SlotStore) scanSlot(row pgx.Row) (domain.Slot, error) {
	var slot domain.Slot
	var state string
	err := row.Scan(
		&slot.ID, &slot.Date, &slot.StartAt, &slot.EndAt, &state,
		&slot.HolderToken, &slot.HoldExpiresAt, &slot.BookingID, &slot.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Slot{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Slot{}, domain.ErrSlotNotFound
		}
		return domain.Slot{}, err
	}
	slot.State = domain.SlotState(state)
	return slot, nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SlotStore) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *SlotStore) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *SlotStore) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}
