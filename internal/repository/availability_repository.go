package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
)

// AvailabilityRepo persists the availability windows providers declare.
// Windows are read by the availability checker; when a provider has none,
// the checker falls back to default business hours.
type AvailabilityRepo struct {
	db *sql.DB
}

// NewAvailabilityRepo returns an AvailabilityRepo bound to the database.
func NewAvailabilityRepo(db *sql.DB) *AvailabilityRepo { return &AvailabilityRepo{db: db} }

// ListForProvider returns all declared windows for a provider, recurring
// and one-off alike.
func (r *AvailabilityRepo) ListForProvider(ctx context.Context, p model.ProviderRef) ([]model.AvailabilityWindow, error) {
	const q = `SELECT id, provider_kind, provider_id, weekday, date, start_minute, end_minute, created_at
		FROM availability_windows WHERE provider_kind = ? AND provider_id = ?
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, p.Kind, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AvailabilityWindow, 0)
	for rows.Next() {
		var w model.AvailabilityWindow
		var weekday sql.NullInt64
		var date sql.NullTime
		if err := rows.Scan(&w.ID, &w.Provider.Kind, &w.Provider.ID,
			&weekday, &date, &w.StartMinute, &w.EndMinute, &w.CreatedAt); err != nil {
			return nil, err
		}
		if weekday.Valid {
			d := int(weekday.Int64)
			w.Weekday = &d
		}
		if date.Valid {
			t := date.Time
			w.Date = &t
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Create inserts a declared window.  Weekday and Date are mutually
// exclusive; validation happens in the handler.
func (r *AvailabilityRepo) Create(ctx context.Context, w *model.AvailabilityWindow) error {
	const q = `INSERT INTO availability_windows
		(provider_kind, provider_id, weekday, date, start_minute, end_minute)
		VALUES (?, ?, ?, ?, ?, ?)`
	var weekday any
	if w.Weekday != nil {
		weekday = *w.Weekday
	}
	var date any
	if w.Date != nil {
		date = w.Date.UTC().Format("2006-01-02")
	}
	res, err := r.db.ExecContext(ctx, q, w.Provider.Kind, w.Provider.ID,
		weekday, date, w.StartMinute, w.EndMinute)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	w.ID = uint64(id)
	w.CreatedAt = time.Now().UTC()
	return nil
}

// Delete removes a declared window owned by the given provider.
func (r *AvailabilityRepo) Delete(ctx context.Context, id uint64, p model.ProviderRef) error {
	const q = `DELETE FROM availability_windows WHERE id = ? AND provider_kind = ? AND provider_id = ?`
	res, err := r.db.ExecContext(ctx, q, id, p.Kind, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrForbidden
	}
	return nil
}
