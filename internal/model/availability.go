package model

import "time"

// Default business hours applied when a provider has declared no
// availability windows at all.
const (
	DefaultOpenMinute  = 9 * 60  // 09:00
	DefaultCloseMinute = 18 * 60 // 18:00
)

// AvailabilityWindow declares when a provider accepts bookings.  A window
// is either recurring (Weekday set, Date nil) or one-off (Date set).
// Start and end are minutes from midnight in the provider's day, half-open.
type AvailabilityWindow struct {
	ID          uint64      `json:"id"`
	Provider    ProviderRef `json:"provider"`
	Weekday     *int        `json:"weekday,omitempty"` // 0=Sunday .. 6=Saturday
	Date        *time.Time  `json:"date,omitempty"`    // midnight UTC of the one-off day
	StartMinute int         `json:"start_minute"`
	EndMinute   int         `json:"end_minute"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Covers reports whether the window admits the requested interval on the
// given day.  The requested times must fall on a single calendar day; the
// caller splits multi-day requests before asking.
func (w AvailabilityWindow) Covers(start, end time.Time) bool {
	day := start.UTC()
	if w.Date != nil {
		d := w.Date.UTC()
		if d.Year() != day.Year() || d.YearDay() != day.YearDay() {
			return false
		}
	} else if w.Weekday != nil {
		if int(day.Weekday()) != *w.Weekday {
			return false
		}
	}
	sm := day.Hour()*60 + day.Minute()
	em := end.UTC().Hour()*60 + end.UTC().Minute()
	if em == 0 { // midnight end means end of day
		em = 24 * 60
	}
	return sm >= w.StartMinute && em <= w.EndMinute
}

// WithinBusinessHours is the fallback check used when no windows are
// declared for a provider.
func WithinBusinessHours(start, end time.Time) bool {
	w := AvailabilityWindow{StartMinute: DefaultOpenMinute, EndMinute: DefaultCloseMinute}
	return w.Covers(start, end)
}
