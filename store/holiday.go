package store

// Holiday is a calendar date treated as a non-working day. ChatID is nil for
// global holidays. At most one row exists per (scope, date).
type Holiday struct {
	ID        int32
	ChatID    *int64
	Date      string // YYYY-MM-DD
	Name      string
	CreatedTs int64
}

type FindHoliday struct {
	ChatID     *int64
	GlobalOnly bool
	DateFrom   *string
	DateTo     *string
}

type DeleteHoliday struct {
	ChatID *int64
	Date   string
}
