package store

// RowStatus is the status of a row. Archived rows are hidden from listings
// but kept for history.
type RowStatus string

const (
	Normal   RowStatus = "NORMAL"
	Archived RowStatus = "ARCHIVED"
)

func (r RowStatus) String() string {
	return string(r)
}
