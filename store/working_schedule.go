package store

// WorkingSchedule is one active weekday of a chat's schedule. Weekday follows
// ISO-8601: 1 = Monday .. 7 = Sunday. Times are wall-clock "HH:MM" strings in
// the row's timezone.
type WorkingSchedule struct {
	ID        int32
	ChatID    int64
	Weekday   int32
	StartTime string
	EndTime   string
	Timezone  string
	CreatedTs int64
	UpdatedTs int64
}

type FindWorkingSchedule struct {
	ChatID  *int64
	Weekday *int32
}

// ReplaceWorkingSchedule swaps the full weekly schedule of a chat in one
// transaction. An empty Rows slice clears the chat-level schedule so the
// global defaults apply again.
type ReplaceWorkingSchedule struct {
	ChatID int64
	Rows   []*WorkingSchedule
}
