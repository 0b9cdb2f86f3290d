package store

// DashboardStats is the aggregate view for the admin dashboard.
type DashboardStats struct {
	TotalRequests      int64
	OpenRequests       int64
	AnsweredRequests   int64
	BreachedRequests   int64
	ActiveAlerts       int64
	AvgResponseMinutes *float64
	ComplianceRate     float64 // answered-in-time / answered, 0..1
}

// AccountantStat aggregates response performance per accountant.
type AccountantStat struct {
	AccountantID       int64
	Answered           int64
	Breached           int64
	AvgResponseMinutes *float64
}

// ComplianceBucket is one day of SLA compliance numbers.
type ComplianceBucket struct {
	Date     string // YYYY-MM-DD in the instance timezone
	Total    int64
	OnTime   int64
	Breached int64
}

// ResponseTimeBucket is one day of response-time aggregates.
type ResponseTimeBucket struct {
	Date       string
	AvgMinutes *float64
	MaxMinutes *int32
	Answered   int64
}

// AlertStats aggregates alert delivery and resolution outcomes.
type AlertStats struct {
	Total      int64
	Pending    int64
	Delivered  int64
	Failed     int64
	Resolved   int64
	ByLevel    map[int32]int64
}

// PurgeResult reports rows removed by a data-retention sweep.
type PurgeResult struct {
	Messages     int64
	Requests     int64
	Alerts       int64
	CacheEntries int64
}
