package store

// GlobalSettings is the singleton configuration row. Working-hours fields are
// the fallback when a chat has no schedule of its own.
type GlobalSettings struct {
	DefaultTimezone            string
	WorkingDays                []int64 // ISO weekdays, 1 = Monday
	WorkStartTime              string  // HH:MM
	WorkEndTime                string  // HH:MM
	SlaThresholdMinutes        int32
	MaxEscalations             int32
	EscalationIntervalMinutes  int32
	WarningPercent             int32
	AIConfidenceThreshold      float64
	KeywordConfidenceThreshold float64
	CacheTTLHours              int32
	GlobalManagerIDs           []int64
	PreviewLength              int32
	RetentionDays              int32
	UpdatedTs                  int64
}

// UpdateGlobalSettings applies a partial update: only provided fields are
// written.
type UpdateGlobalSettings struct {
	DefaultTimezone            *string
	WorkingDays                []int64
	WorkStartTime              *string
	WorkEndTime                *string
	SlaThresholdMinutes        *int32
	MaxEscalations             *int32
	EscalationIntervalMinutes  *int32
	WarningPercent             *int32
	AIConfidenceThreshold      *float64
	KeywordConfidenceThreshold *float64
	CacheTTLHours              *int32
	GlobalManagerIDs           []int64
	PreviewLength              *int32
	RetentionDays              *int32
	UpdatedTs                  *int64
}

// DefaultGlobalSettings returns the hard-coded fallback configuration.
func DefaultGlobalSettings() *GlobalSettings {
	return &GlobalSettings{
		DefaultTimezone:            "Europe/Moscow",
		WorkingDays:                []int64{1, 2, 3, 4, 5},
		WorkStartTime:              "09:00",
		WorkEndTime:                "18:00",
		SlaThresholdMinutes:        60,
		MaxEscalations:             3,
		EscalationIntervalMinutes:  30,
		WarningPercent:             80,
		AIConfidenceThreshold:      0.7,
		KeywordConfidenceThreshold: 0.6,
		CacheTTLHours:              24,
		GlobalManagerIDs:           nil,
		PreviewLength:              200,
		RetentionDays:              365,
	}
}
