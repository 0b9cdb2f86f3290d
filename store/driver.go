package store

import (
	"context"
	"errors"
)

// Sentinel errors shared by all drivers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Driver is an interface for store driver.
// It contains all methods that interact with the underlying database.
type Driver interface {
	GetDB() any
	Close() error
	Migrate(ctx context.Context) error

	// SystemSetting
	GetSystemValue(ctx context.Context, name string) (string, error)
	UpsertSystemValue(ctx context.Context, name, value string) error

	// Chat
	CreateChat(ctx context.Context, create *Chat) (*Chat, error)
	GetChat(ctx context.Context, id int64) (*Chat, error)
	ListChats(ctx context.Context, find *FindChat) ([]*Chat, error)
	UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error)

	// WorkingSchedule
	ListWorkingSchedules(ctx context.Context, find *FindWorkingSchedule) ([]*WorkingSchedule, error)
	ReplaceWorkingSchedule(ctx context.Context, replace *ReplaceWorkingSchedule) error

	// Holiday
	CreateHoliday(ctx context.Context, create *Holiday) (*Holiday, error)
	ListHolidays(ctx context.Context, find *FindHoliday) ([]*Holiday, error)
	DeleteHoliday(ctx context.Context, delete *DeleteHoliday) (bool, error)

	// ChatMessage
	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	GetLatestChatMessage(ctx context.Context, chatID, messageID int64) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)

	// ClientRequest
	CreateClientRequest(ctx context.Context, create *ClientRequest) (*ClientRequest, error)
	GetClientRequest(ctx context.Context, id int64) (*ClientRequest, error)
	ListClientRequests(ctx context.Context, find *FindClientRequest) ([]*ClientRequest, error)
	UpdateClientRequest(ctx context.Context, update *UpdateClientRequest) (*ClientRequest, error)

	// SlaAlert
	CreateSlaAlert(ctx context.Context, create *SlaAlert) (*SlaAlert, error)
	GetSlaAlert(ctx context.Context, id int64) (*SlaAlert, error)
	ListSlaAlerts(ctx context.Context, find *FindSlaAlert) ([]*SlaAlert, error)
	UpdateSlaAlert(ctx context.Context, update *UpdateSlaAlert) (*SlaAlert, error)
	GetAlertStats(ctx context.Context) (*AlertStats, error)

	// ClassificationCache
	GetClassificationCache(ctx context.Context, hash string, nowTs int64) (*ClassificationCacheEntry, error)
	UpsertClassificationCache(ctx context.Context, entry *ClassificationCacheEntry) error

	// GlobalSettings
	GetGlobalSettings(ctx context.Context) (*GlobalSettings, error)
	UpdateGlobalSettings(ctx context.Context, update *UpdateGlobalSettings) (*GlobalSettings, error)

	// Jobs (durable delayed queue)
	EnqueueJob(ctx context.Context, create *Job) (*Job, bool, error)
	GetJobByJobID(ctx context.Context, queue, jobID string) (*Job, error)
	CancelJob(ctx context.Context, queue, jobID string) (bool, error)
	ClaimJobs(ctx context.Context, queue string, limit int, nowTs, staleBeforeTs int64) ([]*Job, error)
	CompleteJob(ctx context.Context, id int64) error
	ReleaseJob(ctx context.Context, id int64, errMsg string, retryAtTs *int64) error
	SweepJobs(ctx context.Context, queue string, keepCompleted, keepFailed int) (int64, error)
	CountJobs(ctx context.Context, queue string, state JobState) (int64, error)

	// Analytics
	GetDashboardStats(ctx context.Context, fromTs, toTs int64) (*DashboardStats, error)
	GetAccountantStats(ctx context.Context, fromTs, toTs int64) ([]*AccountantStat, error)
	GetSlaCompliance(ctx context.Context, fromTs, toTs int64, tz string) ([]*ComplianceBucket, error)
	GetResponseTimeStats(ctx context.Context, fromTs, toTs int64, tz string) ([]*ResponseTimeBucket, error)

	// Retention
	PurgeBefore(ctx context.Context, cutoffTs int64) (*PurgeResult, error)
}
