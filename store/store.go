// Package store provides database access to all raw objects.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hrygo/slawatch/internal/profile"
	"github.com/hrygo/slawatch/internal/version"
)

// SystemKeyVersion is the system_setting row holding the version that last
// wrote the schema.
const SystemKeyVersion = "version"

const settingsCacheTTL = time.Minute

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Global settings are read on every classified message; cache them
	// briefly to keep the hot path off the database.
	settingsMu      sync.Mutex
	settingsCached  *GlobalSettings
	settingsFetched time.Time
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate applies the schema and records the running version. A binary older
// than the one that last wrote the schema refuses to start.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return err
	}

	stored, err := s.driver.GetSystemValue(ctx, SystemKeyVersion)
	if err != nil && err != ErrNotFound {
		return err
	}
	if err := verifyVersionCompatible(s.profile.Version, stored); err != nil {
		return err
	}
	if stored == s.profile.Version {
		return nil
	}
	return s.driver.UpsertSystemValue(ctx, SystemKeyVersion, s.profile.Version)
}

func verifyVersionCompatible(current, stored string) error {
	if stored == "" || version.IsVersionGreaterOrEqualThan(current, stored) {
		return nil
	}
	return fmt.Errorf("database was written by version %s, refusing to run older version %s", stored, current)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Chat

func (s *Store) CreateChat(ctx context.Context, create *Chat) (*Chat, error) {
	return s.driver.CreateChat(ctx, create)
}

func (s *Store) GetChat(ctx context.Context, id int64) (*Chat, error) {
	return s.driver.GetChat(ctx, id)
}

func (s *Store) ListChats(ctx context.Context, find *FindChat) ([]*Chat, error) {
	return s.driver.ListChats(ctx, find)
}

func (s *Store) UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error) {
	return s.driver.UpdateChat(ctx, update)
}

// WorkingSchedule

func (s *Store) ListWorkingSchedules(ctx context.Context, find *FindWorkingSchedule) ([]*WorkingSchedule, error) {
	return s.driver.ListWorkingSchedules(ctx, find)
}

func (s *Store) ReplaceWorkingSchedule(ctx context.Context, replace *ReplaceWorkingSchedule) error {
	return s.driver.ReplaceWorkingSchedule(ctx, replace)
}

// Holiday

func (s *Store) CreateHoliday(ctx context.Context, create *Holiday) (*Holiday, error) {
	return s.driver.CreateHoliday(ctx, create)
}

func (s *Store) ListHolidays(ctx context.Context, find *FindHoliday) ([]*Holiday, error) {
	return s.driver.ListHolidays(ctx, find)
}

func (s *Store) DeleteHoliday(ctx context.Context, delete *DeleteHoliday) (bool, error) {
	return s.driver.DeleteHoliday(ctx, delete)
}

// ChatMessage

func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	return s.driver.CreateChatMessage(ctx, create)
}

func (s *Store) GetLatestChatMessage(ctx context.Context, chatID, messageID int64) (*ChatMessage, error) {
	return s.driver.GetLatestChatMessage(ctx, chatID, messageID)
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

// ClientRequest

func (s *Store) CreateClientRequest(ctx context.Context, create *ClientRequest) (*ClientRequest, error) {
	return s.driver.CreateClientRequest(ctx, create)
}

func (s *Store) GetClientRequest(ctx context.Context, id int64) (*ClientRequest, error) {
	return s.driver.GetClientRequest(ctx, id)
}

func (s *Store) ListClientRequests(ctx context.Context, find *FindClientRequest) ([]*ClientRequest, error) {
	return s.driver.ListClientRequests(ctx, find)
}

func (s *Store) UpdateClientRequest(ctx context.Context, update *UpdateClientRequest) (*ClientRequest, error) {
	return s.driver.UpdateClientRequest(ctx, update)
}

// SlaAlert

func (s *Store) CreateSlaAlert(ctx context.Context, create *SlaAlert) (*SlaAlert, error) {
	return s.driver.CreateSlaAlert(ctx, create)
}

func (s *Store) GetSlaAlert(ctx context.Context, id int64) (*SlaAlert, error) {
	return s.driver.GetSlaAlert(ctx, id)
}

func (s *Store) ListSlaAlerts(ctx context.Context, find *FindSlaAlert) ([]*SlaAlert, error) {
	return s.driver.ListSlaAlerts(ctx, find)
}

func (s *Store) UpdateSlaAlert(ctx context.Context, update *UpdateSlaAlert) (*SlaAlert, error) {
	return s.driver.UpdateSlaAlert(ctx, update)
}

func (s *Store) GetAlertStats(ctx context.Context) (*AlertStats, error) {
	return s.driver.GetAlertStats(ctx)
}

// ClassificationCache

func (s *Store) GetClassificationCache(ctx context.Context, hash string, nowTs int64) (*ClassificationCacheEntry, error) {
	return s.driver.GetClassificationCache(ctx, hash, nowTs)
}

func (s *Store) UpsertClassificationCache(ctx context.Context, entry *ClassificationCacheEntry) error {
	return s.driver.UpsertClassificationCache(ctx, entry)
}

// GlobalSettings

func (s *Store) GetGlobalSettings(ctx context.Context) (*GlobalSettings, error) {
	s.settingsMu.Lock()
	if s.settingsCached != nil && time.Since(s.settingsFetched) < settingsCacheTTL {
		cached := s.settingsCached
		s.settingsMu.Unlock()
		return cached, nil
	}
	s.settingsMu.Unlock()

	settings, err := s.driver.GetGlobalSettings(ctx)
	if err != nil {
		return nil, err
	}

	s.settingsMu.Lock()
	s.settingsCached = settings
	s.settingsFetched = time.Now()
	s.settingsMu.Unlock()
	return settings, nil
}

func (s *Store) UpdateGlobalSettings(ctx context.Context, update *UpdateGlobalSettings) (*GlobalSettings, error) {
	settings, err := s.driver.UpdateGlobalSettings(ctx, update)
	if err != nil {
		return nil, err
	}
	s.settingsMu.Lock()
	s.settingsCached = settings
	s.settingsFetched = time.Now()
	s.settingsMu.Unlock()
	return settings, nil
}

// Jobs

func (s *Store) EnqueueJob(ctx context.Context, create *Job) (*Job, bool, error) {
	return s.driver.EnqueueJob(ctx, create)
}

func (s *Store) GetJobByJobID(ctx context.Context, queue, jobID string) (*Job, error) {
	return s.driver.GetJobByJobID(ctx, queue, jobID)
}

func (s *Store) CancelJob(ctx context.Context, queue, jobID string) (bool, error) {
	return s.driver.CancelJob(ctx, queue, jobID)
}

func (s *Store) ClaimJobs(ctx context.Context, queue string, limit int, nowTs, staleBeforeTs int64) ([]*Job, error) {
	return s.driver.ClaimJobs(ctx, queue, limit, nowTs, staleBeforeTs)
}

func (s *Store) CompleteJob(ctx context.Context, id int64) error {
	return s.driver.CompleteJob(ctx, id)
}

func (s *Store) ReleaseJob(ctx context.Context, id int64, errMsg string, retryAtTs *int64) error {
	return s.driver.ReleaseJob(ctx, id, errMsg, retryAtTs)
}

func (s *Store) SweepJobs(ctx context.Context, queue string, keepCompleted, keepFailed int) (int64, error) {
	return s.driver.SweepJobs(ctx, queue, keepCompleted, keepFailed)
}

func (s *Store) CountJobs(ctx context.Context, queue string, state JobState) (int64, error) {
	return s.driver.CountJobs(ctx, queue, state)
}

// Analytics

func (s *Store) GetDashboardStats(ctx context.Context, fromTs, toTs int64) (*DashboardStats, error) {
	return s.driver.GetDashboardStats(ctx, fromTs, toTs)
}

func (s *Store) GetAccountantStats(ctx context.Context, fromTs, toTs int64) ([]*AccountantStat, error) {
	return s.driver.GetAccountantStats(ctx, fromTs, toTs)
}

func (s *Store) GetSlaCompliance(ctx context.Context, fromTs, toTs int64, tz string) ([]*ComplianceBucket, error) {
	return s.driver.GetSlaCompliance(ctx, fromTs, toTs, tz)
}

func (s *Store) GetResponseTimeStats(ctx context.Context, fromTs, toTs int64, tz string) ([]*ResponseTimeBucket, error) {
	return s.driver.GetResponseTimeStats(ctx, fromTs, toTs, tz)
}

// Retention

func (s *Store) PurgeBefore(ctx context.Context, cutoffTs int64) (*PurgeResult, error) {
	return s.driver.PurgeBefore(ctx, cutoffTs)
}
