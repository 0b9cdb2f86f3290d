package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hrygo/slawatch/store"
)

const settingsFields = "default_timezone, working_days, work_start_time, work_end_time, sla_threshold_minutes, max_escalations, escalation_interval_minutes, warning_percent, ai_confidence_threshold, keyword_confidence_threshold, cache_ttl_hours, global_manager_ids, preview_length, retention_days, updated_ts"

func (d *DB) GetGlobalSettings(ctx context.Context) (*store.GlobalSettings, error) {
	query := `SELECT ` + settingsFields + ` FROM global_settings WHERE id = 1`
	s := &store.GlobalSettings{}
	var days, managers pq.Int64Array
	if err := d.db.QueryRowContext(ctx, query).Scan(
		&s.DefaultTimezone, &days, &s.WorkStartTime, &s.WorkEndTime,
		&s.SlaThresholdMinutes, &s.MaxEscalations, &s.EscalationIntervalMinutes,
		&s.WarningPercent, &s.AIConfidenceThreshold, &s.KeywordConfidenceThreshold,
		&s.CacheTTLHours, &managers, &s.PreviewLength, &s.RetentionDays, &s.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to get global_settings: %w", err)
	}
	s.WorkingDays = days
	s.GlobalManagerIDs = managers
	return s, nil
}

func (d *DB) UpdateGlobalSettings(ctx context.Context, update *store.UpdateGlobalSettings) (*store.GlobalSettings, error) {
	set, args := []string{}, []any{}

	if update.DefaultTimezone != nil {
		set, args = append(set, "default_timezone = "+placeholder(len(args)+1)), append(args, *update.DefaultTimezone)
	}
	if update.WorkingDays != nil {
		set, args = append(set, "working_days = "+placeholder(len(args)+1)), append(args, pq.Int64Array(update.WorkingDays))
	}
	if update.WorkStartTime != nil {
		set, args = append(set, "work_start_time = "+placeholder(len(args)+1)), append(args, *update.WorkStartTime)
	}
	if update.WorkEndTime != nil {
		set, args = append(set, "work_end_time = "+placeholder(len(args)+1)), append(args, *update.WorkEndTime)
	}
	if update.SlaThresholdMinutes != nil {
		set, args = append(set, "sla_threshold_minutes = "+placeholder(len(args)+1)), append(args, *update.SlaThresholdMinutes)
	}
	if update.MaxEscalations != nil {
		set, args = append(set, "max_escalations = "+placeholder(len(args)+1)), append(args, *update.MaxEscalations)
	}
	if update.EscalationIntervalMinutes != nil {
		set, args = append(set, "escalation_interval_minutes = "+placeholder(len(args)+1)), append(args, *update.EscalationIntervalMinutes)
	}
	if update.WarningPercent != nil {
		set, args = append(set, "warning_percent = "+placeholder(len(args)+1)), append(args, *update.WarningPercent)
	}
	if update.AIConfidenceThreshold != nil {
		set, args = append(set, "ai_confidence_threshold = "+placeholder(len(args)+1)), append(args, *update.AIConfidenceThreshold)
	}
	if update.KeywordConfidenceThreshold != nil {
		set, args = append(set, "keyword_confidence_threshold = "+placeholder(len(args)+1)), append(args, *update.KeywordConfidenceThreshold)
	}
	if update.CacheTTLHours != nil {
		set, args = append(set, "cache_ttl_hours = "+placeholder(len(args)+1)), append(args, *update.CacheTTLHours)
	}
	if update.GlobalManagerIDs != nil {
		set, args = append(set, "global_manager_ids = "+placeholder(len(args)+1)), append(args, pq.Int64Array(update.GlobalManagerIDs))
	}
	if update.PreviewLength != nil {
		set, args = append(set, "preview_length = "+placeholder(len(args)+1)), append(args, *update.PreviewLength)
	}
	if update.RetentionDays != nil {
		set, args = append(set, "retention_days = "+placeholder(len(args)+1)), append(args, *update.RetentionDays)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return d.GetGlobalSettings(ctx)
	}

	stmt := `UPDATE global_settings SET ` + strings.Join(set, ", ") + ` WHERE id = 1`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to update global_settings: %w", err)
	}

	return d.GetGlobalSettings(ctx)
}
