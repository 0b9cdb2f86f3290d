package postgres

import (
	"context"
	"fmt"

	"github.com/hrygo/slawatch/store"
)

func (d *DB) GetDashboardStats(ctx context.Context, fromTs, toTs int64) (*store.DashboardStats, error) {
	stats := &store.DashboardStats{}

	query := `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status NOT IN ('answered', 'closed')),
			COUNT(*) FILTER (WHERE status = 'answered'),
			COUNT(*) FILTER (WHERE sla_breached),
			AVG(response_time_minutes) FILTER (WHERE response_time_minutes IS NOT NULL)
		FROM client_request
		WHERE received_ts BETWEEN $1 AND $2`
	if err := d.db.QueryRowContext(ctx, query, fromTs, toTs).Scan(
		&stats.TotalRequests, &stats.OpenRequests, &stats.AnsweredRequests,
		&stats.BreachedRequests, &stats.AvgResponseMinutes,
	); err != nil {
		return nil, fmt.Errorf("failed to get dashboard stats: %w", err)
	}

	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sla_alert WHERE resolved_action IS NULL AND delivery_status <> 'failed'`,
	).Scan(&stats.ActiveAlerts); err != nil {
		return nil, fmt.Errorf("failed to count active alerts: %w", err)
	}

	if stats.AnsweredRequests > 0 {
		var onTime int64
		if err := d.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM client_request WHERE received_ts BETWEEN $1 AND $2 AND status = 'answered' AND NOT sla_breached`,
			fromTs, toTs,
		).Scan(&onTime); err != nil {
			return nil, fmt.Errorf("failed to count on-time requests: %w", err)
		}
		stats.ComplianceRate = float64(onTime) / float64(stats.AnsweredRequests)
	}

	return stats, nil
}

func (d *DB) GetAccountantStats(ctx context.Context, fromTs, toTs int64) ([]*store.AccountantStat, error) {
	query := `SELECT
			responded_by,
			COUNT(*),
			COUNT(*) FILTER (WHERE sla_breached),
			AVG(response_time_minutes)
		FROM client_request
		WHERE received_ts BETWEEN $1 AND $2 AND responded_by IS NOT NULL
		GROUP BY responded_by
		ORDER BY COUNT(*) DESC`
	rows, err := d.db.QueryContext(ctx, query, fromTs, toTs)
	if err != nil {
		return nil, fmt.Errorf("failed to get accountant stats: %w", err)
	}
	defer rows.Close()

	list := make([]*store.AccountantStat, 0)
	for rows.Next() {
		s := &store.AccountantStat{}
		if err := rows.Scan(&s.AccountantID, &s.Answered, &s.Breached, &s.AvgResponseMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan accountant stats: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accountant stats: %w", err)
	}

	return list, nil
}

func (d *DB) GetSlaCompliance(ctx context.Context, fromTs, toTs int64, tz string) ([]*store.ComplianceBucket, error) {
	query := `SELECT
			TO_CHAR(TO_TIMESTAMP(received_ts) AT TIME ZONE $3, 'YYYY-MM-DD') AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'answered' AND NOT sla_breached),
			COUNT(*) FILTER (WHERE sla_breached)
		FROM client_request
		WHERE received_ts BETWEEN $1 AND $2
		GROUP BY day
		ORDER BY day ASC`
	rows, err := d.db.QueryContext(ctx, query, fromTs, toTs, tz)
	if err != nil {
		return nil, fmt.Errorf("failed to get sla compliance: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ComplianceBucket, 0)
	for rows.Next() {
		b := &store.ComplianceBucket{}
		if err := rows.Scan(&b.Date, &b.Total, &b.OnTime, &b.Breached); err != nil {
			return nil, fmt.Errorf("failed to scan sla compliance: %w", err)
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sla compliance: %w", err)
	}

	return list, nil
}

func (d *DB) GetResponseTimeStats(ctx context.Context, fromTs, toTs int64, tz string) ([]*store.ResponseTimeBucket, error) {
	query := `SELECT
			TO_CHAR(TO_TIMESTAMP(received_ts) AT TIME ZONE $3, 'YYYY-MM-DD') AS day,
			AVG(response_time_minutes),
			MAX(response_time_minutes),
			COUNT(*)
		FROM client_request
		WHERE received_ts BETWEEN $1 AND $2 AND status = 'answered'
		GROUP BY day
		ORDER BY day ASC`
	rows, err := d.db.QueryContext(ctx, query, fromTs, toTs, tz)
	if err != nil {
		return nil, fmt.Errorf("failed to get response time stats: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ResponseTimeBucket, 0)
	for rows.Next() {
		b := &store.ResponseTimeBucket{}
		if err := rows.Scan(&b.Date, &b.AvgMinutes, &b.MaxMinutes, &b.Answered); err != nil {
			return nil, fmt.Errorf("failed to scan response time stats: %w", err)
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response time stats: %w", err)
	}

	return list, nil
}

// PurgeBefore removes rows older than the retention cutoff. Requests still
// open are kept regardless of age.
func (d *DB) PurgeBefore(ctx context.Context, cutoffTs int64) (*store.PurgeResult, error) {
	result := &store.PurgeResult{}

	res, err := d.db.ExecContext(ctx,
		`DELETE FROM sla_alert WHERE request_id IN (
			SELECT id FROM client_request WHERE received_ts < $1 AND status IN ('answered', 'closed')
		)`, cutoffTs)
	if err != nil {
		return nil, fmt.Errorf("failed to purge sla_alerts: %w", err)
	}
	result.Alerts, _ = res.RowsAffected()

	res, err = d.db.ExecContext(ctx,
		`DELETE FROM client_request WHERE received_ts < $1 AND status IN ('answered', 'closed')`, cutoffTs)
	if err != nil {
		return nil, fmt.Errorf("failed to purge client_requests: %w", err)
	}
	result.Requests, _ = res.RowsAffected()

	res, err = d.db.ExecContext(ctx, `DELETE FROM chat_message WHERE sent_ts < $1`, cutoffTs)
	if err != nil {
		return nil, fmt.Errorf("failed to purge chat_messages: %w", err)
	}
	result.Messages, _ = res.RowsAffected()

	res, err = d.db.ExecContext(ctx, `DELETE FROM classification_cache WHERE expires_ts < $1`, cutoffTs)
	if err != nil {
		return nil, fmt.Errorf("failed to purge classification_cache: %w", err)
	}
	result.CacheEntries, _ = res.RowsAffected()

	return result, nil
}
