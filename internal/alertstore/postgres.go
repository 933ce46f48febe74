package alertstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresBackend stores alerts in the alerts table
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend creates a relational backend on an open connection
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (p *PostgresBackend) Name() string { return "postgres" }

const alertColumns = `alert_id, hive_id, created_at, category, alert_type, priority, priority_rank,
	message, probability, level, metadata, recommendations, used_features,
	acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_by, resolved_at, resolution_notes`

// Append implements Backend
func (p *PostgresBackend) Append(ctx context.Context, a *Alert) error {
	metadata, recs, features, err := encodeAlertJSON(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = p.db.ExecContext(ctx, query,
		a.ID, a.HiveID, a.Timestamp, string(a.Category), a.AlertType, string(a.Priority), a.PriorityRank,
		a.Message, a.Probability, a.Level, metadata, recs, features,
		a.Acknowledged, nullString(a.AcknowledgedBy), a.AcknowledgedAt,
		a.Resolved, nullString(a.ResolvedBy), a.ResolvedAt, nullString(a.ResolutionNotes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Update implements Backend
func (p *PostgresBackend) Update(ctx context.Context, a *Alert) error {
	query := `
		UPDATE alerts
		SET acknowledged = $2, acknowledged_by = $3, acknowledged_at = $4,
		    resolved = $5, resolved_by = $6, resolved_at = $7, resolution_notes = $8
		WHERE alert_id = $1
	`
	result, err := p.db.ExecContext(ctx, query,
		a.ID,
		a.Acknowledged, nullString(a.AcknowledgedBy), a.AcknowledgedAt,
		a.Resolved, nullString(a.ResolvedBy), a.ResolvedAt, nullString(a.ResolutionNotes),
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s not found", a.ID)
	}
	return nil
}

// Get implements Backend
func (p *PostgresBackend) Get(ctx context.Context, id string) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE alert_id = $1`

	rows, err := p.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return alerts[0], nil
}

// Recent implements Backend
func (p *PostgresBackend) Recent(ctx context.Context, limit int) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts ORDER BY created_at DESC LIMIT $1`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]*Alert, error) {
	var alerts []*Alert
	for rows.Next() {
		var (
			a                        Alert
			category, priority       string
			probability              sql.NullFloat64
			level                    sql.NullInt64
			metadata, recs, features []byte
			ackBy, resolvedBy, notes sql.NullString
			ackAt, resolvedAt        sql.NullTime
		)

		err := rows.Scan(
			&a.ID, &a.HiveID, &a.Timestamp, &category, &a.AlertType, &priority, &a.PriorityRank,
			&a.Message, &probability, &level, &metadata, &recs, &features,
			&a.Acknowledged, &ackBy, &ackAt, &a.Resolved, &resolvedBy, &resolvedAt, &notes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		a.Category = Category(category)
		a.Priority = Priority(priority)
		if a.Category == CategoryThreat {
			a.ThreatType = a.AlertType
		}
		if probability.Valid {
			v := probability.Float64
			a.Probability = &v
		}
		if level.Valid {
			v := int(level.Int64)
			a.Level = &v
		}
		a.AcknowledgedBy = ackBy.String
		a.ResolvedBy = resolvedBy.String
		a.ResolutionNotes = notes.String
		if ackAt.Valid {
			t := ackAt.Time
			a.AcknowledgedAt = &t
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}

		if err := decodeAlertJSON(&a, metadata, recs, features); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// encodeAlertJSON returns JSONB arguments; absent optional documents are untyped nil so they bind as NULL
func encodeAlertJSON(a *Alert) (metadata []byte, recs, features any, err error) {
	md := a.Metadata
	if md == nil {
		md = map[string]any{}
	}
	if metadata, err = json.Marshal(md); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode alert metadata: %w", err)
	}
	if a.Recommendations != nil {
		b, err := json.Marshal(a.Recommendations)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode recommendations: %w", err)
		}
		recs = b
	}
	if a.UsedFeatures != nil {
		b, err := json.Marshal(a.UsedFeatures)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode used features: %w", err)
		}
		features = b
	}
	return metadata, recs, features, nil
}

func decodeAlertJSON(a *Alert, metadata, recs, features []byte) error {
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return fmt.Errorf("failed to decode alert metadata: %w", err)
		}
		if len(a.Metadata) == 0 {
			a.Metadata = nil
		}
	}
	if len(recs) > 0 {
		var r Recommendation
		if err := json.Unmarshal(recs, &r); err != nil {
			return fmt.Errorf("failed to decode recommendations: %w", err)
		}
		a.Recommendations = &r
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &a.UsedFeatures); err != nil {
			return fmt.Errorf("failed to decode used features: %w", err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
