package database

import (
	"context"
	"database/sql"
	"errors"
)

// GetHive retrieves a hive by id; returns nil, nil when the hive does not exist
func (db *DB) GetHive(ctx context.Context, id int) (*Hive, error) {
	query := `
		SELECT id, name, location_lat, location_lng, created_at, updated_at
		FROM hives
		WHERE id = $1
	`

	var h Hive
	err := db.QueryRowContext(ctx, query, id).Scan(
		&h.ID,
		&h.Name,
		&h.Lat,
		&h.Lon,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &h, nil
}

// CreateHive inserts a hive, leaving an existing row with the same id untouched
func (db *DB) CreateHive(ctx context.Context, h *Hive) error {
	query := `
		INSERT INTO hives (id, name, location_lat, location_lng)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := db.ExecContext(ctx, query, h.ID, h.Name, h.Lat, h.Lon)
	return err
}

// UpdateHive changes the name and/or location of a hive. Nil arguments keep the stored value.
// Returns false when the hive does not exist.
func (db *DB) UpdateHive(ctx context.Context, id int, name *string, lat, lon *float64) (bool, error) {
	query := `
		UPDATE hives
		SET name = COALESCE($2, name),
		    location_lat = COALESCE($3, location_lat),
		    location_lng = COALESCE($4, location_lng),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := db.ExecContext(ctx, query, id, name, lat, lon)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListHiveIDs returns the ids of all registered hives
func (db *DB) ListHiveIDs(ctx context.Context) ([]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM hives ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
