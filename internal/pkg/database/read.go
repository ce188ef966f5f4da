package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

// GetReadings returns the readings of a property between from and to, newest
// first. Without bounds the last two days are returned.
func (db *Database) GetReadings(ctx context.Context, propertyID string, from, to *time.Time) ([]model.Reading, error) {
	if from == nil || to == nil {
		now := time.Now()
		start := now.AddDate(0, 0, -2)
		from, to = &start, &now
	}

	rows, err := db.pool.Query(ctx, `
	SELECT time_stamp, thing_id, property_id, name, type, value
	FROM property_reading
	WHERE property_id = $1 AND time_stamp BETWEEN $2 AND $3
	ORDER BY time_stamp DESC;
	`, propertyID, *from, *to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReadings(rows)
}

// GetLatestReadings returns the newest reading of every property.
func (db *Database) GetLatestReadings(ctx context.Context) ([]model.Reading, error) {
	rows, err := db.pool.Query(ctx, `
	SELECT DISTINCT ON (property_id) time_stamp, thing_id, property_id, name, type, value
	FROM property_reading
	ORDER BY property_id, time_stamp DESC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReadings(rows)
}

func scanReadings(rows pgx.Rows) ([]model.Reading, error) {
	readings := []model.Reading{}
	for rows.Next() {
		var (
			r     model.Reading
			typ   string
			value []byte
		)
		if err := rows.Scan(&r.TimeStamp, &r.ThingID, &r.PropertyID, &r.Name, &typ, &value); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(value, &r.Value); err != nil {
			return nil, err
		}
		r.Type = model.PropertyType(typ)
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return readings, nil
		}
		return nil, err
	}
	return readings, nil
}
