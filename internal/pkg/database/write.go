package database

import (
	"context"
	"encoding/json"

	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

func (db *Database) Write(ctx context.Context, readings []model.Reading) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range readings {
		value, err := json.Marshal(r.Value)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO property_reading (time_stamp, thing_id, property_id, name, type, value)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.TimeStamp, r.ThingID, r.PropertyID, r.Name, r.Type.String(), value); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (db *Database) RegisterProperty(ctx context.Context, property model.Property) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO property (id, thing_id, name, variable_name, type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET thing_id = EXCLUDED.thing_id, name = EXCLUDED.name,
			variable_name = EXCLUDED.variable_name, type = EXCLUDED.type;`,
		property.ID, property.ThingID, property.Name, property.VariableName(), property.Type.String())
	return err
}
