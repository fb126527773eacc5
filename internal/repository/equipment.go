package repository

import (
	"database/sql"
	"fmt"

	"station-scheduler/internal/domain"

	"go.uber.org/zap"
)

// EquipmentRepository equipment table access
type EquipmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEquipmentRepository creates a new equipment repository
func NewEquipmentRepository(db *sql.DB, logger *zap.Logger) *EquipmentRepository {
	return &EquipmentRepository{
		db:     db,
		logger: logger,
	}
}

// GetEquipmentByStation gets all equipment installed in a station's rooms
func (r *EquipmentRepository) GetEquipmentByStation(stationID string) ([]domain.Equipment, error) {
	query := `
		SELECT e.equipment_id, e.room_id, e.equipment_name, e.require_staff, e.is_active
		FROM equipment e
		INNER JOIN rooms rm ON e.room_id = rm.room_id
		WHERE rm.station_id = $1
		ORDER BY e.equipment_name, e.equipment_id`

	rows, err := r.db.Query(query, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equipment: %w", err)
	}
	defer rows.Close()

	var equipment []domain.Equipment
	for rows.Next() {
		var e domain.Equipment
		if err := rows.Scan(&e.EquipmentID, &e.RoomID, &e.EquipmentName, &e.RequireStaff, &e.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		equipment = append(equipment, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate equipment: %w", err)
	}

	return equipment, nil
}

// SetEquipmentActive writes the projected active flag. The WHERE clause
// skips rows already carrying the value, so repeated ticks are cheap.
func (r *EquipmentRepository) SetEquipmentActive(equipmentID string, active bool) error {
	query := `
		UPDATE equipment
		SET is_active = $2, updated_at = NOW()
		WHERE equipment_id = $1
		  AND is_active <> $2`

	if _, err := r.db.Exec(query, equipmentID, active); err != nil {
		return fmt.Errorf("failed to set equipment active: %w", err)
	}

	return nil
}
