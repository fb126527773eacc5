package repository

import (
	"database/sql"
	"fmt"

	"station-scheduler/internal/domain"

	"go.uber.org/zap"
)

// RoomRepository stations, rooms and room capability access
type RoomRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *sql.DB, logger *zap.Logger) *RoomRepository {
	return &RoomRepository{
		db:     db,
		logger: logger,
	}
}

// GetStations gets all stations
func (r *RoomRepository) GetStations() ([]domain.Station, error) {
	query := `
		SELECT station_id, station_name
		FROM stations
		ORDER BY station_name, station_id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	var stations []domain.Station
	for rows.Next() {
		var s domain.Station
		if err := rows.Scan(&s.StationID, &s.StationName); err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stations: %w", err)
	}

	return stations, nil
}

// GetRoomsByStation gets all rooms of a station, ordered by name so that
// room matching is deterministic
func (r *RoomRepository) GetRoomsByStation(stationID string) ([]domain.Room, error) {
	query := `
		SELECT room_id, station_id, room_name
		FROM rooms
		WHERE station_id = $1
		ORDER BY room_name, room_id`

	rows, err := r.db.Query(query, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		var rm domain.Room
		if err := rows.Scan(&rm.RoomID, &rm.StationID, &rm.RoomName); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}

	return rooms, nil
}

// GetRoomProcedures gets the procedure capabilities of every room of a
// station. Rows with all_from_station = TRUE carry an empty procedure_id.
func (r *RoomRepository) GetRoomProcedures(stationID string) ([]domain.RoomProcedure, error) {
	query := `
		SELECT rp.room_id, COALESCE(rp.procedure_id, ''), rp.all_from_station
		FROM room_procedures rp
		INNER JOIN rooms rm ON rp.room_id = rm.room_id
		WHERE rm.station_id = $1`

	rows, err := r.db.Query(query, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query room procedures: %w", err)
	}
	defer rows.Close()

	var procedures []domain.RoomProcedure
	for rows.Next() {
		var rp domain.RoomProcedure
		if err := rows.Scan(&rp.RoomID, &rp.ProcedureID, &rp.AllFromStation); err != nil {
			return nil, fmt.Errorf("failed to scan room procedure: %w", err)
		}
		procedures = append(procedures, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room procedures: %w", err)
	}

	return procedures, nil
}
