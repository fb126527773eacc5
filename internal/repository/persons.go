package repository

import (
	"database/sql"
	"fmt"
	"time"

	"station-scheduler/internal/domain"

	"go.uber.org/zap"
)

// PersonRepository persons table access
type PersonRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPersonRepository creates a new person repository
func NewPersonRepository(db *sql.DB, logger *zap.Logger) *PersonRepository {
	return &PersonRepository{
		db:     db,
		logger: logger,
	}
}

// ListActiveByStation gets all active persons rostered on a station for one
// work date, ordered by name for deterministic downstream processing
func (r *PersonRepository) ListActiveByStation(stationID string, workDate time.Time) ([]domain.Person, error) {
	query := `
		SELECT person_id, station_id, person_name, role, work_date,
		       work_start, work_end, break_start, break_end, overtime_end,
		       assigned_room_id, status, is_active
		FROM persons
		WHERE station_id = $1
		  AND work_date = $2
		  AND is_active = TRUE
		ORDER BY person_name, person_id`

	rows, err := r.db.Query(query, stationID, workDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	defer rows.Close()

	var persons []domain.Person
	for rows.Next() {
		var p domain.Person
		var workStart, workEnd sql.NullInt64
		var breakStart, breakEnd, overtimeEnd sql.NullInt64
		if err := rows.Scan(
			&p.PersonID, &p.StationID, &p.PersonName, &p.Role, &p.WorkDate,
			&workStart, &workEnd, &breakStart, &breakEnd, &overtimeEnd,
			&p.AssignedRoomID, &p.Status, &p.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		p.Schedule.WorkStart = todPtr(workStart)
		p.Schedule.WorkEnd = todPtr(workEnd)
		p.Schedule.BreakStart = todPtr(breakStart)
		p.Schedule.BreakEnd = todPtr(breakEnd)
		p.Schedule.OvertimeEnd = todPtr(overtimeEnd)
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate persons: %w", err)
	}

	return persons, nil
}

// OccupyRoom assigns a room to a person, guarded so that the person does not
// already hold a room and no active person of the same role holds the target
// room. Returns ErrLostRace when the guard fails.
func (r *PersonRepository) OccupyRoom(personID, roomID string, status domain.PersonStatus, role domain.PersonRole) error {
	query := `
		UPDATE persons
		SET assigned_room_id = $2, status = $3, updated_at = NOW()
		WHERE person_id = $1
		  AND is_active = TRUE
		  AND assigned_room_id IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM persons p2
			WHERE p2.assigned_room_id = $2
			  AND p2.role = $4
			  AND p2.is_active = TRUE
		  )`

	result, err := r.db.Exec(query, personID, roomID, status, role)
	if err != nil {
		return fmt.Errorf("failed to occupy room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrLostRace
	}

	return nil
}

// VacateRoom clears a person's room and writes the new status. Returns
// ErrLostRace when the person no longer holds a room.
func (r *PersonRepository) VacateRoom(personID string, status domain.PersonStatus) error {
	query := `
		UPDATE persons
		SET assigned_room_id = NULL, status = $2, updated_at = NOW()
		WHERE person_id = $1
		  AND assigned_room_id IS NOT NULL`

	result, err := r.db.Exec(query, personID, status)
	if err != nil {
		return fmt.Errorf("failed to vacate room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrLostRace
	}

	return nil
}

// UpdateStatus writes a newly classified status
func (r *PersonRepository) UpdateStatus(personID string, status domain.PersonStatus) error {
	query := `
		UPDATE persons
		SET status = $2, updated_at = NOW()
		WHERE person_id = $1
		  AND is_active = TRUE`

	result, err := r.db.Exec(query, personID, status)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// GrantOvertime extends a person's working window for the day. The grant
// only takes effect when it lies beyond the regular work end.
func (r *PersonRepository) GrantOvertime(personID string, until domain.TimeOfDay) error {
	query := `
		UPDATE persons
		SET overtime_end = $2, updated_at = NOW()
		WHERE person_id = $1
		  AND is_active = TRUE`

	result, err := r.db.Exec(query, personID, int64(until))
	if err != nil {
		return fmt.Errorf("failed to grant overtime: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func todPtr(v sql.NullInt64) *domain.TimeOfDay {
	if !v.Valid {
		return nil
	}
	t := domain.TimeOfDay(v.Int64)
	return &t
}
