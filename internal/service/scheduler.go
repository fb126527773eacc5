package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"station-scheduler/internal/config"
	"station-scheduler/internal/database"
	"station-scheduler/internal/domain"
	"station-scheduler/internal/his"
	"station-scheduler/internal/ledger"
	"station-scheduler/internal/repository"
	"station-scheduler/internal/scheduler"
	"station-scheduler/internal/sequencer"
	"station-scheduler/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoReport no cached report exists for the station yet
var ErrNoReport = errors.New("no report available")

// ProcedureResolver resolves a procedure id to a display name. Implemented
// by the HIS client; a nil resolver means every procedure keeps its id as
// its name.
type ProcedureResolver interface {
	ResolveProcedureName(procedureID string) (string, bool, error)
}

// SchedulerService runs the reconciliation tick and the intake, completion
// and overtime operations around it
type SchedulerService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	kv          store.KV

	personRepo *repository.PersonRepository
	roomRepo   *repository.RoomRepository
	equipRepo  *repository.EquipmentRepository
	stepRepo   *repository.PatientStepRepository

	reconciler *scheduler.Reconciler
	sequencer  *sequencer.Sequencer
	hisClient  ProcedureResolver
}

// NewSchedulerService creates the scheduler service and its connections
func NewSchedulerService(cfg *config.Config, logger *zap.Logger) (*SchedulerService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := store.NewRedisClient(&cfg.Redis)
	if err := store.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var hisClient ProcedureResolver
	if cfg.HIS.Enabled {
		hisClient = his.NewClient(cfg.HIS.BaseURL, cfg.HIS.AppID, cfg.HIS.AppKey, logger)
	}

	return &SchedulerService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		kv:          store.NewRedisKV(redisClient),
		personRepo:  repository.NewPersonRepository(db, logger),
		roomRepo:    repository.NewRoomRepository(db, logger),
		equipRepo:   repository.NewEquipmentRepository(db, logger),
		stepRepo:    repository.NewPatientStepRepository(db, logger),
		reconciler:  scheduler.NewReconciler(logger),
		sequencer:   sequencer.NewSequencer(logger),
		hisClient:   hisClient,
	}, nil
}

// Start runs the service until the context is cancelled. In polling mode an
// internal ticker drives the tick; in http mode ticks only happen when the
// tick endpoint is called.
func (s *SchedulerService) Start(ctx context.Context) error {
	s.logger.Info("Starting station scheduler service",
		zap.String("trigger_mode", s.config.Scheduler.TriggerMode),
	)

	switch s.config.Scheduler.TriggerMode {
	case "polling":
		return s.startPollingMode(ctx)
	case "http":
		<-ctx.Done()
		return nil
	default:
		return fmt.Errorf("unsupported trigger mode: %s", s.config.Scheduler.TriggerMode)
	}
}

// Stop closes the service's connections
func (s *SchedulerService) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
}

func (s *SchedulerService) startPollingMode(ctx context.Context) error {
	interval := time.Duration(s.config.Scheduler.Polling.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting polling mode",
		zap.Duration("interval", interval),
	)

	if _, err := s.RunTick(ctx, time.Now(), ""); err != nil {
		s.logger.Error("Failed to run tick on startup", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunTick(ctx, time.Now(), ""); err != nil {
				s.logger.Error("Failed to run tick", zap.Error(err))
			}
		}
	}
}

// RunTick runs one reconciliation tick. An empty stationID means every
// station; each station produces its own report. Ticks are stateless: every
// decision is recomputed from the stored snapshot, so a lost tick costs
// nothing but latency.
func (s *SchedulerService) RunTick(ctx context.Context, now time.Time, stationID string) ([]*domain.TickReport, error) {
	var stations []domain.Station
	if stationID != "" {
		stations = []domain.Station{{StationID: stationID}}
	} else {
		all, err := s.roomRepo.GetStations()
		if err != nil {
			return nil, fmt.Errorf("failed to get stations: %w", err)
		}
		stations = all
	}

	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	steps, err := s.stepRepo.ListByDate(date)
	if err != nil {
		return nil, fmt.Errorf("failed to list patient steps: %w", err)
	}

	reports := make([]*domain.TickReport, 0, len(stations))
	for _, station := range stations {
		select {
		case <-ctx.Done():
			return reports, ctx.Err()
		default:
		}

		report, err := s.runStationTick(ctx, now, date, station.StationID, steps)
		if err != nil {
			s.logger.Error("Failed to run station tick",
				zap.String("station_id", station.StationID),
				zap.Error(err),
			)
			continue
		}
		reports = append(reports, report)
	}

	return reports, nil
}

func (s *SchedulerService) runStationTick(ctx context.Context, now, date time.Time, stationID string, allSteps []domain.PatientStep) (*domain.TickReport, error) {
	rooms, err := s.roomRepo.GetRoomsByStation(stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rooms: %w", err)
	}
	procedures, err := s.roomRepo.GetRoomProcedures(stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room procedures: %w", err)
	}
	equipment, err := s.equipRepo.GetEquipmentByStation(stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get equipment: %w", err)
	}
	persons, err := s.personRepo.ListActiveByStation(stationID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}

	report := &domain.TickReport{
		ReportID:  uuid.New().String(),
		StationID: stationID,
		TickTime:  now,
	}

	led := ledger.New(rooms)
	s.seedLedger(led, persons, allSteps, report)

	recResult := s.reconciler.Reconcile(now, persons, rooms, equipment, procedures, led)
	s.applyPersonnelIntents(recResult, report)

	seqResult := s.sequencer.Sequence(now, allSteps, rooms, procedures, led)
	s.applyPatientIntents(seqResult, report)

	s.projectEquipment(led, equipment, report)

	report.UnmatchedRooms = recResult.UnmatchedRooms
	report.UnmatchedIdle = recResult.UnmatchedIdle
	report.Backlog = seqResult.Backlog
	report.Warnings = append(report.Warnings, seqResult.Warnings...)

	s.cacheReport(ctx, report)
	s.cacheRooms(ctx, stationID, rooms, equipment, led)

	s.logger.Info("Completed station tick",
		zap.String("station_id", stationID),
		zap.Int("evicted", report.Evicted),
		zap.Int("assigned", report.Assigned),
		zap.Int("steps_started", report.StepsStarted),
		zap.Int("steps_completed", report.StepsCompleted),
		zap.Int("backlog", len(report.Backlog)),
	)

	return report, nil
}

// seedLedger loads current occupancy from the snapshot. Corrupt occupancy
// (two same-class occupants of one room) is reported and skipped.
func (s *SchedulerService) seedLedger(led *ledger.Ledger, persons []domain.Person, steps []domain.PatientStep, report *domain.TickReport) {
	for _, p := range persons {
		if p.AssignedRoomID == nil {
			continue
		}
		occ := ledger.Occupant{ID: p.PersonID, Class: ledger.ClassOf(p.Role)}
		if err := led.Seed(*p.AssignedRoomID, occ); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"person %s in room %s: %v", p.PersonID, *p.AssignedRoomID, err))
		}
	}
	for _, st := range steps {
		if st.Status != domain.StepInProcess || st.RoomID == nil {
			continue
		}
		occ := ledger.Occupant{ID: st.StepID, Class: ledger.ClassPatient}
		if err := led.Seed(*st.RoomID, occ); err != nil {
			// Steps homed in other stations' rooms land here; only report
			// genuine double occupancy.
			if errors.Is(err, ledger.ErrRoomOccupied) {
				report.Warnings = append(report.Warnings, fmt.Sprintf(
					"step %s in room %s: %v", st.StepID, *st.RoomID, err))
			}
		}
	}
}

// applyPersonnelIntents writes the reconciler's intents through guarded
// updates. A lost race means another writer got there first; the next tick
// re-reads and converges, so it is logged and recorded but never fatal.
func (s *SchedulerService) applyPersonnelIntents(res *scheduler.Result, report *domain.TickReport) {
	for _, ch := range res.StatusChanges {
		if err := s.personRepo.UpdateStatus(ch.PersonID, ch.To); err != nil {
			s.logger.Warn("Failed to update person status",
				zap.String("person_id", ch.PersonID),
				zap.Error(err),
			)
			continue
		}
		report.Lines = append(report.Lines, domain.ReportLine{
			Action:  domain.ActionStatusChanged,
			Subject: ch.PersonID,
			Detail:  fmt.Sprintf("%s -> %s", ch.From, ch.To),
		})
	}

	for _, ev := range res.Evictions {
		if err := s.personRepo.VacateRoom(ev.PersonID, ev.NewStatus); err != nil {
			s.recordRaceOrError(report, err, string(ev.Role), ev.PersonID, ev.RoomID, "vacate")
			continue
		}
		report.Evicted++
		report.Lines = append(report.Lines, domain.ReportLine{
			Action:  domain.ActionEvicted,
			Class:   string(ev.Role),
			Subject: ev.PersonID,
			RoomID:  ev.RoomID,
			Detail:  string(ev.NewStatus),
		})
	}

	for _, as := range res.Assignments {
		if err := s.personRepo.OccupyRoom(as.PersonID, as.RoomID, as.NewStatus, as.Role); err != nil {
			s.recordRaceOrError(report, err, string(as.Role), as.PersonID, as.RoomID, "occupy")
			continue
		}
		report.Assigned++
		report.Lines = append(report.Lines, domain.ReportLine{
			Action:  domain.ActionAssigned,
			Class:   string(as.Role),
			Subject: as.PersonID,
			RoomID:  as.RoomID,
			Detail:  string(as.NewStatus),
		})
	}
}

func (s *SchedulerService) applyPatientIntents(res *sequencer.Result, report *domain.TickReport) {
	for _, c := range res.Completions {
		if err := s.stepRepo.CompleteStep(c.StepID, c.ActualTime, c.WaitMinutes); err != nil {
			s.recordRaceOrError(report, err, "patient", c.StepID, c.RoomID, "complete")
			continue
		}
		report.StepsCompleted++
		report.Lines = append(report.Lines, domain.ReportLine{
			Action:  domain.ActionStepCompleted,
			Class:   "patient",
			Subject: c.HN,
			RoomID:  c.RoomID,
			Detail:  fmt.Sprintf("wait %d min", c.WaitMinutes),
		})
	}

	for _, st := range res.Starts {
		if err := s.stepRepo.StartStep(st.StepID, st.RoomID, st.ArrivalTime); err != nil {
			s.recordRaceOrError(report, err, "patient", st.StepID, st.RoomID, "start")
			continue
		}
		report.StepsStarted++
		report.Lines = append(report.Lines, domain.ReportLine{
			Action:  domain.ActionStepStarted,
			Class:   "patient",
			Subject: st.HN,
			RoomID:  st.RoomID,
		})
	}
}

func (s *SchedulerService) recordRaceOrError(report *domain.TickReport, err error, class, subject, roomID, op string) {
	if errors.Is(err, repository.ErrLostRace) {
		s.logger.Debug("Conditional update lost race",
			zap.String("op", op),
			zap.String("subject", subject),
			zap.String("room_id", roomID),
		)
		report.Lines = append(report.Lines, domain.ReportLine{
			Action:  domain.ActionLostRace,
			Class:   class,
			Subject: subject,
			RoomID:  roomID,
			Detail:  op,
		})
		return
	}
	s.logger.Error("Failed to apply intent",
		zap.String("op", op),
		zap.String("subject", subject),
		zap.String("room_id", roomID),
		zap.Error(err),
	)
}

// projectEquipment flips each equipment active flag to follow staff
// occupancy. The flag is a pure projection: no history, no hysteresis.
func (s *SchedulerService) projectEquipment(led *ledger.Ledger, equipment []domain.Equipment, report *domain.TickReport) {
	for _, eq := range equipment {
		active := led.EquipmentActive(eq)
		if active == eq.IsActive {
			continue
		}
		if err := s.equipRepo.SetEquipmentActive(eq.EquipmentID, active); err != nil {
			s.logger.Error("Failed to flip equipment flag",
				zap.String("equipment_id", eq.EquipmentID),
				zap.Error(err),
			)
			continue
		}
		report.Lines = append(report.Lines, domain.ReportLine{
			Action:  domain.ActionEquipment,
			Subject: eq.EquipmentID,
			RoomID:  eq.RoomID,
			Detail:  fmt.Sprintf("active=%t", active),
		})
	}
}

// RoomView per-room occupancy and equipment state cached after each tick
type RoomView struct {
	RoomID    string           `json:"room_id"`
	RoomName  string           `json:"room_name"`
	StaffID   *string          `json:"staff_id,omitempty"`
	DoctorID  *string          `json:"doctor_id,omitempty"`
	PatientID *string          `json:"patient_step_id,omitempty"`
	Equipment []EquipmentState `json:"equipment,omitempty"`
}

// EquipmentState equipment active flag as projected in the last tick
type EquipmentState struct {
	EquipmentID   string `json:"equipment_id"`
	EquipmentName string `json:"equipment_name"`
	Active        bool   `json:"active"`
}

func reportKey(stationID string) string { return fmt.Sprintf("station:%s:report:latest", stationID) }
func roomsKey(stationID string) string  { return fmt.Sprintf("station:%s:rooms", stationID) }

func (s *SchedulerService) cacheReport(ctx context.Context, report *domain.TickReport) {
	data, err := json.Marshal(report)
	if err != nil {
		s.logger.Error("Failed to marshal tick report", zap.Error(err))
		return
	}
	ttl := time.Duration(s.config.Scheduler.ReportTTL) * time.Second
	if err := s.kv.Set(ctx, reportKey(report.StationID), string(data), ttl); err != nil {
		s.logger.Warn("Failed to cache tick report",
			zap.String("station_id", report.StationID),
			zap.Error(err),
		)
	}
}

func (s *SchedulerService) cacheRooms(ctx context.Context, stationID string, rooms []domain.Room, equipment []domain.Equipment, led *ledger.Ledger) {
	equipByRoom := make(map[string][]EquipmentState)
	for _, eq := range equipment {
		equipByRoom[eq.RoomID] = append(equipByRoom[eq.RoomID], EquipmentState{
			EquipmentID:   eq.EquipmentID,
			EquipmentName: eq.EquipmentName,
			Active:        led.EquipmentActive(eq),
		})
	}

	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		view := RoomView{
			RoomID:    room.RoomID,
			RoomName:  room.RoomName,
			Equipment: equipByRoom[room.RoomID],
		}
		if id, ok := led.Occupant(room.RoomID, ledger.ClassStaff); ok {
			view.StaffID = &id
		}
		if id, ok := led.Occupant(room.RoomID, ledger.ClassDoctor); ok {
			view.DoctorID = &id
		}
		if id, ok := led.Occupant(room.RoomID, ledger.ClassPatient); ok {
			view.PatientID = &id
		}
		views = append(views, view)
	}

	data, err := json.Marshal(views)
	if err != nil {
		s.logger.Error("Failed to marshal room views", zap.Error(err))
		return
	}
	ttl := time.Duration(s.config.Scheduler.ReportTTL) * time.Second
	if err := s.kv.Set(ctx, roomsKey(stationID), string(data), ttl); err != nil {
		s.logger.Warn("Failed to cache room views",
			zap.String("station_id", stationID),
			zap.Error(err),
		)
	}
}

// GetLatestReport gets the cached report for a station
func (s *SchedulerService) GetLatestReport(ctx context.Context, stationID string) (json.RawMessage, error) {
	data, err := s.kv.Get(ctx, reportKey(stationID))
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("failed to get cached report: %w", err)
	}
	return json.RawMessage(data), nil
}

// GetRooms gets the cached per-room occupancy view for a station
func (s *SchedulerService) GetRooms(ctx context.Context, stationID string) (json.RawMessage, error) {
	data, err := s.kv.Get(ctx, roomsKey(stationID))
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("failed to get cached rooms: %w", err)
	}
	return json.RawMessage(data), nil
}

// IntakePatient creates a new patient journey for one day: a payment step
// first, then the requested procedures in order, then pharmacy and
// discharge. Procedure names come from the HIS when it is configured;
// unresolvable ids get a placeholder and stay out of automatic matching.
func (s *SchedulerService) IntakePatient(hn string, date time.Time, procedureIDs []string) ([]domain.PatientStep, error) {
	if hn == "" {
		return nil, fmt.Errorf("hn is required")
	}
	if len(procedureIDs) == 0 {
		return nil, fmt.Errorf("at least one procedure is required")
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	var steps []domain.PatientStep
	add := func(procedureID, name string, mapped bool) {
		steps = append(steps, domain.PatientStep{
			StepID:          uuid.New().String(),
			HN:              hn,
			AppointmentDate: day,
			RunningNumber:   len(steps) + 1,
			ProcedureID:     procedureID,
			ProcedureName:   name,
			Mapped:          mapped,
			Status:          domain.StepWaiting,
		})
	}

	add(domain.ProcedurePayment, "Payment", true)
	for _, id := range procedureIDs {
		name, mapped, err := s.resolveProcedure(id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve procedure %s: %w", id, err)
		}
		add(id, name, mapped)
	}
	add(domain.ProcedurePharmacy, "Pharmacy", true)
	add(domain.ProcedureDischarge, "Discharge", true)

	if err := s.stepRepo.CreateJourney(steps); err != nil {
		return nil, err
	}

	s.logger.Info("Created patient journey",
		zap.String("hn", hn),
		zap.Time("date", day),
		zap.Int("step_count", len(steps)),
	)

	return steps, nil
}

func (s *SchedulerService) resolveProcedure(procedureID string) (string, bool, error) {
	if s.hisClient == nil {
		return procedureID, true, nil
	}
	return s.hisClient.ResolveProcedureName(procedureID)
}

// CompleteStepNow finishes an in_process step before its target, stamping
// the actual time and the overshoot (zero when finished on time or early)
func (s *SchedulerService) CompleteStepNow(stepID string, now time.Time) error {
	st, err := s.stepRepo.GetStep(stepID)
	if err != nil {
		return err
	}

	wait := 0
	if st.TimeTarget != nil && now.After(*st.TimeTarget) {
		wait = int(now.Sub(*st.TimeTarget).Minutes())
	}

	return s.stepRepo.CompleteStep(stepID, now, wait)
}

// GrantOvertime extends a person's working window for today. The extension
// only matters when it reaches past the regular work end; the next tick
// reclassifies the person against it.
func (s *SchedulerService) GrantOvertime(personID string, until domain.TimeOfDay) error {
	if until <= 0 {
		return fmt.Errorf("overtime end must be a positive time of day")
	}
	return s.personRepo.GrantOvertime(personID, until)
}
