package meter

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// IDGenerator generates unique IDs for meters and readings
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates fixed-width decimal IDs from UnixNano
// timestamps. The width and the monotonic bump keep IDs lexically ordered
// by creation, which the consumption sort relies on as a tie-break key.
type defaultIDGenerator struct {
	mu   sync.Mutex
	last int64
}

func (g *defaultIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := time.Now().UnixNano()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return fmt.Sprintf("%020d", n)
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service owns the meter registry: the set of meters, their append-only
// reading log, and the monthly reset day setting.
type Service struct {
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// MeterSummary is the per-meter reporting view: the meter, its most recent
// reading, and the net consumption within the current billing period.
type MeterSummary struct {
	Meter       *Meter   `json:"meter"`
	Latest      *Reading `json:"latest_reading,omitempty"`
	Consumption float64  `json:"consumption"`
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// validFiniteValue rejects NaN and infinities
func validFiniteValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// checkDuplicateNumber fails when another live meter carries the number.
// excludeID skips the meter being edited.
func (s *Service) checkDuplicateNumber(number, excludeID string) error {
	meters, err := s.db.ListMeters()
	if err != nil {
		return fmt.Errorf("listing meters: %w", err)
	}
	for _, m := range meters {
		if m.ID != excludeID && m.Number == number {
			return fmt.Errorf("number %q: %w", number, ErrDuplicateMeterNumber)
		}
	}
	return nil
}

// AddMeter registers a new meter. When lastMonthReading is positive it also
// synthesizes an initial reading dated at the current period start, so the
// first real capture yields a meaningful consumption delta instead of
// comparing against nothing.
func (s *Service) AddMeter(name, number string, lastMonthReading float64) (*Meter, error) {
	name = strings.TrimSpace(name)
	number = strings.TrimSpace(number)
	if name == "" {
		return nil, fmt.Errorf("meter name is required: %w", ErrInvalidInput)
	}
	if number == "" {
		return nil, fmt.Errorf("meter number is required: %w", ErrInvalidInput)
	}
	if !validFiniteValue(lastMonthReading) {
		return nil, fmt.Errorf("last month reading must be a finite number: %w", ErrInvalidInput)
	}
	if err := s.checkDuplicateNumber(number, ""); err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	meter := &Meter{
		ID:               s.idGenerator.Generate(),
		Name:             name,
		Number:           number,
		LastMonthReading: lastMonthReading,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.SaveMeter(meter); err != nil {
		return nil, fmt.Errorf("saving meter: %w", err)
	}

	if lastMonthReading > 0 {
		resetDay, err := s.db.ResetDay()
		if err != nil {
			s.db.DeleteMeter(meter.ID)
			return nil, fmt.Errorf("loading reset day: %w", err)
		}
		initial := &Reading{
			ID:        s.idGenerator.Generate(),
			MeterID:   meter.ID,
			Value:     lastMonthReading,
			TakenAt:   CurrentPeriodStart(now, resetDay),
			Initial:   true,
			CreatedAt: now,
		}
		if err := s.db.SaveReading(initial); err != nil {
			// Roll the meter back so a failed add leaves no trace
			s.db.DeleteMeter(meter.ID)
			return nil, fmt.Errorf("saving initial reading: %w", err)
		}
	}

	return meter, nil
}

// UpdateMeter edits a meter's name, number and baseline. The uniqueness
// check excludes the meter being edited. A non-positive lastMonthReading
// keeps the existing baseline.
func (s *Service) UpdateMeter(id, name, number string, lastMonthReading float64) (*Meter, error) {
	name = strings.TrimSpace(name)
	number = strings.TrimSpace(number)
	if name == "" {
		return nil, fmt.Errorf("meter name is required: %w", ErrInvalidInput)
	}
	if number == "" {
		return nil, fmt.Errorf("meter number is required: %w", ErrInvalidInput)
	}
	if !validFiniteValue(lastMonthReading) {
		return nil, fmt.Errorf("last month reading must be a finite number: %w", ErrInvalidInput)
	}

	meter, err := s.db.GetMeter(id)
	if err != nil {
		return nil, fmt.Errorf("getting meter: %w", err)
	}
	if err := s.checkDuplicateNumber(number, id); err != nil {
		return nil, err
	}

	meter.Name = name
	meter.Number = number
	if lastMonthReading > 0 {
		meter.LastMonthReading = lastMonthReading
	}
	meter.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveMeter(meter); err != nil {
		return nil, fmt.Errorf("saving meter: %w", err)
	}
	return meter, nil
}

// DeleteMeter removes a meter together with every reading that references
// it, including stored photos. Deleting an unknown id is a no-op: the
// registry stays consistent under a double-invoke.
func (s *Service) DeleteMeter(id string) error {
	if _, err := s.db.GetMeter(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("getting meter for deletion: %w", err)
	}

	readings, err := s.db.ListMeterReadings(id)
	if err != nil {
		return fmt.Errorf("listing readings for deletion: %w", err)
	}
	for _, r := range readings {
		if r.ImageFile == "" {
			continue
		}
		if err := s.storage.Delete(r.ImageFile); err != nil {
			// Keep going: the records must not outlive the meter
			slog.Warn("Failed to delete reading photo", "file", r.ImageFile, "error", err)
		}
	}

	if err := s.db.DeleteMeterReadings(id); err != nil {
		return fmt.Errorf("deleting readings: %w", err)
	}
	if err := s.db.DeleteMeter(id); err != nil {
		return fmt.Errorf("deleting meter: %w", err)
	}
	return nil
}

// GetMeter retrieves a meter by ID
func (s *Service) GetMeter(id string) (*Meter, error) {
	meter, err := s.db.GetMeter(id)
	if err != nil {
		return nil, fmt.Errorf("getting meter: %w", err)
	}
	return meter, nil
}

// ListMeters returns all meters
func (s *Service) ListMeters() ([]*Meter, error) {
	meters, err := s.db.ListMeters()
	if err != nil {
		return nil, fmt.Errorf("listing meters: %w", err)
	}
	return meters, nil
}

// AddReading appends a reading to a meter's log. The value must be finite
// and the meter must exist. A non-empty image is stored alongside and
// referenced from the reading. A zero takenAt means "now".
func (s *Service) AddReading(meterID string, value float64, image []byte, contentType string, takenAt time.Time) (*Reading, error) {
	if !validFiniteValue(value) {
		return nil, fmt.Errorf("reading value must be a finite number: %w", ErrInvalidInput)
	}
	if _, err := s.db.GetMeter(meterID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("meter %s does not exist: %w", meterID, ErrInvalidInput)
		}
		return nil, fmt.Errorf("getting meter: %w", err)
	}

	now := s.timeSource.Now()
	if takenAt.IsZero() {
		takenAt = now
	}

	reading := &Reading{
		ID:        s.idGenerator.Generate(),
		MeterID:   meterID,
		Value:     value,
		TakenAt:   takenAt,
		CreatedAt: now,
	}

	if len(image) > 0 {
		filename := fmt.Sprintf("%s%s", reading.ID, imageExtension(contentType))
		saved, err := s.storage.Save(filename, image)
		if err != nil {
			return nil, fmt.Errorf("saving reading photo: %w", err)
		}
		reading.ImageFile = saved
	}

	if err := s.db.SaveReading(reading); err != nil {
		if reading.ImageFile != "" {
			s.storage.Delete(reading.ImageFile)
		}
		return nil, fmt.Errorf("saving reading: %w", err)
	}
	return reading, nil
}

// RecentReadings returns up to limit readings, newest first. A limit of 0
// or less means no cap.
func (s *Service) RecentReadings(limit int) ([]*Reading, error) {
	readings, err := s.db.ListReadings()
	if err != nil {
		return nil, fmt.Errorf("listing readings: %w", err)
	}
	sort.Slice(readings, func(i, j int) bool {
		if readings[i].TakenAt.Equal(readings[j].TakenAt) {
			return readings[i].ID > readings[j].ID
		}
		return readings[i].TakenAt.After(readings[j].TakenAt)
	})
	if limit > 0 && len(readings) > limit {
		readings = readings[:limit]
	}
	return readings, nil
}

// ReadingImage retrieves the stored photo for a reading
func (s *Service) ReadingImage(id string) ([]byte, string, error) {
	readings, err := s.db.ListReadings()
	if err != nil {
		return nil, "", fmt.Errorf("listing readings: %w", err)
	}
	for _, r := range readings {
		if r.ID != id {
			continue
		}
		if r.ImageFile == "" {
			return nil, "", fmt.Errorf("reading %s has no photo: %w", id, ErrNotFound)
		}
		data, err := s.storage.Get(r.ImageFile)
		if err != nil {
			return nil, "", fmt.Errorf("getting reading photo: %w", err)
		}
		return data, contentTypeForFile(r.ImageFile), nil
	}
	return nil, "", fmt.Errorf("reading %s: %w", id, ErrNotFound)
}

// Summaries reports every meter with its latest reading and the consumption
// accrued within the current billing period. The period boundary is derived
// from the clock on every call, never cached.
func (s *Service) Summaries() ([]*MeterSummary, error) {
	meters, err := s.db.ListMeters()
	if err != nil {
		return nil, fmt.Errorf("listing meters: %w", err)
	}
	resetDay, err := s.db.ResetDay()
	if err != nil {
		return nil, fmt.Errorf("loading reset day: %w", err)
	}
	periodStart := CurrentPeriodStart(s.timeSource.Now(), resetDay)

	summaries := make([]*MeterSummary, 0, len(meters))
	for _, m := range meters {
		readings, err := s.db.ListMeterReadings(m.ID)
		if err != nil {
			return nil, fmt.Errorf("listing readings for meter %s: %w", m.ID, err)
		}
		summaries = append(summaries, &MeterSummary{
			Meter:       m,
			Latest:      LatestReading(readings),
			Consumption: ConsumptionSince(readings, periodStart),
		})
	}
	return summaries, nil
}

// ResetDay returns the configured monthly reset day
func (s *Service) ResetDay() (int, error) {
	day, err := s.db.ResetDay()
	if err != nil {
		return 0, fmt.Errorf("loading reset day: %w", err)
	}
	return day, nil
}

// SetResetDay stores the monthly reset day
func (s *Service) SetResetDay(day int) error {
	if day < minResetDay || day > maxResetDay {
		return fmt.Errorf("reset day must be between %d and %d: %w", minResetDay, maxResetDay, ErrInvalidInput)
	}
	if err := s.db.SaveResetDay(day); err != nil {
		return fmt.Errorf("saving reset day: %w", err)
	}
	return nil
}

// imageExtension picks a file extension for a stored photo
func imageExtension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/heic", "image/heif":
		return ".heic"
	default:
		return ".jpg"
	}
}

// contentTypeForFile maps a stored photo filename back to a MIME type
func contentTypeForFile(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".png"):
		return "image/png"
	case strings.HasSuffix(filename, ".gif"):
		return "image/gif"
	case strings.HasSuffix(filename, ".heic"):
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
