package meter

import "time"

// Meter represents a single utility meter being tracked
type Meter struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Number           string    `json:"number"` // Printed meter number, unique across all meters
	LastMonthReading float64   `json:"last_month_reading"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Reading represents one captured meter value. Readings are append-only:
// they are never edited after creation and only go away when their meter
// is deleted.
type Reading struct {
	ID        string    `json:"id"`
	MeterID   string    `json:"meter_id"`
	Value     float64   `json:"value"`
	TakenAt   time.Time `json:"taken_at"`
	ImageFile string    `json:"image_file,omitempty"` // Storage path of the captured photo, if any
	Initial   bool      `json:"initial,omitempty"`    // Synthesized baseline reading seeded from LastMonthReading
	CreatedAt time.Time `json:"created_at"`
}
