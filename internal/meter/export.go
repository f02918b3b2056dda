package meter

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// The flat export format: one header row, one row per reading, every cell
// wrapped in double quotes. Quoting is deliberately naive (no escaping of
// embedded quotes) to stay byte-compatible with files produced by earlier
// versions of this tool; the parser below strips quotes the same way.
const exportHeader = `"Meter Number","Meter Name","Date","Time","Current Reading","Image Blob"`

const (
	exportDateLayout = "2006-01-02"
	exportTimeLayout = "15:04:05"
)

// ImportResult summarizes a completed import
type ImportResult struct {
	MetersCreated    int `json:"meters_created"`
	ReadingsImported int `json:"readings_imported"`
	RowsSkipped      int `json:"rows_skipped"`
}

// ExportCSV writes every reading as one CSV row. Timestamps are split into
// UTC ISO date and time-of-day columns; photos are inlined as base64.
// Readings whose meter no longer resolves are exported with "Unknown"
// placeholders rather than dropped.
func (s *Service) ExportCSV(w io.Writer) error {
	meters, err := s.db.ListMeters()
	if err != nil {
		return fmt.Errorf("listing meters: %w", err)
	}
	readings, err := s.db.ListReadings()
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	byID := make(map[string]*Meter, len(meters))
	for _, m := range meters {
		byID[m.ID] = m
	}

	rows := make([]string, 0, len(readings)+1)
	rows = append(rows, exportHeader)
	for _, r := range readings {
		number, name := "Unknown", "Unknown"
		if m, ok := byID[r.MeterID]; ok {
			number, name = m.Number, m.Name
		}

		blob := ""
		if r.ImageFile != "" {
			data, err := s.storage.Get(r.ImageFile)
			if err != nil {
				slog.Warn("Failed to load reading photo for export", "file", r.ImageFile, "error", err)
			} else {
				blob = base64.StdEncoding.EncodeToString(data)
			}
		}

		taken := r.TakenAt.UTC()
		cells := []string{
			number,
			name,
			taken.Format(exportDateLayout),
			taken.Format(exportTimeLayout),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			blob,
		}
		rows = append(rows, quoteRow(cells))
	}

	if _, err := io.WriteString(w, strings.Join(rows, "\n")); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}

// ImportCSV parses an exported file and merges it into the registry.
// Merging only ever appends: existing meters and readings are never edited
// or deleted. Rows are processed in file order and a meter auto-created for
// one row is visible to every later row of the same import, so repeated
// references to a new number land on a single meter. Malformed rows are
// skipped and counted, never fatal; nothing is committed until the whole
// file has been staged.
func (s *Service) ImportCSV(data []byte) (*ImportResult, error) {
	existing, err := s.db.ListMeters()
	if err != nil {
		return nil, fmt.Errorf("listing meters: %w", err)
	}

	byNumber := make(map[string]*Meter, len(existing))
	for _, m := range existing {
		byNumber[m.Number] = m
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("no data rows found: %w", ErrInvalidInput)
	}

	now := s.timeSource.Now()
	result := &ImportResult{}
	var newMeters []*Meter
	var newReadings []*Reading
	images := make(map[string][]byte)

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := splitRow(line)
		number := cellAt(cells, 0)
		name := cellAt(cells, 1)
		date := cellAt(cells, 2)
		timeOfDay := cellAt(cells, 3)
		rawValue := cellAt(cells, 4)
		blob := cellAt(cells, 5)

		// Row-level tolerance: one bad row must not abort the import
		if number == "" || rawValue == "" {
			result.RowsSkipped++
			continue
		}

		takenAt, err := time.Parse(exportDateLayout+"T"+exportTimeLayout, date+"T"+timeOfDay)
		if err != nil {
			result.RowsSkipped++
			continue
		}

		target, ok := byNumber[number]
		if !ok {
			if name == "" {
				name = fmt.Sprintf("Meter %s", number)
			}
			target = &Meter{
				ID:        s.idGenerator.Generate(),
				Name:      name,
				Number:    number,
				CreatedAt: now,
				UpdatedAt: now,
			}
			byNumber[number] = target
			newMeters = append(newMeters, target)
			result.MetersCreated++
		}

		// An unparsable value imports as 0 instead of rejecting the row
		value, err := strconv.ParseFloat(rawValue, 64)
		if err != nil {
			value = 0
		}

		reading := &Reading{
			ID:        s.idGenerator.Generate(),
			MeterID:   target.ID,
			Value:     value,
			TakenAt:   takenAt,
			CreatedAt: now,
		}
		if blob != "" {
			if decoded, err := base64.StdEncoding.DecodeString(blob); err == nil {
				reading.ImageFile = reading.ID + ".jpg"
				images[reading.ID] = decoded
			}
		}
		newReadings = append(newReadings, reading)
		result.ReadingsImported++
	}

	// Full pass complete: commit the staged merge
	for _, m := range newMeters {
		if err := s.db.SaveMeter(m); err != nil {
			return nil, fmt.Errorf("saving imported meter %s: %w", m.Number, err)
		}
	}
	for _, r := range newReadings {
		if data, ok := images[r.ID]; ok {
			saved, err := s.storage.Save(r.ImageFile, data)
			if err != nil {
				slog.Warn("Failed to store imported photo", "reading", r.ID, "error", err)
				r.ImageFile = ""
			} else {
				r.ImageFile = saved
			}
		}
		if err := s.db.SaveReading(r); err != nil {
			return nil, fmt.Errorf("saving imported reading: %w", err)
		}
	}

	return result, nil
}

// quoteRow wraps every cell in double quotes and joins with commas
func quoteRow(cells []string) string {
	quoted := make([]string, len(cells))
	for i, c := range cells {
		quoted[i] = `"` + c + `"`
	}
	return strings.Join(quoted, ",")
}

// splitRow splits a data row on commas and strips the naive quoting
func splitRow(line string) []string {
	cells := strings.Split(strings.TrimRight(line, "\r"), ",")
	for i, c := range cells {
		cells[i] = strings.ReplaceAll(c, `"`, "")
	}
	return cells
}

// cellAt returns the trimmed cell at index i, or "" when the row is short
func cellAt(cells []string, i int) string {
	if i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}
