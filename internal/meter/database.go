package meter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const (
	meterBucketName    = "meters"
	readingBucketName  = "readings"
	settingsBucketName = "settings"

	resetDayKey = "reset_day"

	// defaultResetDay is used until the user configures one
	defaultResetDay = 1
)

// DB defines the interface for database operations
type DB interface {
	// SaveMeter saves a meter to the database
	SaveMeter(meter *Meter) error

	// GetMeter retrieves a meter by ID
	GetMeter(id string) (*Meter, error)

	// ListMeters returns all meters
	ListMeters() ([]*Meter, error)

	// DeleteMeter removes a meter from the database
	DeleteMeter(id string) error

	// SaveReading saves a reading to the database
	SaveReading(reading *Reading) error

	// ListReadings returns all readings in creation order
	ListReadings() ([]*Reading, error)

	// ListMeterReadings returns all readings for one meter in creation order
	ListMeterReadings(meterID string) ([]*Reading, error)

	// DeleteMeterReadings removes every reading belonging to a meter
	DeleteMeterReadings(meterID string) error

	// ResetDay returns the configured monthly reset day
	ResetDay() (int, error)

	// SaveResetDay stores the monthly reset day
	SaveResetDay(day int) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{meterBucketName, readingBucketName, settingsBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveMeter saves a meter to the database
func (b *BoltDB) SaveMeter(meter *Meter) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(meterBucketName))
		data, err := json.Marshal(meter)
		if err != nil {
			return fmt.Errorf("marshaling meter: %w", err)
		}
		return bucket.Put([]byte(meter.ID), data)
	})
}

// GetMeter retrieves a meter by ID
func (b *BoltDB) GetMeter(id string) (*Meter, error) {
	var meter *Meter
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(meterBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("meter %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &meter)
	})
	if err != nil {
		return nil, err
	}
	return meter, nil
}

// ListMeters returns all meters
func (b *BoltDB) ListMeters() ([]*Meter, error) {
	meters := make([]*Meter, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(meterBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var meter Meter
			if err := json.Unmarshal(v, &meter); err != nil {
				return fmt.Errorf("unmarshaling meter: %w", err)
			}
			meters = append(meters, &meter)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return meters, nil
}

// DeleteMeter removes a meter from the database
func (b *BoltDB) DeleteMeter(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(meterBucketName))
		return bucket.Delete([]byte(id))
	})
}

// SaveReading saves a reading to the database
func (b *BoltDB) SaveReading(reading *Reading) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(readingBucketName))
		data, err := json.Marshal(reading)
		if err != nil {
			return fmt.Errorf("marshaling reading: %w", err)
		}
		return bucket.Put([]byte(reading.ID), data)
	})
}

// ListReadings returns all readings. Reading IDs are fixed-width decimal
// strings assigned in creation order, so bucket iteration yields them in
// creation order.
func (b *BoltDB) ListReadings() ([]*Reading, error) {
	readings := make([]*Reading, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(readingBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var reading Reading
			if err := json.Unmarshal(v, &reading); err != nil {
				return fmt.Errorf("unmarshaling reading: %w", err)
			}
			readings = append(readings, &reading)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// ListMeterReadings returns all readings for one meter in creation order
func (b *BoltDB) ListMeterReadings(meterID string) ([]*Reading, error) {
	readings, err := b.ListReadings()
	if err != nil {
		return nil, err
	}
	filtered := make([]*Reading, 0, len(readings))
	for _, r := range readings {
		if r.MeterID == meterID {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// DeleteMeterReadings removes every reading belonging to a meter
func (b *BoltDB) DeleteMeterReadings(meterID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(readingBucketName))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var reading Reading
			if err := json.Unmarshal(v, &reading); err != nil {
				return fmt.Errorf("unmarshaling reading: %w", err)
			}
			if reading.MeterID == meterID {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetDay returns the configured monthly reset day, defaulting when unset
func (b *BoltDB) ResetDay() (int, error) {
	day := defaultResetDay
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucketName))
		data := bucket.Get([]byte(resetDayKey))
		if data == nil {
			return nil
		}
		parsed, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("parsing reset day: %w", err)
		}
		day = parsed
		return nil
	})
	if err != nil {
		return 0, err
	}
	return day, nil
}

// SaveResetDay stores the monthly reset day
func (b *BoltDB) SaveResetDay(day int) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucketName))
		return bucket.Put([]byte(resetDayKey), []byte(strconv.Itoa(day)))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
