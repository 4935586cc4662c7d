package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

// TrackingRecordRepository reads ADS-B observations written by the ingestion side.
type TrackingRecordRepository interface {
	// FindAllOnDate returns every record observed on the UTC calendar day of day.
	FindAllOnDate(ctx context.Context, day time.Time) ([]models.TrackingRecord, error)
}

type trackingRecordRepository struct {
	db *sql.DB
}

func NewTrackingRecordRepository(db *sql.DB) TrackingRecordRepository {
	return &trackingRecordRepository{db: db}
}

func (r *trackingRecordRepository) FindAllOnDate(ctx context.Context, day time.Time) ([]models.TrackingRecord, error) {
	from, to := dayBounds(day)
	const query = `
		SELECT t.id, t.flight_id, f.flight_number, f.icao_address, t.latitude, t.longitude,
		       t.altitude, t.speed, t.track, t.vertical_rate, COALESCE(t.squawk, ''), t.record_date
		FROM adsb.tracking_records t
		JOIN adsb.flights f ON f.id = t.flight_id
		WHERE t.record_date >= $1 AND t.record_date < $2
		ORDER BY t.record_date, t.id`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query tracking records: %w", err)
	}
	defer rows.Close()

	var records []models.TrackingRecord
	for rows.Next() {
		var rec models.TrackingRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.FlightID,
			&rec.FlightNumber,
			&rec.ICAOAddress,
			&rec.Latitude,
			&rec.Longitude,
			&rec.Altitude,
			&rec.Speed,
			&rec.Track,
			&rec.VerticalRate,
			&rec.Squawk,
			&rec.RecordDate,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// MemoryTrackingRecordRepository is an in-process record store for the memory driver.
type MemoryTrackingRecordRepository struct {
	mu      sync.RWMutex
	records []models.TrackingRecord
}

func NewMemoryTrackingRecordRepository(records ...models.TrackingRecord) *MemoryTrackingRecordRepository {
	repo := &MemoryTrackingRecordRepository{}
	repo.Add(records...)
	return repo
}

func (r *MemoryTrackingRecordRepository) Add(records ...models.TrackingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
}

func (r *MemoryTrackingRecordRepository) FindAllOnDate(_ context.Context, day time.Time) ([]models.TrackingRecord, error) {
	from, to := dayBounds(day)

	r.mu.RLock()
	var out []models.TrackingRecord
	for _, rec := range r.records {
		if !rec.RecordDate.Before(from) && rec.RecordDate.Before(to) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordDate.Before(out[j].RecordDate)
	})
	return out, nil
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	u := day.UTC()
	from := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.Add(24 * time.Hour)
}
