package ch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dailyyoga/netdisco/discovery"
)

// SightingsTable holds one row per discovery event
const SightingsTable TableName = "device_sightings"

// SightingsDDL creates SightingsTable. Rows expire after ttlDays.
func SightingsDDL(ttlDays int) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"`event_id` String, "+
		"`observed_at` DateTime64(3), "+
		"`source` LowCardinality(String), "+
		"`key` String, "+
		"`kind` LowCardinality(String), "+
		"`version` UInt64, "+
		"`entity` String"+
		") ENGINE = MergeTree "+
		"PARTITION BY toYYYYMM(observed_at) "+
		"ORDER BY (source, key, observed_at) "+
		"TTL toDateTime(observed_at) + INTERVAL %d DAY",
		SightingsTable, ttlDays)
}

var sightingColumns = []string{"event_id", "observed_at", "source", "key", "kind", "version", "entity"}

// Sighting is a discovery event flattened into a row
type Sighting struct {
	EventID    string
	ObservedAt time.Time
	Source     string
	Key        string
	Kind       string
	Version    uint64
	// Entity is the JSON encoded entity
	Entity string
}

func (s *Sighting) TableName() TableName { return SightingsTable }
func (s *Sighting) Columns() []string    { return sightingColumns }

func (s *Sighting) Values() []any {
	return []any{s.EventID, s.ObservedAt, s.Source, s.Key, s.Kind, s.Version, s.Entity}
}

// NewSighting converts an event
func NewSighting(e discovery.Event) (*Sighting, error) {
	entity, err := json.Marshal(e.Entity)
	if err != nil {
		return nil, fmt.Errorf("ch: encode entity of %s/%s: %w", e.Source, e.Key, err)
	}
	return &Sighting{
		EventID:    e.ID,
		ObservedAt: e.ObservedAt,
		Source:     e.Source,
		Key:        e.Key,
		Kind:       string(e.Kind),
		Version:    e.Version,
		Entity:     string(entity),
	}, nil
}

// SightingSink writes events through a Writer
type SightingSink struct {
	writer Writer
}

func NewSightingSink(w Writer) *SightingSink {
	return &SightingSink{writer: w}
}

func (s *SightingSink) Name() string { return "clickhouse" }

// Publish buffers the events. Entities that cannot be encoded are dropped
// and reported, the rest is written.
func (s *SightingSink) Publish(ctx context.Context, events []discovery.Event) error {
	rows := make([]Row, 0, len(events))
	var encErr error
	for _, e := range events {
		row, err := NewSighting(e)
		if err != nil {
			encErr = err
			continue
		}
		rows = append(rows, row)
	}
	if err := s.writer.Write(ctx, rows); err != nil {
		return err
	}
	return encErr
}

func (s *SightingSink) Close() error {
	return s.writer.Close()
}

// EnsureSightingsTable creates the sightings table if it is missing
func EnsureSightingsTable(ctx context.Context, c Client, ttlDays int) error {
	return c.Exec(ctx, SightingsDDL(ttlDays))
}
