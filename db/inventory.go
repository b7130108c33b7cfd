package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Device is the latest known state of one discovered entity
type Device struct {
	ID     uint   `gorm:"primaryKey"`
	Source string `gorm:"size:32;not null;uniqueIndex:idx_source_key,priority:1"`
	Key    string `gorm:"column:device_key;size:255;not null;uniqueIndex:idx_source_key,priority:2"`
	// Entity is the JSON encoded adapter value
	Entity    string `gorm:"type:text"`
	Version   uint64
	Present   bool `gorm:"not null;default:true;index"`
	FirstSeen time.Time
	LastSeen  time.Time
	RemovedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Device) TableName() string { return "discovered_devices" }

// Inventory upserts devices from discovery events
type Inventory struct {
	db     *gorm.DB
	logger logger.Logger
}

func NewInventory(log logger.Logger, gdb *gorm.DB) *Inventory {
	return &Inventory{db: gdb, logger: log.Named("inventory")}
}

// Migrate creates or updates the devices table
func (inv *Inventory) Migrate(ctx context.Context) error {
	return inv.db.WithContext(ctx).AutoMigrate(&Device{})
}

// upsertClause refreshes everything but FirstSeen on a known device
func upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "device_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entity", "version", "present", "last_seen", "removed_at", "updated_at"}),
	}
}

// deviceFromEvent builds the row for an added or updated event
func deviceFromEvent(e discovery.Event) (*Device, error) {
	entity, err := json.Marshal(e.Entity)
	if err != nil {
		return nil, err
	}
	return &Device{
		Source:    e.Source,
		Key:       e.Key,
		Entity:    string(entity),
		Version:   e.Version,
		Present:   true,
		FirstSeen: e.ObservedAt,
		LastSeen:  e.ObservedAt,
	}, nil
}

// Apply writes events in one transaction. Removed devices are kept and
// marked absent.
func (inv *Inventory) Apply(ctx context.Context, events []discovery.Event) error {
	if len(events) == 0 {
		return nil
	}
	err := inv.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range events {
			if e.Kind == discovery.KindRemoved {
				err := tx.Model(&Device{}).
					Where("source = ? AND device_key = ?", e.Source, e.Key).
					Updates(map[string]any{
						"present":    false,
						"removed_at": e.ObservedAt,
						"version":    e.Version,
					}).Error
				if err != nil {
					return err
				}
				continue
			}

			d, err := deviceFromEvent(e)
			if err != nil {
				inv.logger.Warn("skipping unencodable entity",
					zap.String("source", e.Source), zap.String("key", e.Key), zap.Error(err))
				continue
			}
			if err := tx.Clauses(upsertClause()).Create(d).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ErrApply(err)
	}
	return nil
}

// Get returns one device, ErrDeviceNotFound if it was never seen
func (inv *Inventory) Get(ctx context.Context, source, key string) (*Device, error) {
	var d Device
	err := inv.db.WithContext(ctx).
		Where("source = ? AND device_key = ?", source, key).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns the devices of source, or of all sources when source is
// empty, ordered by key
func (inv *Inventory) List(ctx context.Context, source string, presentOnly bool) ([]Device, error) {
	q := inv.db.WithContext(ctx).Model(&Device{})
	if source != "" {
		q = q.Where("source = ?", source)
	}
	if presentOnly {
		q = q.Where("present = ?", true)
	}
	var devices []Device
	if err := q.Order("source, device_key").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// InventorySink feeds discovery events into an Inventory
type InventorySink struct {
	inv *Inventory
}

func NewInventorySink(inv *Inventory) *InventorySink {
	return &InventorySink{inv: inv}
}

func (s *InventorySink) Name() string { return "mysql" }

func (s *InventorySink) Publish(ctx context.Context, events []discovery.Event) error {
	return s.inv.Apply(ctx, events)
}

// Close is a no-op, the Database is closed by its owner
func (s *InventorySink) Close() error { return nil }
