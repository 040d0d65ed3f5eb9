// Package journal buffers sync events in a local sqlite database so nothing
// is lost while the cloud stream is down.
package journal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Event is one buffered sync event. Rows stay until delivered and pruned.
type Event struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Kind        string    `gorm:"size:64;index" json:"kind"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	Delivered   bool      `gorm:"index;default:false" json:"delivered"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// Journal is an append-ordered event buffer.
type Journal struct {
	db *gorm.DB
}

// DatabaseFile is the journal file name under the data directory.
const DatabaseFile = "journal.db"

// Open opens (or creates) the journal under dataDir and migrates the schema.
func Open(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %v", err)
	}

	logLevel := logger.Error
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dataDir, DatabaseFile)), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal database: %v", err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("migrate journal schema: %v", err)
	}
	return &Journal{db: db}, nil
}

// Append stores one event at the tail of the journal.
func (j *Journal) Append(kind string, payload []byte) error {
	ev := Event{Kind: kind, Payload: payload, CreatedAt: time.Now()}
	return j.db.Create(&ev).Error
}

// PendingBatch returns up to limit undelivered events in append order.
func (j *Journal) PendingBatch(limit int) ([]Event, error) {
	var events []Event
	err := j.db.Where("delivered = ?", false).
		Order("id asc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkDelivered flags the given events as delivered.
func (j *Journal) MarkDelivered(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	return j.db.Model(&Event{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"delivered": true, "delivered_at": now}).Error
}

// Depth returns the number of undelivered events.
func (j *Journal) Depth() int64 {
	var n int64
	if err := j.db.Model(&Event{}).Where("delivered = ?", false).Count(&n).Error; err != nil {
		return 0
	}
	return n
}

// Recent returns the newest events, delivered or not, for the UI.
func (j *Journal) Recent(limit int) ([]Event, error) {
	var events []Event
	err := j.db.Order("id desc").Limit(limit).Find(&events).Error
	return events, err
}

// PruneDelivered removes delivered events older than retention.
func (j *Journal) PruneDelivered(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res := j.db.Where("delivered = ? AND created_at < ?", true, cutoff).Delete(&Event{})
	return res.RowsAffected, res.Error
}

// ScheduleCleanup prunes delivered events periodically until done is closed.
func (j *Journal) ScheduleCleanup(retention time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if n, err := j.PruneDelivered(retention); err != nil {
					log.Printf("journal cleanup failed: %v", err)
				} else if n > 0 {
					log.Printf("journal cleanup removed %d delivered events", n)
				}
			}
		}
	}()
}
