// Package ledger is the append-mostly deal ledger.
//
// Deals land in the active partition (table "deals"). Once a month the
// active partition is archived: its rows from before the current month are
// moved into a dated archive table ("deals_2026_09") registered in the
// partition catalog. The active table keeps its schema and any deals
// already logged in the new month. Removals delete from the
// active partition and mirror the removed row into an audit table that is
// never pruned.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActiveTable holds the current month's deals.
const ActiveTable = "deals"

// Record is one logged deal.
type Record struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Timestamp     time.Time       `gorm:"column:logged_at;not null" json:"timestamp"`
	UserID        string          `gorm:"size:64" json:"user_id,omitempty"`
	UserName      string          `gorm:"size:255" json:"user_name"`
	ChannelName   string          `gorm:"size:255" json:"channel_name"`
	Market        string          `gorm:"size:64" json:"market"`
	DealCount     int             `gorm:"not null;default:1" json:"deal_count"`
	PackageSizeGB decimal.Decimal `gorm:"column:package_size_gb;type:decimal(10,3)" json:"package_size_gb"`
}

func (Record) TableName() string { return ActiveTable }

// UserKey identifies the user who logged r: the stable user ID when
// present, else the display name recorded by legacy rows.
func UserKey(r Record) string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.UserName
}

// Deletion is the audit snapshot of a removed Record.
type Deletion struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	DeletedAt     time.Time       `gorm:"not null" json:"deleted_at"`
	RecordID      uint            `json:"record_id"`
	Timestamp     time.Time       `gorm:"column:logged_at" json:"timestamp"`
	UserID        string          `gorm:"size:64" json:"user_id,omitempty"`
	UserName      string          `gorm:"size:255" json:"user_name"`
	ChannelName   string          `gorm:"size:255" json:"channel_name"`
	Market        string          `gorm:"size:64" json:"market"`
	DealCount     int             `json:"deal_count"`
	PackageSizeGB decimal.Decimal `gorm:"column:package_size_gb;type:decimal(10,3)" json:"package_size_gb"`
}

func (Deletion) TableName() string { return "deal_deletions" }

// Record returns the removed deal as it was stored.
func (d Deletion) Record() Record {
	return Record{
		ID:            d.RecordID,
		Timestamp:     d.Timestamp,
		UserID:        d.UserID,
		UserName:      d.UserName,
		ChannelName:   d.ChannelName,
		Market:        d.Market,
		DealCount:     d.DealCount,
		PackageSizeGB: d.PackageSizeGB,
	}
}

// Partition is a catalog entry for one archived month, or the marker row
// describing the active partition (Label == activeLabel).
type Partition struct {
	Label      string    `gorm:"primaryKey;size:16" json:"label"`
	Year       int       `gorm:"not null" json:"year"`
	Month      int       `gorm:"not null" json:"month"`
	Storage    string    `gorm:"size:64;not null" json:"storage"`
	Rows       int64     `json:"rows"`
	ArchivedAt time.Time `json:"archived_at"`
}

func (Partition) TableName() string { return "ledger_partitions" }

const activeLabel = "active"

// Label formats the partition label for a calendar month, e.g. "2026-09".
func Label(year int, month time.Month) string {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// archiveTable is the storage table name for an archived month.
func archiveTable(year int, month time.Month) string {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("deals_2006_01")
}
