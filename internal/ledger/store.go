package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"blitzbot/internal/period"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrAlreadyArchived is returned when the month being closed already has
	// an archive partition. Nothing is changed in that case.
	ErrAlreadyArchived = errors.New("month already archived")

	// ErrInvalidRecord is returned by Append for records that cannot be stored.
	ErrInvalidRecord = errors.New("invalid deal record")
)

// sizeTolerance is how far a stored package size may be from a requested
// size and still match a removal.
var sizeTolerance = decimal.RequireFromString("0.01")

const recordColumns = "id, logged_at, user_id, user_name, channel_name, market, deal_count, package_size_gb"

// Config configures a Store.
type Config struct {
	// DSN is a sqlite file path (or "file::memory:") or a postgres:// URL.
	DSN string

	// Location is the fixed zone used for partition months. Default UTC.
	Location *time.Location

	// Now overrides the clock, for tests.
	Now func() time.Time

	Logger *slog.Logger
}

// Store is the deal ledger. Mutations (append, remove, rotate) hold the
// write lock; queries hold the read lock, so a query never observes a
// partially rotated ledger.
type Store struct {
	db     *gorm.DB
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	mu sync.RWMutex
}

// Open connects to the database named by cfg.DSN and prepares the schema.
func Open(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("ledger: empty DSN")
	}
	db, err := gorm.Open(dialector(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	return New(db, cfg)
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// New wraps an existing gorm handle and migrates the ledger schema.
func New(db *gorm.DB, cfg Config) (*Store, error) {
	s := &Store{
		db:     db,
		loc:    cfg.Location,
		now:    cfg.Now,
		logger: cfg.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if err := db.AutoMigrate(&Record{}, &Deletion{}, &Partition{}); err != nil {
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}

	// The active marker records which month the active partition holds.
	now := s.now().In(s.loc)
	marker := Partition{
		Label:   activeLabel,
		Year:    now.Year(),
		Month:   int(now.Month()),
		Storage: ActiveTable,
	}
	if err := db.Where(Partition{Label: activeLabel}).FirstOrCreate(&marker).Error; err != nil {
		return nil, fmt.Errorf("init active partition: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append writes rec to the active partition and returns it with its ID set.
// A zero Timestamp is stamped with the current time; a zero DealCount is 1.
func (s *Store) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.DealCount < 0 {
		return Record{}, fmt.Errorf("%w: negative deal count %d", ErrInvalidRecord, rec.DealCount)
	}
	if rec.DealCount == 0 {
		rec.DealCount = 1
	}
	if rec.UserID == "" && rec.UserName == "" {
		return Record{}, fmt.Errorf("%w: no user", ErrInvalidRecord)
	}
	if rec.PackageSizeGB.IsNegative() {
		return Record{}, fmt.Errorf("%w: negative package size %s", ErrInvalidRecord, rec.PackageSizeGB)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	rec.ID = 0
	rec.Timestamp = rec.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Record{}, fmt.Errorf("append deal: %w", err)
	}
	rec.Timestamp = rec.Timestamp.In(s.loc)
	return rec, nil
}

// Query returns every record whose timestamp falls within iv, oldest first.
// Archived partitions are consulted for each month the interval spans
// before the active partition's month; months without an archive are
// skipped.
func (s *Store) Query(ctx context.Context, iv period.Interval) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db := s.db.WithContext(ctx)
	var out []Record
	if err := rangeQuery(db.Table(ActiveTable), iv).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query active partition: %w", err)
	}

	var marker Partition
	if err := db.Where("label = ?", activeLabel).Take(&marker).Error; err != nil {
		return nil, fmt.Errorf("load active partition: %w", err)
	}
	activeStart := time.Date(marker.Year, time.Month(marker.Month), 1, 0, 0, 0, 0, s.loc)

	if iv.Start.Before(activeStart) {
		last := iv.End.In(s.loc)
		if !last.Before(activeStart) {
			last = activeStart.Add(-time.Nanosecond)
		}
		for _, ym := range monthsBetween(iv.Start.In(s.loc), last) {
			var p Partition
			err := db.Where("label = ?", Label(ym.year, ym.month)).Take(&p).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("lookup partition %s: %w", Label(ym.year, ym.month), err)
			}
			var archived []Record
			if err := rangeQuery(db.Table(p.Storage), iv).Find(&archived).Error; err != nil {
				return nil, fmt.Errorf("query partition %s: %w", p.Label, err)
			}
			out = append(out, archived...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	for i := range out {
		out[i].Timestamp = out[i].Timestamp.In(s.loc)
	}
	return out, nil
}

func rangeQuery(db *gorm.DB, iv period.Interval) *gorm.DB {
	return db.Where("logged_at >= ? AND logged_at <= ?", iv.Start.UTC(), iv.End.UTC()).
		Order("logged_at, id")
}

// RemoveRequest selects the deal to remove.
type RemoveRequest struct {
	// UserID is preferred; rows logged without an ID match on UserName.
	UserID   string
	UserName string

	ChannelName string

	// Within bounds the deal's timestamp, normally "today".
	Within period.Interval

	// SizeGB, when set, restricts the match to deals within ±0.01 GB.
	SizeGB *decimal.Decimal
}

// RemoveLatest deletes the most recent deal matching req from the active
// partition and writes its snapshot to the deletion audit table. It
// reports false when nothing matched.
func (s *Store) RemoveLatest(ctx context.Context, req RemoveRequest) (Record, bool, error) {
	if req.UserID == "" && req.UserName == "" {
		return Record{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed Record
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("channel_name = ?", req.ChannelName).
			Where("logged_at >= ? AND logged_at <= ?", req.Within.Start.UTC(), req.Within.End.UTC())
		if req.UserID != "" {
			q = q.Where("(user_id = ? OR (user_id = '' AND user_name = ?))", req.UserID, req.UserName)
		} else {
			q = q.Where("user_name = ?", req.UserName)
		}

		var candidates []Record
		if err := q.Order("logged_at DESC, id DESC").Find(&candidates).Error; err != nil {
			return fmt.Errorf("find deal: %w", err)
		}
		i := slices.IndexFunc(candidates, func(r Record) bool {
			return req.SizeGB == nil || r.PackageSizeGB.Sub(*req.SizeGB).Abs().LessThanOrEqual(sizeTolerance)
		})
		if i < 0 {
			return nil
		}
		removed = candidates[i]

		if err := tx.Delete(&Record{}, removed.ID).Error; err != nil {
			return fmt.Errorf("delete deal %d: %w", removed.ID, err)
		}
		del := newDeletion(removed, s.now())
		if err := tx.Create(&del).Error; err != nil {
			return fmt.Errorf("audit deletion of deal %d: %w", removed.ID, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, err
	}
	if !found {
		return Record{}, false, nil
	}
	removed.Timestamp = removed.Timestamp.In(s.loc)
	s.logger.Info("deal removed",
		"id", removed.ID, "user", UserKey(removed), "channel", removed.ChannelName,
		"size_gb", removed.PackageSizeGB.String())
	return removed, true, nil
}

func newDeletion(rec Record, at time.Time) Deletion {
	return Deletion{
		ID:            uuid.NewString(),
		DeletedAt:     at.UTC(),
		RecordID:      rec.ID,
		Timestamp:     rec.Timestamp.UTC(),
		UserID:        rec.UserID,
		UserName:      rec.UserName,
		ChannelName:   rec.ChannelName,
		Market:        rec.Market,
		DealCount:     rec.DealCount,
		PackageSizeGB: rec.PackageSizeGB,
	}
}

// Deletions returns the audit trail, oldest first.
func (s *Store) Deletions(ctx context.Context) ([]Deletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Deletion
	if err := s.db.WithContext(ctx).Order("deleted_at, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list deletions: %w", err)
	}
	return out, nil
}

// Partitions returns the archived partitions, oldest first.
func (s *Store) Partitions(ctx context.Context) ([]Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Partition
	err := s.db.WithContext(ctx).
		Where("label <> ?", activeLabel).
		Order("year, month").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	return out, nil
}

// ArchiveAndRotate closes the month before the current one: every active
// row logged before the first of the current month moves into a new
// archive partition labelled with the closing month. Rows already logged
// in the current month stay active. Running it twice for the same month
// returns ErrAlreadyArchived and changes nothing.
func (s *Store) ArchiveAndRotate(ctx context.Context) (Partition, error) {
	now := s.now().In(s.loc)
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	closing := current.AddDate(0, -1, 0)
	label := Label(closing.Year(), closing.Month())
	table := archiveTable(closing.Year(), closing.Month())

	s.mu.Lock()
	defer s.mu.Unlock()

	var archived Partition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Partition{}).Where("label = ?", label).Count(&existing).Error; err != nil {
			return fmt.Errorf("check partition %s: %w", label, err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyArchived, label)
		}

		if err := tx.Table(table).AutoMigrate(&Record{}); err != nil {
			return fmt.Errorf("create partition table %s: %w", table, err)
		}
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE logged_at < ?",
			table, recordColumns, recordColumns, ActiveTable)
		if err := tx.Exec(copySQL, current.UTC()).Error; err != nil {
			return fmt.Errorf("copy active partition to %s: %w", table, err)
		}

		var rows int64
		if err := tx.Table(table).Count(&rows).Error; err != nil {
			return fmt.Errorf("count partition %s: %w", table, err)
		}

		if err := tx.Where("logged_at < ?", current.UTC()).Delete(&Record{}).Error; err != nil {
			return fmt.Errorf("clear archived rows from active partition: %w", err)
		}

		archived = Partition{
			Label:      label,
			Year:       closing.Year(),
			Month:      int(closing.Month()),
			Storage:    table,
			Rows:       rows,
			ArchivedAt: now.UTC(),
		}
		if err := tx.Create(&archived).Error; err != nil {
			return fmt.Errorf("register partition %s: %w", label, err)
		}

		err := tx.Model(&Partition{}).Where("label = ?", activeLabel).
			Updates(map[string]any{"year": now.Year(), "month": int(now.Month())}).Error
		if err != nil {
			return fmt.Errorf("advance active partition: %w", err)
		}
		return nil
	})
	if err != nil {
		return Partition{}, err
	}

	s.logger.Info("ledger partition archived",
		"label", archived.Label, "table", archived.Storage, "rows", archived.Rows)
	return archived, nil
}

type yearMonth struct {
	year  int
	month time.Month
}

// monthsBetween lists each calendar month from from's month to to's month.
func monthsBetween(from, to time.Time) []yearMonth {
	var out []yearMonth
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location())
	for !cur.After(to) {
		out = append(out, yearMonth{cur.Year(), cur.Month()})
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}
