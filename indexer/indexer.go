package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"remitlend/core"
	"remitlend/core/events"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Filter narrows an event query. Zero fields match everything.
type Filter struct {
	Type          string
	LoanID        *uint64
	TokenID       *uint64
	AfterSequence uint64
	Limit         int
}

// Event is an indexed event together with the receipt it was committed in.
type Event struct {
	Sequence   uint64            `json:"sequence"`
	Position   int               `json:"position"`
	Operation  string            `json:"operation"`
	Caller     string            `json:"caller"`
	Timestamp  uint64            `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Indexer persists committed receipts into SQL for history queries.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to dsn. postgres:// and postgresql:// DSNs use the postgres
// driver; anything else is treated as a sqlite DSN.
func Open(dsn string, logger *slog.Logger) (*Indexer, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db, logger)
}

// New wraps an open database and migrates the schema.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Index stores receipt and its events. Re-indexing a sequence is a no-op, so
// replays after a restart are safe.
func (i *Indexer) Index(ctx context.Context, receipt *core.Receipt) error {
	if receipt == nil {
		return nil
	}
	if !receipt.Verify() {
		return fmt.Errorf("indexer: receipt %d fails hash check", receipt.Sequence)
	}
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := ReceiptRecord{
			Sequence:   receipt.Sequence,
			Operation:  receipt.Operation,
			Caller:     receipt.Caller.String(),
			Timestamp:  receipt.Timestamp,
			Hash:       receipt.Hash.Hex(),
			EventCount: len(receipt.Events),
			IndexedAt:  i.now().UTC(),
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if len(receipt.Events) == 0 {
			return nil
		}
		rows := make([]EventRecord, 0, len(receipt.Events))
		for pos, evt := range receipt.Events {
			rows = append(rows, EventRecord{
				Sequence:   receipt.Sequence,
				Position:   pos,
				Type:       evt.Type,
				LoanID:     uintAttribute(evt.Attributes, "loanId"),
				TokenID:    uintAttribute(evt.Attributes, "tokenId"),
				Attributes: evt.Attributes,
			})
		}
		return tx.Create(&rows).Error
	})
}

// Run indexes receipts from the bus until ctx is done. Index failures are
// logged and the stream continues.
func (i *Indexer) Run(ctx context.Context, bus *events.Bus, buffer int) {
	ch, cancel := bus.Subscribe(buffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			receipt, isReceipt := evt.(*core.Receipt)
			if !isReceipt {
				continue
			}
			if err := i.Index(ctx, receipt); err != nil {
				i.logger.Error("index receipt",
					slog.Uint64("sequence", receipt.Sequence),
					slog.String("operation", receipt.Operation),
					slog.Any("error", err))
			}
		}
	}
}

// LastSequence returns the highest indexed sequence, or zero.
func (i *Indexer) LastSequence(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	row := i.db.WithContext(ctx).Model(&ReceiptRecord{}).Select("MAX(sequence)").Row()
	if err := row.Scan(&last); err != nil {
		return 0, err
	}
	if !last.Valid {
		return 0, nil
	}
	return uint64(last.Int64), nil
}

// Receipt returns the stored receipt header for seq.
func (i *Indexer) Receipt(ctx context.Context, seq uint64) (*ReceiptRecord, error) {
	var record ReceiptRecord
	err := i.db.WithContext(ctx).First(&record, "sequence = ?", seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Events returns indexed events matching f in commit order.
func (i *Indexer) Events(ctx context.Context, f Filter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := i.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", f.AfterSequence)
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.LoanID != nil {
		query = query.Where("loan_id = ?", *f.LoanID)
	}
	if f.TokenID != nil {
		query = query.Where("token_id = ?", *f.TokenID)
	}
	var records []EventRecord
	if err := query.Order("sequence ASC").Order("position ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []Event{}, nil
	}
	seqs := make([]uint64, 0, len(records))
	for _, r := range records {
		seqs = append(seqs, r.Sequence)
	}
	var receipts []ReceiptRecord
	if err := i.db.WithContext(ctx).Where("sequence IN ?", seqs).Find(&receipts).Error; err != nil {
		return nil, err
	}
	bySeq := make(map[uint64]ReceiptRecord, len(receipts))
	for _, r := range receipts {
		bySeq[r.Sequence] = r
	}
	out := make([]Event, 0, len(records))
	for _, r := range records {
		header := bySeq[r.Sequence]
		out = append(out, Event{
			Sequence:   r.Sequence,
			Position:   r.Position,
			Operation:  header.Operation,
			Caller:     header.Caller,
			Timestamp:  header.Timestamp,
			Type:       r.Type,
			Attributes: r.Attributes,
		})
	}
	return out, nil
}

func uintAttribute(attrs map[string]string, key string) *uint64 {
	raw, ok := attrs[key]
	if !ok {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
