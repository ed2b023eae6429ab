package auth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	ledgerNoncePrefix = []byte("n/")
	ledgerTimePrefix  = []byte("t/")
)

// NonceLedger persists observed operator nonces in LevelDB. Each nonce is
// stored twice: once by identity for replay checks and once under its
// observation time so expiry is a range delete.
type NonceLedger struct {
	db *leveldb.DB
}

// OpenNonceLedger opens (or creates) the ledger at path.
func OpenNonceLedger(path string) (*NonceLedger, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("nonce ledger path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve nonce ledger path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open nonce ledger: %w", err)
	}
	return &NonceLedger{db: db}, nil
}

func (l *NonceLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// EnsureNonce records rec and reports whether it had already been seen.
func (l *NonceLedger) EnsureNonce(_ context.Context, rec NonceRecord) (bool, error) {
	if l == nil || l.db == nil {
		return false, errors.New("nonce ledger closed")
	}
	id, err := ledgerIdentity(rec)
	if err != nil {
		return false, err
	}
	observed := rec.ObservedAt.UTC()
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	idKey := append(append([]byte{}, ledgerNoncePrefix...), id...)
	switch _, err := l.db.Get(idKey, nil); {
	case err == nil:
		return true, nil
	case !errors.Is(err, leveldb.ErrNotFound):
		return false, fmt.Errorf("lookup nonce: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(idKey, encodeNanos(observed.UnixNano()))
	batch.Put(timeKey(observed.UnixNano(), id), nil)
	if err := l.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	return false, nil
}

// RecentNonces lists nonces observed at or after cutoff.
func (l *NonceLedger) RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("nonce ledger closed")
	}
	iter := l.db.NewIterator(&util.Range{
		Start: timeKey(cutoff.UTC().UnixNano(), nil),
		Limit: util.BytesPrefix(ledgerTimePrefix).Limit,
	}, nil)
	defer iter.Release()

	var out []NonceRecord
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nanos, id, ok := splitTimeKey(iter.Key())
		if !ok {
			continue
		}
		parts := strings.SplitN(string(id), "|", 3)
		if len(parts) != 3 {
			continue
		}
		out = append(out, NonceRecord{
			APIKey:     parts[0],
			Timestamp:  parts[1],
			Nonce:      parts[2],
			ObservedAt: time.Unix(0, nanos).UTC(),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan nonces: %w", err)
	}
	return out, nil
}

// PruneNonces drops nonces observed before cutoff.
func (l *NonceLedger) PruneNonces(ctx context.Context, cutoff time.Time) error {
	if l == nil || l.db == nil {
		return errors.New("nonce ledger closed")
	}
	iter := l.db.NewIterator(&util.Range{
		Start: ledgerTimePrefix,
		Limit: timeKey(cutoff.UTC().UnixNano(), nil),
	}, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, id, ok := splitTimeKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte{}, iter.Key()...))
		batch.Delete(append(append([]byte{}, ledgerNoncePrefix...), id...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan nonces: %w", err)
	}
	if batch.Len() == 0 {
		return nil
	}
	return l.db.Write(batch, nil)
}

func ledgerIdentity(rec NonceRecord) ([]byte, error) {
	apiKey := strings.TrimSpace(rec.APIKey)
	ts := strings.TrimSpace(rec.Timestamp)
	nonce := strings.TrimSpace(rec.Nonce)
	if apiKey == "" || ts == "" || nonce == "" {
		return nil, errors.New("nonce record incomplete")
	}
	return []byte(apiKey + "|" + ts + "|" + nonce), nil
}

// timeKey orders entries by observation time. Negative times clamp to zero.
func timeKey(nanos int64, id []byte) []byte {
	if nanos < 0 {
		nanos = 0
	}
	key := make([]byte, 0, len(ledgerTimePrefix)+8+len(id))
	key = append(key, ledgerTimePrefix...)
	key = append(key, encodeNanos(nanos)...)
	return append(key, id...)
}

func splitTimeKey(key []byte) (int64, []byte, bool) {
	if !bytes.HasPrefix(key, ledgerTimePrefix) || len(key) < len(ledgerTimePrefix)+8 {
		return 0, nil, false
	}
	rest := key[len(ledgerTimePrefix):]
	return int64(binary.BigEndian.Uint64(rest[:8])), append([]byte{}, rest[8:]...), true
}

func encodeNanos(nanos int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nanos))
	return buf
}
