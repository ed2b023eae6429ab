package state

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"remitlend/core/events"
	"remitlend/core/types"
	"remitlend/crypto"
	"remitlend/storage"
)

var errInvalidSnapshot = errors.New("state: invalid snapshot id")

// Manager is a journaled key/value overlay over a storage.Database. Writes
// stay in memory until Commit flushes them in one batch; Snapshot and
// RevertToSnapshot allow a failing call to discard exactly its own writes and
// events.
type Manager struct {
	db        storage.Database
	dirty     map[string]dirtyValue
	journal   []journalEntry
	events    []*types.Event
	snapshots []snapshot
}

type dirtyValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyValue
	hadPrev bool
}

type snapshot struct {
	journalLen int
	eventsLen  int
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string]dirtyValue),
	}
}

func kvKey(key []byte) []byte {
	return crypto.Keccak256(key)
}

func (m *Manager) record(hashed string) {
	prev, ok := m.dirty[hashed]
	m.journal = append(m.journal, journalEntry{key: hashed, prev: prev, hadPrev: ok})
}

func (m *Manager) rawGet(hashed []byte) ([]byte, bool, error) {
	if entry, ok := m.dirty[string(hashed)]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) rawPut(hashed []byte, encoded []byte) {
	key := string(hashed)
	m.record(key)
	m.dirty[key] = dirtyValue{value: encoded}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.rawPut(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.rawGet(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := string(kvKey(key))
	m.record(hashed)
	m.dirty[hashed] = dirtyValue{deleted: true}
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if _, err := m.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList retrieves the byte slice list stored under key. A missing key
// yields an empty list.
func (m *Manager) KVGetList(key []byte) ([][]byte, error) {
	var list [][]byte
	if _, err := m.KVGet(key, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = [][]byte{}
	}
	return list, nil
}

// Emit buffers an event for the running transaction. Buffered events are
// dropped by RevertToSnapshot and Discard and handed out by Commit.
func (m *Manager) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	switch e := evt.(type) {
	case *types.Event:
		m.events = append(m.events, e.Clone())
	default:
		m.events = append(m.events, &types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
	}
}

// PendingEvents returns the events buffered since the last Commit.
func (m *Manager) PendingEvents() []*types.Event {
	out := make([]*types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Snapshot marks the current journal position and returns its id.
func (m *Manager) Snapshot() int {
	m.snapshots = append(m.snapshots, snapshot{journalLen: len(m.journal), eventsLen: len(m.events)})
	return len(m.snapshots) - 1
}

// RevertToSnapshot undoes every write and event recorded after the snapshot
// was taken. Later snapshots are invalidated.
func (m *Manager) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(m.snapshots) {
		return errInvalidSnapshot
	}
	snap := m.snapshots[id]
	for i := len(m.journal) - 1; i >= snap.journalLen; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:snap.journalLen]
	m.events = m.events[:snap.eventsLen]
	m.snapshots = m.snapshots[:id]
	return nil
}

// Commit flushes all pending writes to the database in a single batch and
// returns the events emitted since the previous commit.
func (m *Manager) Commit() ([]*types.Event, error) {
	batch := storage.NewBatch()
	for key, entry := range m.dirty {
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	if err := m.db.Write(batch); err != nil {
		return nil, fmt.Errorf("state: commit: %w", err)
	}
	committed := m.events
	m.reset()
	return committed, nil
}

// Discard drops every pending write and event.
func (m *Manager) Discard() {
	m.reset()
}

// Dirty reports whether uncommitted writes exist.
func (m *Manager) Dirty() bool { return len(m.dirty) > 0 }

func (m *Manager) reset() {
	m.dirty = make(map[string]dirtyValue)
	m.journal = nil
	m.events = nil
	m.snapshots = nil
}
