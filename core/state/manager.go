package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"predictchain/core/events"
	"predictchain/core/types"
	"predictchain/storage"
)

var (
	eventCountKey = []byte("events/count")
	eventPrefix   = []byte("events/")
)

// Manager is the journaled key-value view the native engines operate on.
// Writes are buffered in memory; Snapshot/RevertToSnapshot undo them at
// operation granularity and Commit flushes the survivors to storage in a
// single batch. Committed events are appended to the durable event log in the
// same batch and only then handed to the emitter.
//
// Manager is not safe for concurrent use; the processor serialises access.
type Manager struct {
	db      storage.Database
	dirty   map[string]dirtyEntry
	journal []journalEntry
	events  []*types.Event
	snaps   []snapshot
	emitter events.Emitter
}

type dirtyEntry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyEntry
	hadPrev bool
}

type snapshot struct {
	journal int
	events  int
}

// NewManager creates a state manager operating on the provided store.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		dirty:   make(map[string]dirtyEntry),
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the subscriber notified after each commit. Passing
// nil resets it to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func kvKey(key []byte) string {
	return string(ethcrypto.Keccak256(key))
}

func (m *Manager) read(key []byte) ([]byte, bool, error) {
	hashed := kvKey(key)
	if entry, ok := m.dirty[hashed]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	data, err := m.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) write(key []byte, entry dirtyEntry) {
	hashed := kvKey(key)
	prev, hadPrev := m.dirty[hashed]
	m.journal = append(m.journal, journalEntry{key: hashed, prev: prev, hadPrev: hadPrev})
	m.dirty[hashed] = entry
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.write(key, dirtyEntry{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.read(key)
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

// KVDelete removes the key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.write(key, dirtyEntry{deleted: true})
	return nil
}

// AppendEvent journals an event for emission on commit.
func (m *Manager) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	m.events = append(m.events, evt.Clone())
}

// PendingEvents returns copies of the events journaled since the last commit.
func (m *Manager) PendingEvents() []*types.Event {
	out := make([]*types.Event, len(m.events))
	for i, evt := range m.events {
		out[i] = evt.Clone()
	}
	return out
}

// Snapshot marks the current journal position.
func (m *Manager) Snapshot() int {
	m.snaps = append(m.snaps, snapshot{journal: len(m.journal), events: len(m.events)})
	return len(m.snaps) - 1
}

// RevertToSnapshot undoes every write and event recorded after the snapshot
// was taken. Snapshots taken after id are invalidated.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snaps) {
		return
	}
	snap := m.snaps[id]
	for i := len(m.journal) - 1; i >= snap.journal; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:snap.journal]
	m.events = m.events[:snap.events]
	m.snaps = m.snaps[:id]
}

// Discard drops every uncommitted write and event.
func (m *Manager) Discard() {
	m.dirty = make(map[string]dirtyEntry)
	m.journal = nil
	m.events = nil
	m.snaps = nil
}

// Commit flushes buffered writes and the pending events in one storage batch,
// then emits the events.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 && len(m.events) == 0 {
		m.Discard()
		return nil
	}
	batch := m.db.NewBatch()
	for key, entry := range m.dirty {
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	committed := m.events
	if len(committed) > 0 {
		count, err := m.EventCount()
		if err != nil {
			return err
		}
		for _, evt := range committed {
			encoded, err := json.Marshal(evt)
			if err != nil {
				return fmt.Errorf("encode event %s: %w", evt.Type, err)
			}
			batch.Put(eventKey(count), encoded)
			count++
		}
		batch.Put(eventCountKey, encodeUint(count))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	m.Discard()
	for _, evt := range committed {
		m.emitter.Emit(events.Raw{Evt: evt})
	}
	return nil
}

// EventCount returns the number of events in the durable log.
func (m *Manager) EventCount() (uint64, error) {
	data, err := m.db.Get(eventCountKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("events: malformed counter")
	}
	return binary.BigEndian.Uint64(data), nil
}

// EventAt returns the committed event with the given sequence number.
func (m *Manager) EventAt(seq uint64) (*types.Event, error) {
	data, err := m.db.Get(eventKey(seq))
	if err != nil {
		return nil, err
	}
	evt := new(types.Event)
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

func eventKey(seq uint64) []byte {
	buf := make([]byte, len(eventPrefix)+8)
	copy(buf, eventPrefix)
	binary.BigEndian.PutUint64(buf[len(eventPrefix):], seq)
	return buf
}

func encodeUint(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
