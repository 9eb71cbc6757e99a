// Package outbox durably records committed events until a broker has
// acknowledged them.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/alanyoungcy/settled/internal/domain"
)

// State is the delivery state of an entry.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Entry is one stored event with its delivery bookkeeping.
type Entry struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Key         string
	Payload     []byte
}

// [state:1][retries:4][lastAttempt:8][keyLen:2][key][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 15+len(e.Key)+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(e.Key)))
	copy(buf[15:], e.Key)
	copy(buf[15+len(e.Key):], e.Payload)
	return buf
}

func decodeEntry(seq uint64, b []byte) (Entry, error) {
	if len(b) < 15 {
		return Entry{}, errors.New("outbox: short entry")
	}
	keyLen := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < 15+keyLen {
		return Entry{}, errors.New("outbox: short entry key")
	}
	return Entry{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Key:         string(b[15 : 15+keyLen]),
		Payload:     append([]byte(nil), b[15+keyLen:]...),
	}, nil
}

const prefix = "event/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(b[len(prefix):]), "%d", &seq)
	return seq, err
}

// Outbox is a pebble-backed event store.
type Outbox struct {
	db *pebble.DB
	mu sync.Mutex
	// seq is the last assigned sequence number.
	seq uint64
}

// Open opens the outbox in dir. An empty dir keeps everything in memory.
func Open(dir string) (*Outbox, error) {
	opts := &pebble.Options{}
	if dir == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("outbox: open: %w", err)
	}
	o := &Outbox{db: db}
	if err := o.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Outbox) loadSeq() error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return fmt.Errorf("outbox: open iterator: %w", err)
	}
	defer iter.Close()
	if iter.Last() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return fmt.Errorf("outbox: parse key: %w", err)
		}
		o.seq = seq
	}
	return iter.Error()
}

// Close closes the underlying store.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Append stores ev as a new entry.
func (o *Outbox) Append(_ context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("outbox: marshal event: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	seq := o.seq + 1
	entry := Entry{Seq: seq, State: StateNew, Key: ev.Key(), Payload: payload}
	if err := o.db.Set(keyFor(seq), encodeEntry(entry), pebble.Sync); err != nil {
		return fmt.Errorf("outbox: append: %w", err)
	}
	o.seq = seq
	return nil
}

// Get returns the entry stored under seq.
func (o *Outbox) Get(seq uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, fmt.Errorf("outbox: seq %d: %w", seq, domain.ErrNotFound)
	}
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()
	return decodeEntry(seq, val)
}

// Mark moves an entry to state, counting a retry when it failed.
func (o *Outbox) Mark(seq uint64, state State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.Get(seq)
	if err != nil {
		return err
	}
	e.State = state
	e.LastAttempt = time.Now().UnixNano()
	if state == StateFailed {
		e.Retries++
	}
	return o.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync)
}

// Delete removes an entry.
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// Scan calls fn for entries in any of states, oldest first.
func (o *Outbox) Scan(fn func(Entry) error, states ...State) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		e, err := decodeEntry(seq, iter.Value())
		if err != nil {
			return err
		}
		if len(states) > 0 && !hasState(states, e.State) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func hasState(states []State, s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

var _ domain.EventSink = (*Outbox)(nil)
