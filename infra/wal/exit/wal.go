// Package exit implements a durable outbox for reliable at-least-once
// delivery of trade events to a downstream message bus. It tracks each
// trade's delivery state (new/sent/acked/failed) in an embedded pebble
// store; it does not hold order-book state and is never read back to
// reconstruct the book.
package exit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// ExitRecord is one outbox entry: the delivery state of a single
// trade, plus the serialized payload that will eventually be published.
type ExitRecord struct {
	Seq         uint64
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// binary encoding: [state:1][retries:4][lastAttempt:8][payloadLen:4][payload...]
func encodeRecord(r ExitRecord) []byte {
	buf := make([]byte, 1+4+8+4+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(r.Payload)))
	copy(buf[17:], r.Payload)
	return buf
}

func decodeRecord(b []byte) (ExitRecord, error) {
	if len(b) < 17 {
		return ExitRecord{}, errors.New("invalid exit record length")
	}
	n := binary.BigEndian.Uint32(b[13:17])
	if uint32(len(b)-17) != n {
		return ExitRecord{}, errors.New("invalid exit record payload length")
	}
	payload := make([]byte, n)
	copy(payload, b[17:])
	return ExitRecord{
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// -------------------- WAL --------------------

type ExitWAL struct {
	db *pebble.DB
}

func Open(dir string) (*ExitWAL, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &ExitWAL{db: db}, nil
}

func (w *ExitWAL) Close() error {
	return w.db.Close()
}

// -------------------- API --------------------

// PutNew inserts a new outbox entry for seq, carrying the event payload
// that will eventually be published.
func (w *ExitWAL) PutNew(seq uint64, payload []byte) error {
	rec := ExitRecord{
		Seq:     seq,
		State:   StateNew,
		Payload: payload,
	}
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// UpdateState updates state after send / ack / failure, preserving the
// record's payload.
func (w *ExitWAL) UpdateState(seq uint64, state ExitState, retries uint32) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	rec.Seq = seq
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// MarkSent is called just before the publish attempt, so a crash
// between send and ack is retried rather than silently dropped.
func (w *ExitWAL) MarkSent(seq uint64) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	return w.UpdateState(seq, StateSent, rec.Retries+1)
}

// MarkAcked records a confirmed delivery.
func (w *ExitWAL) MarkAcked(seq uint64) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	return w.UpdateState(seq, StateAcked, rec.Retries)
}

// MarkFailed records a failed delivery attempt; the next scan retries
// it.
func (w *ExitWAL) MarkFailed(seq uint64) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	return w.UpdateState(seq, StateFailed, rec.Retries)
}

// Delete removes an ACKED record (cleanup).
func (w *ExitWAL) Delete(seq uint64) error {
	return w.db.Delete(keyFor(seq), pebble.Sync)
}

// Get returns the current record for seq.
func (w *ExitWAL) Get(seq uint64) (ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if err != nil {
		return ExitRecord{}, err
	}
	defer closer.Close()

	rec, err := decodeRecord(val)
	if err != nil {
		return ExitRecord{}, err
	}
	rec.Seq = seq
	return rec, nil
}

// -------------------- Scan --------------------

// ScanByState iterates all records in the given state.
func (w *ExitWAL) ScanByState(state ExitState, fn func(rec ExitRecord) error) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("order/"),
		UpperBound: []byte("order/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		val := iter.Value()

		rec, err := decodeRecord(val)
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}

		seq, err := parseKey(key)
		if err != nil {
			return err
		}
		rec.Seq = seq

		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanPending visits every record still awaiting delivery — freshly
// written ones, ones whose last delivery attempt failed, and ones left
// in StateSent by an attempt whose outcome was never recorded — used by
// the broadcaster's retry loop.
func (w *ExitWAL) ScanPending(fn func(rec ExitRecord) error) error {
	if err := w.ScanByState(StateNew, fn); err != nil {
		return err
	}
	if err := w.ScanByState(StateFailed, fn); err != nil {
		return err
	}
	return w.ScanByState(StateSent, fn)
}

// -------------------- Helpers --------------------

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("order/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("order/"))), "%d", &id)
	return id, err
}
