package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// AuditEvent records one API request.
type AuditEvent struct {
	ID          string              `json:"_id"`
	Timestamp   time.Time           `json:"timestamp"`
	Route       string              `json:"route"`
	URL         string              `json:"url"`
	PathParams  map[string]string   `json:"path_params,omitempty"`
	QueryParams map[string][]string `json:"query_params,omitempty"`
	Body        json.RawMessage     `json:"body,omitempty"`
}

// auditKey orders events by time: prefix + big-endian UnixNano + uuid bytes.
func auditKey(ts time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, 1+8+16)
	key = append(key, prefixAudit)
	key = binary.BigEndian.AppendUint64(key, uint64(ts.UnixNano()))
	return append(key, id[:]...)
}

// AddAuditEvent appends ev. A zero timestamp is set to now and an empty ID to
// a random UUID.
func (b *BadgerEngine) AddAuditEvent(ev *AuditEvent) error {
	if ev == nil {
		return ErrInvalidData
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	id := uuid.New()
	if ev.ID == "" {
		ev.ID = id.String()
	} else if parsed, err := uuid.Parse(ev.ID); err == nil {
		id = parsed
	}

	data, err := encode(ev)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	err = b.withUpdate(func(txn *badger.Txn) error {
		return txn.Set(auditKey(ev.Timestamp, id), data)
	})
	if err != nil {
		return err
	}
	b.auditCount.Add(1)
	return nil
}

// ListAuditEvents returns up to limit events, newest first. A non-positive
// limit returns all of them.
func (b *BadgerEngine) ListAuditEvents(limit int) ([]*AuditEvent, error) {
	prefix := []byte{prefixAudit}
	var out []*AuditEvent
	err := b.withView(func(txn *badger.Txn) error {
		it := txn.NewIterator(iterOptsValues(prefix, limit, true))
		defer it.Close()
		for it.Seek([]byte{prefixAudit, 0xFF}); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var ev AuditEvent
			if err := it.Item().Value(func(val []byte) error { return decode(val, &ev) }); err != nil {
				return err
			}
			out = append(out, &ev)
		}
		return nil
	})
	return out, err
}
