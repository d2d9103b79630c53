package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Backup creates a backup of the database to the specified file path.
// Uses BadgerDB's streaming backup which creates a consistent snapshot.
// The backup file is a self-contained, portable copy of the database.
func (b *BadgerEngine) Backup(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrStorageClosed
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriterSize(f, 4*1024*1024)

	// since=0 means full backup
	if _, err := b.db.Backup(buf, 0); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush backup: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync backup: %w", err)
	}
	return nil
}

// Restore loads a file written by Backup into the database. Keys present in
// the backup overwrite existing ones; other keys are kept. Counters and the
// hot segment cache are rebuilt afterwards.
func (b *BadgerEngine) Restore(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrStorageClosed
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	if err := b.db.Load(bufio.NewReaderSize(f, 4*1024*1024), 256); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	b.segmentCache.Purge()
	if err := b.initializeCounts(); err != nil {
		return fmt.Errorf("failed to recount after restore: %w", err)
	}
	return nil
}

// PruneAuditEvents deletes every audit event recorded before cutoff and
// returns how many were removed.
func (b *BadgerEngine) PruneAuditEvents(cutoff time.Time) (int64, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}

	// Audit keys sort by timestamp, so everything below this bound is older
	// than cutoff.
	bound := binary.BigEndian.AppendUint64([]byte{prefixAudit}, uint64(cutoff.UnixNano()))

	var keys [][]byte
	err := b.withView(func(txn *badger.Txn) error {
		it := txn.NewIterator(iterOptsKeyOnly([]byte{prefixAudit}))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(bound) {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete audit event: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}

	pruned := int64(len(keys))
	b.auditCount.Add(-pruned)
	return pruned, nil
}
