package localstore

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
)

// wal is an append-only file where every mutation is durably recorded
// before it is applied to the in-memory store. On restart it is replayed
// from the top, leaving the store in the state it was in before a crash.
//
// The bridge never deletes a local record — the upstream catalog only
// ever advances "newer modification timestamp wins" (spec.md §1
// Non-goals) — and every Record already carries the id it belongs to.
// That leaves nothing for a generic key/value/op envelope to add, so
// unlike a WAL built for an arbitrary key-value store, this one persists
// Record values directly: one self-describing line per write, no
// separate entry type to keep in sync with the store's own record shape.
type wal struct {
	mu   sync.Mutex
	file *os.File
}

func newWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &wal{file: f}, nil
}

// append serializes r as JSON and fsyncs it before returning.
func (w *wal) append(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if _, err := w.file.Write(data); err != nil {
		return err
	}
	return w.file.Sync()
}

// readAll scans the WAL file from the beginning and returns every record,
// in write order, for the caller to fold into its in-memory map keyed by
// each record's own ID field.
func (w *wal) readAll() ([]Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, 0); err != nil {
		return nil, err
	}

	var records []Record
	scanner := bufio.NewScanner(w.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			// Corrupt entry — skip it rather than refuse to start.
			continue
		}
		records = append(records, r)
	}
	return records, scanner.Err()
}

// truncate empties the WAL after a snapshot has been taken.
func (w *wal) truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, 0)
	return err
}

func (w *wal) close() error {
	return w.file.Close()
}
