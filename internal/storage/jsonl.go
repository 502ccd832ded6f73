package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"creatorExchange/internal/model"
)

// JournalEntry is a committed transaction as exported. PoolVersion is the
// pool version the trade produced. Entries are appended after the store lock
// is released, so lines of concurrent trades can land out of commit order;
// sorting one pool's entries by PoolVersion restores it.
type JournalEntry struct {
	model.Transaction
	PoolVersion int64 `json:"pool_version"`
}

// JsonlJournal appends journal entries to a JSONL file, one entry per line.
type JsonlJournal struct {
	path string
	mu   sync.Mutex
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

func (j *JsonlJournal) Append(entries ...JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf []byte
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal journal entry %s: %w", e.ID, err)
		}
		buf = append(append(buf, line...), '\n')
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := file.Write(buf); err != nil {
		file.Close()
		return fmt.Errorf("append journal: %w", err)
	}
	return file.Close()
}

// ReadJournal decodes every entry of the journal at path in file order.
func ReadJournal(path string) ([]JournalEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var out []JournalEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		var e JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}
