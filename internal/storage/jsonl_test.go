package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
)

func TestJsonlJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "trades.jsonl")
	j := NewJsonlJournal(path)

	first := JournalEntry{
		Transaction: model.Transaction{ID: uuid.New(), UserID: "u", Type: model.DirectionBuy, NmbrAmount: decimal.RequireFromString("1000")},
		PoolVersion: 1,
	}
	second := JournalEntry{
		Transaction: model.Transaction{ID: uuid.New(), UserID: "u", Type: model.DirectionSell, TokenAmount: decimal.RequireFromString("12.5")},
		PoolVersion: 2,
	}
	if err := j.Append(first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := j.Append(second); err != nil {
		t.Fatalf("append second: %v", err)
	}
	if err := j.Append(); err != nil {
		t.Fatalf("append nothing: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), `"pool_version":2`) || !strings.Contains(string(raw), `"user_id":"u"`) {
		t.Fatalf("entry should be a flat transaction with its pool version: %s", raw)
	}

	got, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("file order not preserved")
	}
	if got[1].PoolVersion != 2 || !got[1].TokenAmount.Equal(second.TokenAmount) {
		t.Fatalf("second entry: %+v", got[1])
	}
}

func TestJsonlJournalConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	j := NewJsonlJournal(path)

	const writers = 16
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(version int64) {
			defer wg.Done()
			entry := JournalEntry{Transaction: model.Transaction{ID: uuid.New(), PoolID: "p"}, PoolVersion: version}
			if err := j.Append(entry); err != nil {
				t.Errorf("append %d: %v", version, err)
			}
		}(int64(i))
	}
	wg.Wait()

	got, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(got) != writers {
		t.Fatalf("expected %d entries, got %d", writers, len(got))
	}
	sort.Slice(got, func(a, b int) bool { return got[a].PoolVersion < got[b].PoolVersion })
	for i, e := range got {
		if e.PoolVersion != int64(i+1) {
			t.Fatalf("entry %d has version %d", i, e.PoolVersion)
		}
	}
}

func TestReadJournalRejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	if err := os.WriteFile(path, []byte("{\"pool_version\":1}\nnot json\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadJournal(path); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
}
