package durable

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
)

func TestLevelDBSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	createdAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	entry := model.NewEntry("roster:nfl", []byte(`[{"PlayerID":1}]`), model.TierOf(1), 1, true, createdAt)
	if err = db.Put(entry); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err = db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, found, err := db.Get("roster:nfl")
	if err != nil || !found {
		t.Fatalf("expected entry after reopen, found=%v err=%v", found, err)
	}
	if !got.CreatedAt.Equal(createdAt) || got.Tier != "fallback-1" || got.Count != 1 || !got.Collection {
		t.Fatalf("entry metadata was not preserved: %+v", got)
	}
	if string(got.Payload) != `[{"PlayerID":1}]` || got.Checksum != entry.Checksum {
		t.Fatalf("payload was not preserved: %s", got.Payload)
	}
}

func TestLevelDBRecordFormat(t *testing.T) {
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	entry := model.NewEntry("odds:nba", []byte(`{"a":1}`), model.TierPrimary, 1, false, time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC))
	if err = db.Put(entry); err != nil {
		t.Fatalf("put: %v", err)
	}
	raw, err := db.db.Get(dbKey("odds:nba"), nil)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	for _, part := range []string{`"createdAt":"2026-03-01T08:30:00Z"`, `"payload":{"a":1}`, `"source":"primary"`} {
		if !strings.Contains(string(raw), part) {
			t.Fatalf("expected %s in record %s", part, raw)
		}
	}
}

func TestLevelDBKeysAndDelete(t *testing.T) {
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, key := range []string{"roster:nfl", "roster:nba", "odds:americanfootball_nfl?regions=us"} {
		if err = db.Put(model.NewEntry(key, []byte(`[]`), model.TierPrimary, 0, true, time.Now())); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	keys, err := db.Keys("roster:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "roster:nba" || keys[1] != "roster:nfl" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err = db.Delete("roster:nba"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := db.Get("roster:nba"); found {
		t.Fatalf("expected roster:nba to be deleted")
	}
	if _, found, err := db.Get("missing"); found || err != nil {
		t.Fatalf("missing keys must be absent without error, err=%v", err)
	}
}
