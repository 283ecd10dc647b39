package services

import (
	"testing"
	"time"
)

func TestStatsRecordAndRecentCounts(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db)

	hash0 := HashKey("sk-first")
	hash1 := HashKey("sk-second")

	// Two keys, mixed outcomes, every attempt recorded.
	for i := 0; i < 3; i++ {
		if err := stats.Record("cfg1", 0, hash0, true); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if err := stats.Record("cfg1", 0, hash0, false); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := stats.Record("cfg1", 1, hash1, false); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	// Records for another config never leak into cfg1's summary.
	if err := stats.Record("cfg2", 0, hash0, true); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	summaries, err := stats.RecentCounts("cfg1")
	if err != nil {
		t.Fatalf("recent counts failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 key summaries, got %d", len(summaries))
	}
	if summaries[0].KeyIndex != 0 || summaries[0].Success != 3 || summaries[0].Failure != 1 {
		t.Errorf("key 0 summary wrong: %+v", summaries[0])
	}
	if summaries[1].KeyIndex != 1 || summaries[1].Success != 0 || summaries[1].Failure != 1 {
		t.Errorf("key 1 summary wrong: %+v", summaries[1])
	}
}

func TestStatsWindowExcludesOldRecords(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db)

	old := time.Now().Add(-StatsWindow - time.Hour)
	if _, err := db.Exec(`
		INSERT INTO call_stats (config_id, key_index, key_hash, success, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, "cfg1", 0, HashKey("sk"), true, old); err != nil {
		t.Fatalf("failed to insert old record: %v", err)
	}
	if err := stats.Record("cfg1", 0, HashKey("sk"), true); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	summaries, err := stats.RecentCounts("cfg1")
	if err != nil {
		t.Fatalf("recent counts failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Success != 1 {
		t.Fatalf("expired record counted: %+v", summaries)
	}
}

func TestStatsGC(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db)

	old := time.Now().Add(-StatsWindow - time.Hour)
	if _, err := db.Exec(`
		INSERT INTO call_stats (config_id, key_index, key_hash, success, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, "cfg1", 0, HashKey("sk"), true, old); err != nil {
		t.Fatalf("failed to insert old record: %v", err)
	}
	if err := stats.Record("cfg1", 0, HashKey("sk"), false); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if err := stats.GC(); err != nil {
		t.Fatalf("gc failed: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM call_stats`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected only the fresh record to survive GC, got %d", count)
	}
}

func TestHashKeyStable(t *testing.T) {
	a, b := HashKey("sk-abc"), HashKey("sk-abc")
	if a != b {
		t.Errorf("hash must be stable: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16-char fingerprint, got %d", len(a))
	}
	if a == HashKey("sk-def") {
		t.Error("different keys must not collide in the test set")
	}
}
