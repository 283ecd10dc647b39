package models

import "time"

// MusicFact describes the external music module's now-playing state.
type MusicFact struct {
	Song      string `json:"song"`
	LyricLine string `json:"lyric_line,omitempty"`
}

// LiveFacts is the situational data injected into every prompt: the
// local wall clock plus the optional now-playing line.
type LiveFacts struct {
	WallClock time.Time  `json:"wall_clock"`
	Music     *MusicFact `json:"music,omitempty"`
}

// CallStat is one per-attempt record in the rolling API statistics
// window, keyed by (config, key index, key hash).
type CallStat struct {
	ConfigID  string    `json:"config_id"`
	KeyIndex  int       `json:"key_index"`
	KeyHash   string    `json:"key_hash"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// KeyStatSummary aggregates the last 24 hours of call stats for one key.
type KeyStatSummary struct {
	ConfigID string `json:"config_id"`
	KeyIndex int    `json:"key_index"`
	KeyHash  string `json:"key_hash"`
	Success  int    `json:"success"`
	Failure  int    `json:"failure"`
}
