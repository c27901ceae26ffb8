package model

import "time"

// HeartbeatRecord is one append-only row of the heartbeat log.
// The newest record's NextAt is the earliest instant the next cycle may fire.
type HeartbeatRecord struct {
	ID           string        `json:"id"`
	At           time.Time     `json:"at"`
	Interval     time.Duration `json:"interval"`
	MarketScore  float64       `json:"market_score"`
	TimeScore    float64       `json:"time_score"`
	EntropyScore float64       `json:"entropy_score"`
	Triggered    bool          `json:"triggered"`
	Outcome      string        `json:"outcome"`
	NextAt       time.Time     `json:"next_at"`
}
