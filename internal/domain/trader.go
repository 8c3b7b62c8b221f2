package domain

import "time"

// TraderSource says where a roster entry came from.
type TraderSource string

const (
	SourceManual TraderSource = "manual"
	SourceAPI    TraderSource = "api"
)

// Trader is one roster entry.
type Trader struct {
	Address TraderAddress
	Label   string
	Source  TraderSource
	Active  bool
	AddedAt time.Time
}
