package engine

import "sync/atomic"

// Stats are counters shared by all workers
type Stats struct {
	Accepted     atomic.Uint64
	AcceptErrors atomic.Uint64
	Served       atomic.Uint64
	NotFound     atomic.Uint64
	Dropped      atomic.Uint64 // closed by epoll error or hangup
	ReadErrors   atomic.Uint64 // closed before the request was complete
	WriteErrors  atomic.Uint64
}

type StatsSnapshot struct {
	Accepted     uint64 `json:"accepted"`
	AcceptErrors uint64 `json:"accept_errors"`
	Served       uint64 `json:"served"`
	NotFound     uint64 `json:"not_found"`
	Dropped      uint64 `json:"dropped"`
	ReadErrors   uint64 `json:"read_errors"`
	WriteErrors  uint64 `json:"write_errors"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted:     s.Accepted.Load(),
		AcceptErrors: s.AcceptErrors.Load(),
		Served:       s.Served.Load(),
		NotFound:     s.NotFound.Load(),
		Dropped:      s.Dropped.Load(),
		ReadErrors:   s.ReadErrors.Load(),
		WriteErrors:  s.WriteErrors.Load(),
	}
}
