// Package source fetches resource records from a Pulse server. Every source
// answers Fetch for one resource kind at a time; the HTTP and WebSocket
// sources share one decoded state document across all kinds.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pulseview/record"
)

// ErrNoData reports that no state document has been received yet.
var ErrNoData = errors.New("no data received")

// Source is the data feed consumed by the live driver.
type Source interface {
	Fetch(ctx context.Context, kind record.Kind) ([]record.Record, error)
}

// Static serves fixed records per kind. Tests and the snapshot command use it.
type Static struct {
	mu      sync.RWMutex
	records map[record.Kind][]record.Record
	errs    map[record.Kind]error
}

// NewStatic returns an empty Static source.
func NewStatic() *Static {
	return &Static{
		records: make(map[record.Kind][]record.Record),
		errs:    make(map[record.Kind]error),
	}
}

// Set replaces the records served for kind and clears any failure.
func (s *Static) Set(kind record.Kind, recs []record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[kind] = append([]record.Record(nil), recs...)
	delete(s.errs, kind)
}

// Fail makes Fetch for kind return err until the next Set.
func (s *Static) Fail(kind record.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[kind] = err
}

func (s *Static) Fetch(ctx context.Context, kind record.Kind) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.errs[kind]; err != nil {
		return nil, err
	}
	return append([]record.Record(nil), s.records[kind]...), nil
}

// FromState flattens a decoded state document into kind's records.
func FromState(st *State, kind record.Kind) ([]record.Record, error) {
	if st == nil {
		return nil, ErrNoData
	}
	switch kind {
	case record.Guests:
		return st.guestRecords(), nil
	case record.Storage:
		return st.storageRecords(), nil
	case record.Snapshots:
		return st.snapshotRecords(), nil
	case record.PVEBackups:
		return st.backupRecords(), nil
	case record.PBSTasks:
		return st.pbsRecords(), nil
	}
	return nil, fmt.Errorf("unknown resource kind %d", kind)
}
