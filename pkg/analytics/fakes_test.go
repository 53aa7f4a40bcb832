package analytics

import (
	"context"
	"strings"
	"sync"
	"time"
)

type fakeSource struct {
	mu      sync.Mutex
	records []QueueRecord
	err     error
	calls   int
}

func (f *fakeSource) GetRecords(_ context.Context, _ string, from, to time.Time, filters Filters) ([]QueueRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	var out []QueueRecord
	for _, r := range f.records {
		if r.CreatedAt.Before(from) || r.CreatedAt.After(to) {
			continue
		}
		if filters.ServiceID != "" && r.ServiceID != filters.ServiceID {
			continue
		}
		if filters.Status != "" && string(r.Status) != filters.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.data[key], nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func (m *memStore) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			m.deleted = append(m.deleted, k)
		}
	}
	return nil
}

func (m *memStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type fakeSnapshots struct {
	mu    sync.Mutex
	saved []Snapshot
	err   error
}

func (f *fakeSnapshots) SaveSnapshot(_ context.Context, s *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, *s)
	return nil
}

func (f *fakeSnapshots) ListSnapshots(_ context.Context, shopID string, _ SnapshotQuery) ([]Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []Snapshot
	for _, s := range f.saved {
		if s.ShopID == shopID {
			out = append(out, s)
		}
	}
	return out, nil
}

// januaryRecords is ten records for shop S1: 6 completed, 2 cancelled,
// 1 no-show and 1 waiting.
func januaryRecords() []QueueRecord {
	day := func(d, h int) time.Time { return time.Date(2024, 1, d, h, 0, 0, 0, time.UTC) }
	done := func(t time.Time, m int) *time.Time { c := t.Add(time.Duration(m) * time.Minute); return &c }

	return []QueueRecord{
		{ID: "1", Status: StatusCompleted, CreatedAt: day(2, 9), CompletedAt: done(day(2, 9), 20), ActualWaitTime: fp(10), ServiceID: "cut", ServiceName: "Haircut", TotalAmount: 25},
		{ID: "2", Status: StatusCompleted, CreatedAt: day(3, 10), CompletedAt: done(day(3, 10), 30), ActualWaitTime: fp(20), ServiceID: "cut", ServiceName: "Haircut", TotalAmount: 25},
		{ID: "3", Status: StatusCompleted, CreatedAt: day(5, 10), CompletedAt: done(day(5, 10), 40), ActualWaitTime: fp(5), ServiceID: "color", ServiceName: "Color", TotalAmount: 80},
		{ID: "4", Status: StatusCompleted, CreatedAt: day(8, 14), CompletedAt: done(day(8, 14), 10), ActualWaitTime: fp(15), ServiceID: "cut", ServiceName: "Haircut", TotalAmount: 25},
		{ID: "5", Status: StatusCompleted, CreatedAt: day(12, 10), CompletedAt: done(day(12, 10), 25), ActualWaitTime: fp(30), ServiceID: "shave", ServiceName: "Shave", TotalAmount: 15},
		{ID: "6", Status: StatusCompleted, CreatedAt: day(15, 16), CompletedAt: done(day(15, 16), 35), ActualWaitTime: fp(40), ServiceID: "color", ServiceName: "Color", TotalAmount: 80},
		{ID: "7", Status: StatusCancelled, CreatedAt: day(18, 10), ServiceID: "cut", ServiceName: "Haircut"},
		{ID: "8", Status: StatusCancelled, CreatedAt: day(20, 11), ServiceID: "shave", ServiceName: "Shave"},
		{ID: "9", Status: StatusNoShow, CreatedAt: day(25, 12), ServiceID: "cut", ServiceName: "Haircut"},
		{ID: "10", Status: StatusWaiting, CreatedAt: day(30, 9), ActualWaitTime: fp(0), ServiceID: "", TotalAmount: 0},
	}
}

func january() DateRange {
	return DateRange{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
	}
}

var fixedNow = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
