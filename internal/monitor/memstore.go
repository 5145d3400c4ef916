package monitor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and for DSN-less local runs.
// All methods are safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	events []Event
	daily  map[dailyKey]*DailyRow

	// now is swappable in tests to pin dates.
	now func() time.Time
}

type dailyKey struct {
	date      string
	guardrail string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nextID: 1,
		daily:  make(map[dailyKey]*DailyRow),
		now:    time.Now,
	}
}

func (s *MemStore) AppendEvent(_ context.Context, e *NewEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := s.nextID
	s.nextID++

	s.events = append(s.events, Event{
		ID:            id,
		Timestamp:     now,
		GuardrailName: e.GuardrailName,
		EventType:     e.EventType,
		Correlation:   e.Correlation,
		Details:       cloneDetails(e.Details),
	})

	row := s.dailyRow(now.Format("2006-01-02"), e.GuardrailName)
	row.Invocations++
	switch e.EventType {
	case EventBlock:
		row.Blocks++
	case EventModify:
		row.Modifications++
	case EventPass:
		row.Passes++
	}

	return id, nil
}

func (s *MemStore) RecordFeedback(_ context.Context, eventID int64, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID != eventID {
			continue
		}
		s.events[i].UserFeedback = feedback

		if feedback == FeedbackFalsePositive || feedback == FeedbackFalseNegative {
			row := s.dailyRow(s.events[i].Timestamp.Format("2006-01-02"), s.events[i].GuardrailName)
			if feedback == FeedbackFalsePositive {
				row.FalsePositives++
			} else {
				row.FalseNegatives++
			}
		}
		return nil
	}
	return ErrEventNotFound
}

func (s *MemStore) QueryDaily(_ context.Context, f MetricsFilter) ([]DailyRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []DailyRow
	for _, row := range s.daily {
		if f.GuardrailName != "" && row.GuardrailName != f.GuardrailName {
			continue
		}
		if f.StartDate != "" && row.Date < f.StartDate {
			continue
		}
		if f.EndDate != "" && row.Date > f.EndDate {
			continue
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].GuardrailName < rows[j].GuardrailName
	})
	return rows, nil
}

func (s *MemStore) RecentEvents(_ context.Context, f EventFilter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if f.GuardrailName != "" && e.GuardrailName != f.GuardrailName {
			continue
		}
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		e.Details = cloneDetails(e.Details)
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }

// dailyRow returns the rollup row for (date, guardrail), creating it if
// absent. Callers hold the lock.
func (s *MemStore) dailyRow(date, guardrail string) *DailyRow {
	key := dailyKey{date: date, guardrail: guardrail}
	row, ok := s.daily[key]
	if !ok {
		row = &DailyRow{Date: date, GuardrailName: guardrail}
		s.daily[key] = row
	}
	return row
}

func cloneDetails(d EventDetails) EventDetails {
	out := EventDetails{}
	if d.CategoryScores != nil {
		out.CategoryScores = make(map[string]float64, len(d.CategoryScores))
		for k, v := range d.CategoryScores {
			out.CategoryScores[k] = v
		}
	}
	if d.FlaggedCategories != nil {
		out.FlaggedCategories = append([]string(nil), d.FlaggedCategories...)
	}
	return out
}
