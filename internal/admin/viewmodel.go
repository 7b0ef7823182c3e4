package admin

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lulukarama/izmirdisestetigi/internal/model"
)

// StatusFilter is a model.Status or FilterAll.
type StatusFilter string

const FilterAll StatusFilter = "all"

func ParseStatusFilter(raw string) (StatusFilter, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == string(FilterAll) {
		return FilterAll, nil
	}
	s, err := model.ParseStatus(raw)
	if err != nil {
		return "", fmt.Errorf("status filter: %w", err)
	}
	return StatusFilter(s), nil
}

type Query struct {
	Search string       `json:"search"`
	Status StatusFilter `json:"status"`
}

// Filter keeps the rows whose name, email or phone contains the search text
// (case-insensitive) and whose status matches. Order is preserved and the
// result is never nil.
func Filter(rows []model.Appointment, q Query) []model.Appointment {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]model.Appointment, 0, len(rows))
	for _, a := range rows {
		if q.Status != "" && q.Status != FilterAll && model.Status(q.Status) != a.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(a.FullName), needle) &&
			!strings.Contains(strings.ToLower(a.Email), needle) &&
			!strings.Contains(strings.ToLower(a.Phone), needle) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ViewModel is the appointments table screen: a query over the store.
type ViewModel struct {
	store *AppointmentStore

	mu sync.RWMutex
	q  Query
}

func NewViewModel(store *AppointmentStore) *ViewModel {
	return &ViewModel{store: store, q: Query{Status: FilterAll}}
}

func (v *ViewModel) SetSearch(s string) {
	v.mu.Lock()
	v.q.Search = s
	v.mu.Unlock()
}

func (v *ViewModel) SetStatusFilter(f StatusFilter) {
	v.mu.Lock()
	v.q.Status = f
	v.mu.Unlock()
}

func (v *ViewModel) Query() Query {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.q
}

// Rows derives the visible rows from the latest snapshot.
func (v *ViewModel) Rows() []model.Appointment {
	return Filter(v.store.Snapshot().Appointments, v.Query())
}

func (v *ViewModel) SetStatus(ctx context.Context, id string, to model.Status) error {
	return v.store.SetStatus(ctx, id, to)
}
