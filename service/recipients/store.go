package recipients

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DefaultRowCount is the number of blank rows a new session starts with.
const DefaultRowCount = 4

// Observer is notified after a row changes. It runs outside the store lock.
type Observer func(row Row)

// Store is the id-keyed collection of recipient rows. Every mutation touches
// exactly one row cell, so concurrent writes to different rows never lose
// each other's updates.
type Store struct {
	mu        sync.RWMutex
	order     []uuid.UUID
	rows      map[uuid.UUID]*Row
	observers []Observer
}

// NewStore creates a store holding rows in the given order.
func NewStore(rows ...Row) *Store {
	s := &Store{rows: make(map[uuid.UUID]*Row, len(rows))}
	s.replace(rows)
	return s
}

// NewDefaultStore creates a store with DefaultRowCount blank rows.
func NewDefaultStore() *Store {
	rows := make([]Row, DefaultRowCount)
	for i := range rows {
		rows[i] = NewRow(Invalid{}, "")
	}
	return NewStore(rows...)
}

// Subscribe registers an observer for row changes.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Len returns the number of rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns a copy of all rows in order.
func (s *Store) Snapshot() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.rows[id])
	}
	return out
}

// Get returns a copy of the row with the given id.
func (s *Store) Get(id uuid.UUID) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return Row{}, fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	return *r, nil
}

// Add appends a new Idle row.
func (s *Store) Add(dest Destination, amount string) Row {
	row := NewRow(dest, amount)
	s.mu.Lock()
	cp := row
	s.rows[row.ID] = &cp
	s.order = append(s.order, row.ID)
	s.mu.Unlock()
	s.notify(row)
	return row
}

// Update edits the destination and amount of an Idle row.
func (s *Store) Update(id uuid.UUID, dest Destination, amount string) (Row, error) {
	s.mu.Lock()
	r, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return Row{}, fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	if _, idle := r.State.(Idle); !idle {
		s.mu.Unlock()
		return Row{}, fmt.Errorf("%w: %s is %s", ErrRowLocked, id, r.State.Name())
	}
	r.Destination = dest
	r.Amount = amount
	updated := *r
	s.mu.Unlock()

	s.notify(updated)
	return updated, nil
}

// Remove deletes the row with the given id.
func (s *Store) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	delete(s.rows, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ReplaceAll swaps the whole collection, e.g. after a CSV import.
func (s *Store) ReplaceAll(rows []Row) {
	s.mu.Lock()
	s.replace(rows)
	s.mu.Unlock()
}

func (s *Store) replace(rows []Row) {
	s.order = make([]uuid.UUID, 0, len(rows))
	s.rows = make(map[uuid.UUID]*Row, len(rows))
	for _, r := range rows {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.State == nil {
			r.State = Idle{}
		}
		cp := r
		s.rows[r.ID] = &cp
		s.order = append(s.order, r.ID)
	}
}

// Transition moves one row to next, rejecting backward or repeated moves.
func (s *Store) Transition(id uuid.UUID, next TransferState) (Row, error) {
	s.mu.Lock()
	r, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return Row{}, fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	if err := ValidateTransition(r.State, next); err != nil {
		s.mu.Unlock()
		return Row{}, fmt.Errorf("row %s: %w", id, err)
	}
	r.State = next
	updated := *r
	s.mu.Unlock()

	s.notify(updated)
	return updated, nil
}

// ResetStates returns every row to Idle so the list can be used for a new run.
func (s *Store) ResetStates() {
	s.mu.Lock()
	for _, r := range s.rows {
		r.State = Idle{}
	}
	s.mu.Unlock()
}

func (s *Store) notify(row Row) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o(row)
	}
}
