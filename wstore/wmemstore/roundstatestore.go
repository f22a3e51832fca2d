// Package wmemstore contains in-memory implementations of the wstore interfaces.
package wmemstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wstore"
)

type RoundStateStore struct {
	mu sync.RWMutex

	params    *wround.RoundParams
	schedules map[uint64][]string
	witnesses map[string]wround.Witness
}

var _ wstore.RoundStateStore = (*RoundStateStore)(nil)

func NewRoundStateStore() *RoundStateStore {
	return &RoundStateStore{
		schedules: make(map[uint64][]string),
		witnesses: make(map[string]wround.Witness),
	}
}

func (s *RoundStateStore) LoadRoundParams(_ context.Context) (wround.RoundParams, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.params == nil {
		return wround.RoundParams{}, wstore.ErrParamsNotFound
	}
	return *s.params, nil
}

func (s *RoundStateStore) LoadSchedule(_ context.Context, round uint64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.schedules[round]), nil
}

func (s *RoundStateStore) LoadWitness(_ context.Context, account string) (wround.Witness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.witnesses[account]
	if !ok {
		return wround.Witness{}, fmt.Errorf("%w: %q", wstore.ErrWitnessNotFound, account)
	}
	return w, nil
}

func (s *RoundStateStore) SetRoundParams(p wround.RoundParams) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.params = &p
}

func (s *RoundStateStore) SetSchedule(round uint64, accounts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schedules[round] = slices.Clone(accounts)
}

func (s *RoundStateStore) PutWitness(w wround.Witness) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.witnesses[w.Account] = w
}
