package service

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/marketlab/internal/domain"
	"github.com/efreitasn/marketlab/internal/store"
)

var (
	discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	fixedTime     = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testRules     = Rules{MaxUnits: 5, MaxPrice: 200, EnforceBudget: true}
)

// recordingNotifier keeps the events dispatched to it.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Dispatch(_, event string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type testEnv struct {
	store        *store.MemoryStore
	participants *ParticipantService
	rounds       *RoundService
	market       *MarketService
	notifier     *recordingNotifier
}

// newTestEnv wires the services over a memory store. New participants get
// 500 money and 2 units; the initial unit value is 100.
func newTestEnv(t *testing.T, rules Rules) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	n := &recordingNotifier{}

	ps := NewParticipantService(st, domain.NewFixedEndowment(500, 2, rand.New(rand.NewSource(1))), rules, 100, nil, discardLogger)
	ps.now = func() time.Time { return fixedTime }

	rs := NewRoundService(st, rules, domain.NewUnitValueRange(80, 200, rand.New(rand.NewSource(2))), n, nil, discardLogger)
	rs.now = func() time.Time { return fixedTime }

	ms := NewMarketService(st, rules)
	ms.now = func() time.Time { return fixedTime }

	return &testEnv{store: st, participants: ps, rounds: rs, market: ms, notifier: n}
}

func (e *testEnv) join(t *testing.T, classID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, _, err := e.participants.Join(context.Background(), JoinRequest{ClassID: classID, ParticipantID: id}); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
}

func (e *testEnv) submit(t *testing.T, classID, id string, side domain.Side, values ...int64) {
	t.Helper()
	_, err := e.participants.Submit(context.Background(), SubmitRequest{
		ClassID:       classID,
		ParticipantID: id,
		Side:          side,
		Valuations:    values,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", id, err)
	}
}

// fourTraderMarket sets up two buyers valuing 10 and 8 and two sellers asking
// 5 and 6 in class c1.
func (e *testEnv) fourTraderMarket(t *testing.T) {
	t.Helper()
	e.join(t, "c1", "b1", "b2", "s1", "s2")
	e.submit(t, "c1", "b1", domain.SideBuy, 10)
	e.submit(t, "c1", "b2", domain.SideBuy, 8)
	e.submit(t, "c1", "s1", domain.SideSell, 5)
	e.submit(t, "c1", "s2", domain.SideSell, 6)
}

func (e *testEnv) mustClear(t *testing.T, classID string) *ClearOutcome {
	t.Helper()
	out, err := e.rounds.Clear(context.Background(), classID)
	if err != nil {
		t.Fatalf("clear %s: %v", classID, err)
	}
	return out
}

func (e *testEnv) mustConfirm(t *testing.T, classID string) *RoundState {
	t.Helper()
	st, err := e.rounds.Confirm(context.Background(), classID)
	if err != nil {
		t.Fatalf("confirm %s: %v", classID, err)
	}
	return st
}

func (e *testEnv) mustAdvance(t *testing.T, classID string) *RoundState {
	t.Helper()
	st, err := e.rounds.Advance(context.Background(), classID)
	if err != nil {
		t.Fatalf("advance %s: %v", classID, err)
	}
	return st
}

func (e *testEnv) mustUpdate(t *testing.T, classID string, fn func(*domain.Class) error) {
	t.Helper()
	if err := e.store.Update(context.Background(), classID, fn); err != nil {
		t.Fatalf("update %s: %v", classID, err)
	}
}
