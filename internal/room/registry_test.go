package room

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/events"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.evs))
	for i, ev := range r.evs {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *MemoryStore, *recorder) {
	t.Helper()
	store := NewMemoryStore()
	rec := &recorder{}
	opts = append([]Option{WithShuffler(rand.New(rand.NewPCG(7, 11)))}, opts...)
	return NewRegistry(store, rec, quietLogger(), opts...), store, rec
}

// seatRoom creates a room with n players and returns their ids in session order.
func seatRoom(t *testing.T, reg *Registry, n int) (string, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	sess, host, err := reg.CreateSession(ctx, "host")
	require.NoError(t, err)
	ids := []uuid.UUID{host.ID}
	for i := 1; i < n; i++ {
		_, p, err := reg.JoinSession(ctx, sess.Code, "guest")
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return sess.Code, ids
}

func TestCreateSession(t *testing.T) {
	reg, store, rec := newTestRegistry(t)
	sess, host, err := reg.CreateSession(context.Background(), "  alice ")
	require.NoError(t, err)

	assert.True(t, ValidRoomCode(sess.Code))
	assert.Equal(t, "alice", host.Nickname)
	assert.True(t, host.IsHost)
	assert.Equal(t, game.PhaseWaiting, sess.Phase)
	assert.Equal(t, int64(1), sess.Version)
	assert.Equal(t, 1, store.Len())

	code, err := reg.RoomOf(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Code, code)
	assert.Equal(t, []events.Type{events.RoomCreated}, rec.types())
}

func TestCreateSessionRetriesCodeCollision(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	var i int
	gen := func() string {
		c := codes[i]
		i++
		return c
	}
	reg, _, _ := newTestRegistry(t, WithCodeGenerator(gen))

	first, _, err := reg.CreateSession(context.Background(), "a")
	require.NoError(t, err)
	second, _, err := reg.CreateSession(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)
}

func TestCreateSessionGivesUpWhenCodesExhausted(t *testing.T) {
	reg, _, _ := newTestRegistry(t, WithCodeGenerator(func() string { return "ZZZZZZ" }))
	_, _, err := reg.CreateSession(context.Background(), "a")
	require.NoError(t, err)
	_, _, err = reg.CreateSession(context.Background(), "b")
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestJoinSession(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	code, ids := seatRoom(t, reg, 2)

	t.Run("case insensitive code", func(t *testing.T) {
		sess, p, err := reg.JoinSession(ctx, " "+strings.ToLower(code)+" ", "carol")
		require.NoError(t, err)
		assert.Len(t, sess.Players, 3)
		assert.False(t, p.IsHost)
		assert.Equal(t, 100, p.Chips)
	})

	t.Run("unknown room", func(t *testing.T) {
		_, _, err := reg.JoinSession(ctx, "QQQQQQ", "dave")
		assert.ErrorIs(t, err, game.ErrNotFound)
	})

	t.Run("room full", func(t *testing.T) {
		for i := 0; i < game.MaxPlayers-3; i++ {
			_, _, err := reg.JoinSession(ctx, code, "filler")
			require.NoError(t, err)
		}
		_, _, err := reg.JoinSession(ctx, code, "late")
		assert.ErrorIs(t, err, game.ErrRoomFull)
	})

	t.Run("round in progress", func(t *testing.T) {
		code2, ids2 := seatRoom(t, reg, 2)
		_, err := reg.StartGame(ctx, code2, ids2[0])
		require.NoError(t, err)
		_, _, err = reg.JoinSession(ctx, code2, "late")
		assert.ErrorIs(t, err, game.ErrInvalidPhase)
	})

	_ = ids
}

func TestFullRoundThroughRegistry(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry(t)
	code, ids := seatRoom(t, reg, 3)
	host, p1, p2 := ids[0], ids[1], ids[2]

	sess, err := reg.StartGame(ctx, code, host)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseBetting, sess.Phase)
	assert.Equal(t, host, sess.DealerID)

	_, err = reg.PlaceBet(ctx, code, host, 10)
	assert.ErrorIs(t, err, game.ErrUnauthorized)

	sess, err = reg.PlaceBet(ctx, code, p1, 10)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseBetting, sess.Phase)

	rec.reset()
	sess, err = reg.PlaceBet(ctx, code, p2, 20)
	require.NoError(t, err)
	assert.Equal(t, game.PhasePlayerTurn, sess.Phase)
	assert.Equal(t, p1, sess.TurnID)
	assert.Equal(t, []events.Type{events.BetPlaced, events.CardsDealt, events.TurnChanged}, rec.types())

	_, _, err = reg.Stand(ctx, code, p2)
	assert.ErrorIs(t, err, game.ErrInvalidTurn)

	sess, settlement, err := reg.Stand(ctx, code, p1)
	require.NoError(t, err)
	assert.Nil(t, settlement)
	assert.Equal(t, p2, sess.TurnID)

	rec.reset()
	sess, settlement, err = reg.Stand(ctx, code, p2)
	require.NoError(t, err)
	require.NotNil(t, settlement)
	assert.Equal(t, game.PhaseResult, sess.Phase)
	assert.Equal(t, sess.LastSettlement, settlement)
	assert.Contains(t, rec.types(), events.RoundEnded)

	sum := settlement.DealerResult
	for _, pr := range settlement.PlayerResults {
		sum += pr.RoundResult
	}
	assert.Zero(t, sum)

	chips := 0
	for _, p := range sess.Players {
		chips += p.Chips
	}
	assert.Equal(t, 300, chips)

	sess, err = reg.NextRound(ctx, code, p2)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseBetting, sess.Phase)
	assert.Equal(t, p1, sess.DealerID)
	assert.Equal(t, 2, sess.Round)
}

func TestDrawCardForcedStandAdvances(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	code, ids := seatRoom(t, reg, 2)
	_, err := reg.StartGame(ctx, code, ids[0])
	require.NoError(t, err)
	_, err = reg.PlaceBet(ctx, code, ids[1], 5)
	require.NoError(t, err)

	sess, settlement, err := reg.DrawCard(ctx, code, ids[1])
	require.NoError(t, err)
	require.NotNil(t, settlement, "third card ends the only challenger's turn")
	assert.Equal(t, game.PhaseResult, sess.Phase)
	assert.Len(t, settlement.PlayerResults[0].Hand, 3)

	_, _, err = reg.DrawCard(ctx, code, ids[1])
	assert.ErrorIs(t, err, game.ErrInvalidPhase)
}

func TestRejectionLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry(t)
	code, ids := seatRoom(t, reg, 2)

	before, err := store.Load(ctx, code)
	require.NoError(t, err)
	_, err = reg.StartGame(ctx, code, ids[1])
	assert.ErrorIs(t, err, game.ErrUnauthorized)
	_, err = reg.PlaceBet(ctx, code, ids[1], 10)
	assert.ErrorIs(t, err, game.ErrInvalidPhase)

	after, err := store.Load(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Phase, after.Phase)
}

func TestLeaveSession(t *testing.T) {
	ctx := context.Background()

	t.Run("host handoff", func(t *testing.T) {
		reg, _, _ := newTestRegistry(t)
		code, ids := seatRoom(t, reg, 3)
		sess, err := reg.LeaveSession(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, ids[1], sess.HostID)
		assert.True(t, sess.Players[0].IsHost)

		_, err = reg.RoomOf(ctx, ids[0])
		assert.ErrorIs(t, err, game.ErrNotFound)
		_ = code
	})

	t.Run("last player destroys room", func(t *testing.T) {
		reg, store, rec := newTestRegistry(t)
		code, ids := seatRoom(t, reg, 2)
		_, err := reg.LeaveSession(ctx, ids[1])
		require.NoError(t, err)
		rec.reset()
		_, err = reg.LeaveSession(ctx, ids[0])
		require.NoError(t, err)

		assert.Zero(t, store.Len())
		_, err = reg.Get(ctx, code)
		assert.ErrorIs(t, err, game.ErrNotFound)
		assert.Equal(t, []events.Type{events.RoomClosed}, rec.types())
	})

	t.Run("unknown player", func(t *testing.T) {
		reg, _, _ := newTestRegistry(t)
		_, err := reg.LeaveSession(ctx, uuid.New())
		assert.ErrorIs(t, err, game.ErrNotFound)
	})

	t.Run("turn holder leaving settles when only dealer remains to act", func(t *testing.T) {
		reg, _, _ := newTestRegistry(t)
		code, ids := seatRoom(t, reg, 3)
		_, err := reg.StartGame(ctx, code, ids[0])
		require.NoError(t, err)
		for _, id := range ids[1:] {
			_, err = reg.PlaceBet(ctx, code, id, 5)
			require.NoError(t, err)
		}
		_, _, err = reg.Stand(ctx, code, ids[1])
		require.NoError(t, err)

		sess, err := reg.LeaveSession(ctx, ids[2])
		require.NoError(t, err)
		assert.Equal(t, game.PhaseResult, sess.Phase)
		require.NotNil(t, sess.LastSettlement)
	})

	t.Run("dealer leaving abandons round", func(t *testing.T) {
		reg, _, rec := newTestRegistry(t)
		code, ids := seatRoom(t, reg, 3)
		_, err := reg.StartGame(ctx, code, ids[0])
		require.NoError(t, err)
		rec.reset()

		sess, err := reg.LeaveSession(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, game.PhaseWaiting, sess.Phase)
		assert.Equal(t, []events.Type{events.PlayerLeft, events.RoundAbandoned}, rec.types())
		_ = code
	})
}

func TestSetConnected(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry(t)
	code, ids := seatRoom(t, reg, 2)

	rec.reset()
	sess, err := reg.SetConnected(ctx, code, ids[1], false)
	require.NoError(t, err)
	assert.False(t, sess.Player(ids[1]).Connected)

	again, err := reg.SetConnected(ctx, code, ids[1], false)
	require.NoError(t, err)
	assert.Equal(t, sess.Version, again.Version)
	assert.Equal(t, []events.Type{events.PlayerConnection}, rec.types())

	_, err = reg.SetConnected(ctx, code, uuid.New(), true)
	assert.ErrorIs(t, err, game.ErrNotFound)
}

func TestResetStatsThroughRegistry(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	code, ids := seatRoom(t, reg, 2)

	_, err := reg.ResetStats(ctx, code, ids[1])
	assert.ErrorIs(t, err, game.ErrUnauthorized)

	sess, err := reg.ResetStats(ctx, code, ids[0])
	require.NoError(t, err)
	for _, p := range sess.Players {
		assert.Equal(t, 100, p.Chips)
		assert.Zero(t, p.TotalResult)
	}
}

func TestConcurrentBetsAreSerialized(t *testing.T) {
	ctx := context.Background()
	reg, _, rec := newTestRegistry(t)
	code, ids := seatRoom(t, reg, game.MaxPlayers)
	_, err := reg.StartGame(ctx, code, ids[0])
	require.NoError(t, err)
	rec.reset()

	var wg sync.WaitGroup
	for _, id := range ids[1:] {
		for dup := 0; dup < 3; dup++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, _ = reg.PlaceBet(ctx, code, id, 10)
			}(id)
		}
	}
	wg.Wait()

	sess, err := reg.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, game.PhasePlayerTurn, sess.Phase)
	assert.Equal(t, game.DeckSize-1-2*game.MaxPlayers, sess.Deck.Remaining())

	dealt := 0
	for _, typ := range rec.types() {
		if typ == events.CardsDealt {
			dealt++
		}
	}
	assert.Equal(t, 1, dealt, "cards are dealt exactly once")
	assert.Zero(t, reg.locks.size())
}

func TestConcurrentDrawsOnlyTurnHolderWins(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	code, ids := seatRoom(t, reg, 3)
	_, err := reg.StartGame(ctx, code, ids[0])
	require.NoError(t, err)
	for _, id := range ids[1:] {
		_, err = reg.PlaceBet(ctx, code, id, 5)
		require.NoError(t, err)
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := reg.DrawCard(ctx, code, ids[1]); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oks, "the third card forces a stand, so only one draw succeeds")
	sess, err := reg.Get(ctx, code)
	require.NoError(t, err)
	assert.Len(t, sess.State(ids[1]).Hand, 3)
	assert.Equal(t, ids[2], sess.TurnID)
}

// flakyStore fails the first n saves with a version conflict.
type flakyStore struct {
	*MemoryStore
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (f *flakyStore) Save(ctx context.Context, s *game.Session, prev int64) error {
	f.mu.Lock()
	f.saves++
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return ErrConflict
	}
	f.mu.Unlock()
	return f.MemoryStore.Save(ctx, s, prev)
}

func TestRegistryRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	reg := NewRegistry(store, nil, quietLogger(), WithMaxRetries(2))
	code, ids := seatRoom(t, reg, 2)

	store.conflicts = 2
	store.saves = 0
	sess, err := reg.StartGame(ctx, code, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 3, store.saves)
	assert.Equal(t, game.PhaseBetting, sess.Phase)

	store.conflicts = 3
	_, err = reg.NextRound(ctx, code, ids[0])
	assert.ErrorIs(t, err, game.ErrInvalidPhase, "rejections are not retried")

	_, err = reg.ResetStats(ctx, code, ids[0])
	assert.ErrorIs(t, err, ErrConflict)
}

// racingStore runs beforeDelete once, just before the first versioned delete lands.
type racingStore struct {
	*MemoryStore
	beforeDelete func()
}

func (s *racingStore) DeleteIfVersion(ctx context.Context, code string, prev int64) error {
	if hook := s.beforeDelete; hook != nil {
		s.beforeDelete = nil
		hook()
	}
	return s.MemoryStore.DeleteIfVersion(ctx, code, prev)
}

func TestDestroyDoesNotDiscardConcurrentJoin(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryStore()
	store := &racingStore{MemoryStore: shared}
	leaving := NewRegistry(store, nil, quietLogger())
	joining := NewRegistry(shared, nil, quietLogger())

	sess, host, err := leaving.CreateSession(ctx, "host")
	require.NoError(t, err)

	var guestID uuid.UUID
	store.beforeDelete = func() {
		_, guest, err := joining.JoinSession(ctx, sess.Code, "guest")
		require.NoError(t, err)
		guestID = guest.ID
	}

	after, err := leaving.LeaveSession(ctx, host.ID)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, guestID)
	require.Len(t, after.Players, 1)
	assert.Equal(t, guestID, after.Players[0].ID)

	stored, err := shared.Load(ctx, sess.Code)
	require.NoError(t, err, "the room must survive while the guest is seated")
	assert.Equal(t, guestID, stored.HostID)
	code, err := shared.PlayerRoom(ctx, guestID)
	require.NoError(t, err)
	assert.Equal(t, sess.Code, code)
	_, err = shared.PlayerRoom(ctx, host.ID)
	assert.ErrorIs(t, err, game.ErrNotFound)
}

func TestMemoryStoreDeleteIfVersion(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestRegistry(t)
	sess, _, err := reg.CreateSession(ctx, "host")
	require.NoError(t, err)

	assert.ErrorIs(t, store.DeleteIfVersion(ctx, sess.Code, sess.Version+1), ErrConflict)
	require.NoError(t, store.DeleteIfVersion(ctx, sess.Code, sess.Version))
	assert.ErrorIs(t, store.DeleteIfVersion(ctx, sess.Code, sess.Version), game.ErrNotFound)
}

// unbindFailingStore refuses to forget player bindings.
type unbindFailingStore struct {
	*MemoryStore
}

func (s *unbindFailingStore) UnbindPlayer(context.Context, uuid.UUID) error {
	return errors.New("redis unavailable")
}

func TestLeaveStaleBindingLogsUnbindFailure(t *testing.T) {
	ctx := context.Background()
	logger, hook := logtest.NewNullLogger()
	store := &unbindFailingStore{MemoryStore: NewMemoryStore()}
	reg := NewRegistry(store, nil, logger)

	id := uuid.New()
	require.NoError(t, store.BindPlayer(ctx, id, "ZZZZZZ"))
	_, err := reg.LeaveSession(ctx, id)
	require.ErrorIs(t, err, game.ErrNotFound)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "failed to unbind player from missing room" {
			warned = true
			assert.Equal(t, "ZZZZZZ", e.Data["room"])
		}
	}
	assert.True(t, warned)
}
