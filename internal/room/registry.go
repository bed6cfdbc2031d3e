// internal/room/registry.go
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/events"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 5
	maxCodeAttempts   = 16
)

// Registry maps room codes to sessions and runs every mutation as a transaction:
// load the whole session, apply one operation to a private copy, and save it back
// with a version compare-and-set. A per-room lock serializes writers inside this
// process; the compare-and-set covers writers in other processes sharing the store.
type Registry struct {
	store  Store
	pub    events.Publisher
	logger *logrus.Logger
	locks  *roomLocks

	shuffler   game.Shuffler
	maxRetries int
	now        func() time.Time
	newCode    func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithShuffler makes every deck reset use r. Access to r is serialized.
func WithShuffler(r game.Shuffler) Option {
	return func(reg *Registry) {
		reg.shuffler = &lockedShuffler{r: r}
	}
}

// WithMaxRetries bounds how many times a transaction is retried after a version conflict.
func WithMaxRetries(n int) Option {
	return func(reg *Registry) {
		reg.maxRetries = n
	}
}

// WithClock overrides the time source used for UpdatedAt and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(reg *Registry) {
		reg.now = now
	}
}

// WithCodeGenerator overrides room code generation.
func WithCodeGenerator(gen func() string) Option {
	return func(reg *Registry) {
		reg.newCode = gen
	}
}

// NewRegistry builds a registry over store. A nil publisher discards events.
func NewRegistry(store Store, pub events.Publisher, logger *logrus.Logger, opts ...Option) *Registry {
	if pub == nil {
		pub = events.Discard
	}
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		store:      store,
		pub:        pub,
		logger:     logger,
		locks:      newRoomLocks(),
		maxRetries: defaultMaxRetries,
		now:        time.Now,
		newCode:    NewRoomCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type lockedShuffler struct {
	mu sync.Mutex
	r  game.Shuffler
}

func (l *lockedShuffler) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// txn is the scratch space of one transaction attempt.
type txn struct {
	sess    *game.Session
	actor   uuid.UUID
	events  []events.Event
	bind    []uuid.UUID
	unbind  []uuid.UUID
	destroy bool
	settled *game.Settlement
}

func (t *txn) emit(typ events.Type, actor uuid.UUID) {
	t.events = append(t.events, events.Event{Type: typ, ActorID: actor})
}

func (r *Registry) prepare(sess *game.Session) {
	if r.shuffler != nil {
		sess.SetShuffler(r.shuffler)
	}
}

// update runs fn against a private copy of the session and commits the result.
// fn must only touch t.sess; it runs again from a fresh load after a conflict.
func (r *Registry) update(ctx context.Context, op, code string, actor uuid.UUID, fn func(t *txn) error) (*game.Session, *txn, error) {
	code = NormalizeCode(code)
	unlock := r.locks.lock(code)
	defer unlock()

	log := r.logger.WithFields(logrus.Fields{"room": code, "player": actor, "op": op})
	for attempt := 0; ; attempt++ {
		sess, err := r.store.Load(ctx, code)
		if err != nil {
			r.logRejection(log, err)
			return nil, nil, err
		}
		r.prepare(sess)
		prev := sess.Version

		t := &txn{sess: sess, actor: actor}
		if err := fn(t); err != nil {
			r.logRejection(log.WithField("phase", sess.Phase), err)
			return nil, nil, err
		}

		sess.Version = prev + 1
		sess.UpdatedAt = r.now()
		if t.destroy {
			err = r.store.DeleteIfVersion(ctx, code, prev)
		} else {
			err = r.store.Save(ctx, sess, prev)
		}
		if errors.Is(err, ErrConflict) && attempt < r.maxRetries {
			log.WithField("attempt", attempt+1).Debug("version conflict, retrying")
			continue
		}
		if err != nil {
			if errors.Is(err, ErrConflict) {
				err = fmt.Errorf("%s on room %s: %w", op, code, err)
			}
			log.WithError(err).WithField("destroy", t.destroy).Error("failed to commit room")
			return nil, nil, err
		}

		r.applyBindings(ctx, log, code, t)
		snap := sess.Clone()
		log.WithFields(logrus.Fields{"phase": snap.Phase, "round": snap.Round, "version": snap.Version}).Debug("committed")
		r.publish(ctx, snap, t.events)
		return snap, t, nil
	}
}

func (r *Registry) applyBindings(ctx context.Context, log *logrus.Entry, code string, t *txn) {
	for _, id := range t.bind {
		if err := r.store.BindPlayer(ctx, id, code); err != nil {
			log.WithError(err).Warn("failed to bind player to room")
		}
	}
	for _, id := range t.unbind {
		if err := r.store.UnbindPlayer(ctx, id); err != nil {
			log.WithError(err).Warn("failed to unbind player from room")
		}
	}
}

// publish stamps and delivers events for a committed snapshot. Delivery failures are
// logged; the change is already durable.
func (r *Registry) publish(ctx context.Context, snap *game.Session, evs []events.Event) {
	now := r.now()
	for _, ev := range evs {
		ev.RoomCode = snap.Code
		ev.Version = snap.Version
		ev.OccurredAt = now
		ev.Session = snap
		if err := r.pub.Publish(ctx, ev); err != nil {
			r.logger.WithFields(logrus.Fields{"room": snap.Code, "event": ev.Type}).WithError(err).Warn("failed to publish event")
		}
	}
}

func (r *Registry) logRejection(log *logrus.Entry, err error) {
	if errors.Is(err, errUnchanged) {
		return
	}
	var gerr *game.Error
	if errors.As(err, &gerr) {
		log.WithField("kind", game.KindName(err)).Info(gerr.Error())
		return
	}
	log.WithError(err).Error("transaction failed")
}

// advance moves play forward after a stand. When the last challenger stands it also
// plays the dealer's turn and settles, so callers never observe a stalled dealerTurn.
func (r *Registry) advance(t *txn) error {
	s := t.sess
	prevTurn := s.TurnID
	if _, err := s.AdvanceTurn(); err != nil {
		return err
	}
	if s.TurnID != prevTurn {
		t.emit(events.TurnChanged, s.TurnID)
	}
	return r.resolveDealer(t)
}

func (r *Registry) resolveDealer(t *txn) error {
	s := t.sess
	if s.Phase != game.PhaseDealerTurn {
		return nil
	}
	settlement, err := s.AdvanceTurn()
	if err != nil {
		return err
	}
	t.settled = settlement
	ev := events.Event{Type: events.RoundEnded, ActorID: s.DealerID, Settlement: settlement}
	t.events = append(t.events, ev)
	return nil
}

// CreateSession opens a new waiting room hosted by a fresh player.
func (r *Registry) CreateSession(ctx context.Context, nickname string) (*game.Session, *models.Player, error) {
	host := models.NewPlayer(strings.TrimSpace(nickname), true)
	log := r.logger.WithFields(logrus.Fields{"player": host.ID, "op": "create"})

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := r.newCode()
		sess := game.NewSession(code, host.Clone())
		r.prepare(sess)
		sess.Version = 1
		sess.UpdatedAt = r.now()

		err := r.store.Create(ctx, sess)
		if errors.Is(err, ErrCodeTaken) {
			log.WithField("room", code).Debug("room code collision, retrying")
			continue
		}
		if err != nil {
			log.WithError(err).Error("failed to create room")
			return nil, nil, err
		}

		snap := sess.Clone()
		if err := r.store.BindPlayer(ctx, host.ID, code); err != nil {
			log.WithError(err).Warn("failed to bind host to room")
		}
		log.WithField("room", code).Info("room created")
		r.publish(ctx, snap, []events.Event{{Type: events.RoomCreated, ActorID: host.ID}})
		return snap, snap.Player(host.ID).Clone(), nil
	}
	return nil, nil, fmt.Errorf("no free room code after %d attempts: %w", maxCodeAttempts, ErrCodeTaken)
}

// JoinSession seats a new player in a waiting room.
func (r *Registry) JoinSession(ctx context.Context, code, nickname string) (*game.Session, *models.Player, error) {
	p := models.NewPlayer(strings.TrimSpace(nickname), false)
	snap, _, err := r.update(ctx, "join", code, p.ID, func(t *txn) error {
		if err := t.sess.AddPlayer(p.Clone()); err != nil {
			return err
		}
		t.bind = append(t.bind, p.ID)
		t.emit(events.PlayerJoined, p.ID)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, snap.Player(p.ID).Clone(), nil
}

// LeaveSession removes a player from whatever room they are in. The room is destroyed
// when its last player leaves; the returned snapshot is then the final state.
func (r *Registry) LeaveSession(ctx context.Context, playerID uuid.UUID) (*game.Session, error) {
	code, err := r.store.PlayerRoom(ctx, playerID)
	if err != nil {
		return nil, err
	}
	snap, _, err := r.update(ctx, "leave", code, playerID, func(t *txn) error {
		s := t.sess
		wasPhase, prevTurn := s.Phase, s.TurnID
		if _, err := s.RemovePlayer(playerID); err != nil {
			return err
		}
		t.unbind = append(t.unbind, playerID)
		if len(s.Players) == 0 {
			t.destroy = true
			t.emit(events.RoomClosed, playerID)
			return nil
		}
		t.emit(events.PlayerLeft, playerID)

		switch {
		case wasPhase.InRound() && s.Phase == game.PhaseWaiting:
			t.emit(events.RoundAbandoned, playerID)
			return nil
		case wasPhase == game.PhaseBetting && s.Phase == game.PhasePlayerTurn:
			t.emit(events.CardsDealt, uuid.Nil)
		}
		if s.TurnID != prevTurn {
			t.emit(events.TurnChanged, s.TurnID)
		}
		return r.resolveDealer(t)
	})
	if errors.Is(err, game.ErrNotFound) {
		// The room vanished underneath the binding; drop the stale pointer.
		if uerr := r.store.UnbindPlayer(ctx, playerID); uerr != nil {
			r.logger.WithError(uerr).WithFields(logrus.Fields{"room": code, "player": playerID}).Warn("failed to unbind player from missing room")
		}
	}
	return snap, err
}

// StartGame begins the first round on behalf of the host.
func (r *Registry) StartGame(ctx context.Context, code string, actor uuid.UUID) (*game.Session, error) {
	snap, _, err := r.update(ctx, "start_game", code, actor, func(t *txn) error {
		if err := t.sess.StartGame(actor); err != nil {
			return err
		}
		t.emit(events.GameStarted, actor)
		t.emit(events.BettingStarted, t.sess.DealerID)
		return nil
	})
	return snap, err
}

// PlaceBet records a bet and deals once every challenger has bet.
func (r *Registry) PlaceBet(ctx context.Context, code string, actor uuid.UUID, amount int) (*game.Session, error) {
	snap, _, err := r.update(ctx, "place_bet", code, actor, func(t *txn) error {
		dealt, err := t.sess.PlaceBet(actor, amount)
		if err != nil {
			return err
		}
		t.events = append(t.events, events.Event{Type: events.BetPlaced, ActorID: actor, Amount: amount})
		if dealt {
			t.emit(events.CardsDealt, uuid.Nil)
			t.emit(events.TurnChanged, t.sess.TurnID)
		}
		return nil
	})
	return snap, err
}

// DrawCard gives the player on turn a card. A third card ends their turn, and if they
// were the last challenger the round is settled; the settlement is then returned.
func (r *Registry) DrawCard(ctx context.Context, code string, actor uuid.UUID) (*game.Session, *game.Settlement, error) {
	snap, t, err := r.update(ctx, "draw_card", code, actor, func(t *txn) error {
		if _, err := t.sess.DrawCard(actor); err != nil {
			return err
		}
		t.emit(events.CardDrawn, actor)
		if st := t.sess.State(actor); st != nil && st.Stand {
			t.emit(events.PlayerStand, actor)
			return r.advance(t)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, settledIn(snap, t), nil
}

// Stand ends the actor's turn and advances play, settling the round if they were last.
func (r *Registry) Stand(ctx context.Context, code string, actor uuid.UUID) (*game.Session, *game.Settlement, error) {
	snap, t, err := r.update(ctx, "stand", code, actor, func(t *txn) error {
		if err := t.sess.Stand(actor); err != nil {
			return err
		}
		t.emit(events.PlayerStand, actor)
		return r.advance(t)
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, settledIn(snap, t), nil
}

func settledIn(snap *game.Session, t *txn) *game.Settlement {
	if t.settled == nil {
		return nil
	}
	return snap.LastSettlement
}

// NextRound rotates the dealer and opens betting. Any member may trigger it once the
// previous round has been settled.
func (r *Registry) NextRound(ctx context.Context, code string, actor uuid.UUID) (*game.Session, error) {
	snap, _, err := r.update(ctx, "next_round", code, actor, func(t *txn) error {
		if t.sess.Player(actor) == nil {
			return &game.Error{Kind: game.ErrNotFound, Op: "next_round", Msg: fmt.Sprintf("player %s", actor)}
		}
		if err := t.sess.NextRound(); err != nil {
			return err
		}
		t.emit(events.BettingStarted, t.sess.DealerID)
		return nil
	})
	return snap, err
}

// ResetStats restores every member's chips and cumulative result on behalf of the host.
func (r *Registry) ResetStats(ctx context.Context, code string, actor uuid.UUID) (*game.Session, error) {
	snap, _, err := r.update(ctx, "reset_stats", code, actor, func(t *txn) error {
		if err := t.sess.ResetStats(actor); err != nil {
			return err
		}
		t.emit(events.StatsReset, actor)
		return nil
	})
	return snap, err
}

// SetConnected records whether a member has a live realtime connection.
func (r *Registry) SetConnected(ctx context.Context, code string, playerID uuid.UUID, connected bool) (*game.Session, error) {
	snap, _, err := r.update(ctx, "connection", code, playerID, func(t *txn) error {
		p := t.sess.Player(playerID)
		if p != nil && p.Connected == connected {
			return errUnchanged
		}
		if err := t.sess.SetConnected(playerID, connected); err != nil {
			return err
		}
		t.emit(events.PlayerConnection, playerID)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return r.Get(ctx, code)
	}
	return snap, err
}

var errUnchanged = errors.New("unchanged")

// Get returns a snapshot of the room.
func (r *Registry) Get(ctx context.Context, code string) (*game.Session, error) {
	return r.store.Load(ctx, NormalizeCode(code))
}

// RoomOf returns the code of the room playerID belongs to.
func (r *Registry) RoomOf(ctx context.Context, playerID uuid.UUID) (string, error) {
	return r.store.PlayerRoom(ctx, playerID)
}
