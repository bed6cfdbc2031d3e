package game

import (
	"github.com/google/uuid"
)

// StartGame begins the first round. Only the host may start, from waiting, with enough players.
// The dealer is the player at the remembered rotation index (players[0] for a new room).
func (s *Session) StartGame(actor uuid.UUID) error {
	const op = "start_game"
	if s.Phase != PhaseWaiting {
		return reject(op, ErrInvalidPhase, "phase is %s", s.Phase)
	}
	if s.indexOf(actor) < 0 {
		return reject(op, ErrNotFound, "player %s", actor)
	}
	if actor != s.HostID {
		return reject(op, ErrUnauthorized, "only the host can start the game")
	}
	if len(s.Players) < MinPlayers {
		return reject(op, ErrInvalidPhase, "need at least %d players, have %d", MinPlayers, len(s.Players))
	}

	s.setDealer(s.DealerIndex % len(s.Players))
	s.beginRound(1)
	return nil
}

// NextRound rotates the dealer to the next player in session order and opens betting.
func (s *Session) NextRound() error {
	const op = "next_round"
	if s.Phase != PhaseResult {
		return reject(op, ErrInvalidPhase, "phase is %s", s.Phase)
	}
	s.setDealer((s.DealerIndex + 1) % len(s.Players))
	s.beginRound(s.Round + 1)
	return nil
}

func (s *Session) beginRound(round int) {
	s.Deck.Reset(s.shuffler)
	s.States = make([]*RoundPlayerState, len(s.Players))
	for i, p := range s.Players {
		s.States[i] = newRoundPlayerState(p.ID)
	}
	s.FieldCard = nil
	s.TurnID = uuid.Nil
	s.TurnIndex = s.DealerIndex
	s.LastSettlement = nil
	s.Round = round
	s.Phase = PhaseBetting
}

// PlaceBet records a non-dealer's stake. Once every non-dealer has bet, the cards are
// dealt and the first player's turn begins; dealt reports whether that happened.
func (s *Session) PlaceBet(actor uuid.UUID, amount int) (dealt bool, err error) {
	const op = "place_bet"
	if s.Phase != PhaseBetting {
		return false, reject(op, ErrInvalidPhase, "phase is %s", s.Phase)
	}
	idx := s.indexOf(actor)
	if idx < 0 {
		return false, reject(op, ErrNotFound, "player %s", actor)
	}
	if actor == s.DealerID {
		return false, reject(op, ErrUnauthorized, "the dealer does not bet")
	}
	if chips := s.Players[idx].Chips; amount < 1 || amount > chips {
		return false, reject(op, ErrInvalidAmount, "bet %d outside 1..%d", amount, chips)
	}
	if need := 1 + dealtHandSize*len(s.States); s.Deck.Remaining() < need {
		return false, reject(op, ErrInvariant, "deck has %d cards, dealing needs %d", s.Deck.Remaining(), need)
	}

	s.States[idx].Bet = amount
	if !s.allBetsPlaced() {
		return false, nil
	}
	if err := s.deal(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) allBetsPlaced() bool {
	for i, st := range s.States {
		if i != s.DealerIndex && st.Bet <= 0 {
			return false
		}
	}
	return true
}

// deal reveals the field card then gives every player, dealer included, two cards in session order.
func (s *Session) deal() error {
	field, ok := s.Deck.Draw()
	if !ok {
		return reject("deal", ErrInvariant, "deck exhausted")
	}
	s.FieldCard = &field
	for _, st := range s.States {
		for n := 0; n < dealtHandSize; n++ {
			c, ok := s.Deck.Draw()
			if !ok {
				return reject("deal", ErrInvariant, "deck exhausted")
			}
			st.addCard(c)
		}
	}
	s.Phase = PhasePlayerTurn
	s.passTurnFrom(0)
	return nil
}

// passTurnFrom hands the turn to the first non-dealer, non-standing player at or after
// start in session order, wrapping around. With nobody left, the dealer's turn begins.
func (s *Session) passTurnFrom(start int) {
	n := len(s.States)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == s.DealerIndex || s.States[idx].Stand {
			continue
		}
		s.TurnIndex = idx
		s.TurnID = s.States[idx].PlayerID
		return
	}
	s.Phase = PhaseDealerTurn
	s.TurnIndex = s.DealerIndex
	s.TurnID = s.DealerID
}

func (s *Session) requireTurn(op string, actor uuid.UUID) (*RoundPlayerState, error) {
	if s.Phase != PhasePlayerTurn {
		return nil, reject(op, ErrInvalidPhase, "phase is %s", s.Phase)
	}
	if s.indexOf(actor) < 0 {
		return nil, reject(op, ErrNotFound, "player %s", actor)
	}
	if actor != s.TurnID {
		return nil, reject(op, ErrInvalidTurn, "it is not %s's turn", actor)
	}
	st := s.States[s.TurnIndex]
	if st.Stand {
		return nil, reject(op, ErrInvalidTurn, "player already stands")
	}
	return st, nil
}

// DrawCard gives the player on turn one more card. Reaching three cards forces a stand;
// the caller is then expected to advance the turn.
func (s *Session) DrawCard(actor uuid.UUID) (Card, error) {
	const op = "draw_card"
	st, err := s.requireTurn(op, actor)
	if err != nil {
		return 0, err
	}
	if len(st.Hand) >= maxHandSize {
		return 0, reject(op, ErrInvalidTurn, "hand already holds %d cards", maxHandSize)
	}
	c, ok := s.Deck.Draw()
	if !ok {
		return 0, reject(op, ErrInvariant, "deck exhausted")
	}
	st.addCard(c)
	return c, nil
}

// Stand ends the drawing for the player on turn. The caller is expected to advance the turn.
func (s *Session) Stand(actor uuid.UUID) error {
	st, err := s.requireTurn("stand", actor)
	if err != nil {
		return err
	}
	st.Stand = true
	return nil
}

// AdvanceTurn moves play forward after a stand. During the player phase it passes the
// turn to the next non-standing player, or to the dealer once everyone stands; it is a
// no-op while the current player may still act. During the dealer phase it plays the
// dealer's fixed policy and settles the round, returning the settlement.
func (s *Session) AdvanceTurn() (*Settlement, error) {
	const op = "advance_turn"
	switch s.Phase {
	case PhasePlayerTurn:
		if !s.States[s.TurnIndex].Stand {
			return nil, nil
		}
		s.passTurnFrom(s.TurnIndex + 1)
		return nil, nil

	case PhaseDealerTurn:
		if s.FieldCard == nil {
			return nil, reject(op, ErrInvariant, "no field card before settlement")
		}
		dealer := s.States[s.DealerIndex]
		if dealer.Total <= dealerDrawThreshold && len(dealer.Hand) < maxHandSize {
			c, ok := s.Deck.Draw()
			if !ok {
				return nil, reject(op, ErrInvariant, "deck exhausted")
			}
			dealer.addCard(c)
		}
		dealer.Stand = true
		s.Phase = PhaseResult
		s.TurnID = uuid.Nil
		settlement := s.settle()
		s.LastSettlement = settlement
		return settlement, nil

	default:
		return nil, reject(op, ErrInvalidPhase, "phase is %s", s.Phase)
	}
}

// ResetStats restores every player's chips and cumulative result and resets the round
// counter. Phase and hands are left as they are.
func (s *Session) ResetStats(actor uuid.UUID) error {
	const op = "reset_stats"
	if s.indexOf(actor) < 0 {
		return reject(op, ErrNotFound, "player %s", actor)
	}
	if actor != s.HostID {
		return reject(op, ErrUnauthorized, "only the host can reset stats")
	}
	for _, p := range s.Players {
		p.ResetStats()
	}
	s.Round = 1
	return nil
}
