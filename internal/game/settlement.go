package game

import "github.com/google/uuid"

// PlayerResult is one challenger's line in a round settlement.
type PlayerResult struct {
	PlayerID    uuid.UUID `json:"playerId"`
	Nickname    string    `json:"nickname"`
	Hand        []Card    `json:"hand"`
	HandTotal   int       `json:"handTotal"`
	Role        Role      `json:"role,omitempty"`
	Bet         int       `json:"bet"`
	RoundResult int       `json:"roundResult"`
	TotalResult int       `json:"totalResult"`
	Chips       int       `json:"chips"`
	IsWin       bool      `json:"isWin"`
	IsDraw      bool      `json:"isDraw"`
}

// Settlement is the outcome of a finished round. The dealer's result is always the
// negated sum of the challengers' results.
type Settlement struct {
	RoomCode          string         `json:"roomCode"`
	RoundNumber       int            `json:"roundNumber"`
	FieldCard         Card           `json:"fieldCard"`
	DealerID          uuid.UUID      `json:"dealerId"`
	DealerNickname    string         `json:"dealerNickname"`
	DealerHand        []Card         `json:"dealerHand"`
	DealerTotal       int            `json:"dealerTotal"`
	DealerRole        Role           `json:"dealerRole,omitempty"`
	DealerResult      int            `json:"dealerResult"`
	DealerTotalResult int            `json:"dealerTotalResult"`
	DealerChips       int            `json:"dealerChips"`
	PlayerResults     []PlayerResult `json:"playerResults"`
}

func (st *Settlement) clone() *Settlement {
	cp := *st
	cp.DealerHand = append([]Card(nil), st.DealerHand...)
	cp.PlayerResults = make([]PlayerResult, len(st.PlayerResults))
	for i, pr := range st.PlayerResults {
		pr.Hand = append([]Card(nil), pr.Hand...)
		cp.PlayerResults[i] = pr
	}
	return &cp
}

// Payout returns the challenger's round result for a given bet against the dealer.
// A win pays the challenger's own multiplier; a loss costs the dealer's multiplier.
func Payout(challenger, dealer Hand, bet int) (int, Outcome) {
	switch outcome := Compare(challenger, dealer); outcome {
	case OutcomeWin:
		return bet * challenger.Role.Multiplier(), outcome
	case OutcomeLose:
		return -bet * dealer.Role.Multiplier(), outcome
	default:
		return 0, outcome
	}
}

// settle evaluates every hand against the field card, pays out each challenger against
// the dealer and applies all results to chips and cumulative totals.
func (s *Session) settle() *Settlement {
	field := *s.FieldCard
	for _, st := range s.States {
		st.Role = EvaluateRole(st.Hand, field)
	}

	dealerState := s.States[s.DealerIndex]
	dealerHand := Hand{Role: dealerState.Role, Total: dealerState.Total}

	out := &Settlement{
		RoomCode:      s.Code,
		RoundNumber:   s.Round,
		FieldCard:     field,
		DealerID:      s.DealerID,
		DealerHand:    append([]Card(nil), dealerState.Hand...),
		DealerTotal:   dealerState.Total,
		DealerRole:    dealerState.Role,
		PlayerResults: make([]PlayerResult, 0, len(s.States)-1),
	}

	sum := 0
	for i, st := range s.States {
		if i == s.DealerIndex {
			continue
		}
		p := s.Players[i]
		result, outcome := Payout(Hand{Role: st.Role, Total: st.Total}, dealerHand, st.Bet)
		st.Result = result
		p.Chips += result
		p.TotalResult += result
		sum += result

		out.PlayerResults = append(out.PlayerResults, PlayerResult{
			PlayerID:    p.ID,
			Nickname:    p.Nickname,
			Hand:        append([]Card(nil), st.Hand...),
			HandTotal:   st.Total,
			Role:        st.Role,
			Bet:         st.Bet,
			RoundResult: result,
			TotalResult: p.TotalResult,
			Chips:       p.Chips,
			IsWin:       outcome == OutcomeWin,
			IsDraw:      outcome == OutcomeDraw,
		})
	}

	dealer := s.Players[s.DealerIndex]
	dealerState.Result = -sum
	dealer.Chips += dealerState.Result
	dealer.TotalResult += dealerState.Result

	out.DealerNickname = dealer.Nickname
	out.DealerResult = dealerState.Result
	out.DealerTotalResult = dealer.TotalResult
	out.DealerChips = dealer.Chips
	return out
}
