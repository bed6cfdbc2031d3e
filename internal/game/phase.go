package game

import "fmt"

// Phase is the session's position in the round lifecycle.
type Phase uint8

const (
	PhaseWaiting Phase = iota
	PhaseBetting
	PhasePlayerTurn
	PhaseDealerTurn
	PhaseResult
)

var phaseNames = [...]string{
	PhaseWaiting:    "waiting",
	PhaseBetting:    "betting",
	PhasePlayerTurn: "playerTurn",
	PhaseDealerTurn: "dealerTurn",
	PhaseResult:     "result",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// InRound reports whether a round is underway, i.e. the session has left the lobby.
func (p Phase) InRound() bool {
	return p != PhaseWaiting
}

func (p Phase) MarshalText() ([]byte, error) {
	if int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("unknown phase %d", uint8(p))
	}
	return []byte(phaseNames[p]), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(b))
}
