package game

import "fmt"

// Role is a special hand combination. RoleNone is the zero value and means no role.
type Role uint8

const (
	RoleNone Role = iota
	RoleKabu
	RoleShippin
	RoleKuppin
	RoleArashi
)

var roleNames = map[Role]string{
	RoleNone:    "",
	RoleKabu:    "kabu",
	RoleShippin: "shippin",
	RoleKuppin:  "kuppin",
	RoleArashi:  "arashi",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		if name == "" {
			return "none"
		}
		return name
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Priority orders roles for comparison; a higher priority wins outright.
func (r Role) Priority() int {
	switch r {
	case RoleArashi:
		return 3
	case RoleShippin, RoleKuppin:
		return 2
	case RoleKabu:
		return 1
	default:
		return 0
	}
}

// Multiplier scales the bet when this role decides a payout.
func (r Role) Multiplier() int {
	switch r {
	case RoleArashi:
		return 3
	case RoleShippin, RoleKuppin:
		return 2
	default:
		return 1
	}
}

func (r Role) MarshalText() ([]byte, error) {
	name, ok := roleNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown role %d", uint8(r))
	}
	return []byte(name), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	for role, name := range roleNames {
		if name == string(b) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", string(b))
}

// HandTotal is the sum of the hand modulo 10.
func HandTotal(hand []Card) int {
	sum := 0
	for _, c := range hand {
		sum += int(c)
	}
	return sum % 10
}

// EvaluateRole returns the role held by hand given the shared field card.
// The first matching rule wins: arashi, shippin, kuppin, kabu.
func EvaluateRole(hand []Card, field Card) Role {
	if len(hand) == 3 && hand[0] == hand[1] && hand[1] == hand[2] {
		return RoleArashi
	}
	if len(hand) == 2 && hand[0] == 1 {
		switch field {
		case 4:
			return RoleShippin
		case 9:
			return RoleKuppin
		}
	}
	if HandTotal(hand) == 9 {
		return RoleKabu
	}
	return RoleNone
}

// Outcome is a challenger's result against the dealer.
type Outcome int

const (
	OutcomeDraw Outcome = iota
	OutcomeWin
	OutcomeLose
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLose:
		return "lose"
	default:
		return "draw"
	}
}

// Hand is the comparable part of a player's round: role first, then total.
type Hand struct {
	Role  Role
	Total int
}

// Compare decides the challenger's outcome against the dealer.
func Compare(challenger, dealer Hand) Outcome {
	cp, dp := challenger.Role.Priority(), dealer.Role.Priority()
	switch {
	case cp > dp:
		return OutcomeWin
	case cp < dp:
		return OutcomeLose
	case challenger.Total > dealer.Total:
		return OutcomeWin
	case challenger.Total < dealer.Total:
		return OutcomeLose
	default:
		return OutcomeDraw
	}
}
