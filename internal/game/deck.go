package game

import "math/rand/v2"

// Card is a value between 1 and 10. Cards carry no identity beyond their value.
type Card int

const (
	MinCardValue   = 1
	MaxCardValue   = 10
	copiesPerValue = 4

	// DeckSize is the number of cards in a full deck.
	DeckSize = (MaxCardValue - MinCardValue + 1) * copiesPerValue
)

// Valid reports whether c is within the 1..10 range.
func (c Card) Valid() bool {
	return c >= MinCardValue && c <= MaxCardValue
}

// Shuffler picks a uniform index in [0, n). *rand.Rand satisfies it.
type Shuffler interface {
	IntN(n int) int
}

type globalShuffler struct{}

func (globalShuffler) IntN(n int) int { return rand.IntN(n) }

// Deck is the undrawn portion of a 40-card deck. Cards are drawn from the end of Cards.
type Deck struct {
	Cards []Card `json:"cards"`
}

// NewDeck returns a freshly built and shuffled deck.
func NewDeck(r Shuffler) Deck {
	var d Deck
	d.Reset(r)
	return d
}

// Reset rebuilds the four copies of each value and shuffles them with Fisher-Yates.
// A nil Shuffler uses the process-wide source.
func (d *Deck) Reset(r Shuffler) {
	if r == nil {
		r = globalShuffler{}
	}
	cards := make([]Card, 0, DeckSize)
	for v := MinCardValue; v <= MaxCardValue; v++ {
		for i := 0; i < copiesPerValue; i++ {
			cards = append(cards, Card(v))
		}
	}
	for i := len(cards) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
	d.Cards = cards
}

// Draw removes and returns the top card. ok is false when the deck is exhausted.
func (d *Deck) Draw() (c Card, ok bool) {
	n := len(d.Cards)
	if n == 0 {
		return 0, false
	}
	c = d.Cards[n-1]
	d.Cards = d.Cards[:n-1]
	return c, true
}

// Remaining is the number of undrawn cards.
func (d *Deck) Remaining() int {
	return len(d.Cards)
}

// IsEmpty reports whether every card has been drawn.
func (d *Deck) IsEmpty() bool {
	return len(d.Cards) == 0
}

func (d Deck) clone() Deck {
	cards := make([]Card, len(d.Cards))
	copy(cards, d.Cards)
	return Deck{Cards: cards}
}
