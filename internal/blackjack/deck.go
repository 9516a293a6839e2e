package blackjack

import (
	"math/rand/v2"

	"github.com/wagerhouse/wager-engine/internal/model"
)

// deckSeedMix decorrelates the two PCG seed words.
const deckSeedMix = 0x9e3779b97f4a7c15

// newDeck builds a 52-card deck shuffled deterministically from the oracle
// seed. One seed is consumed per game start, not per card, to bound oracle
// calls; every draw for the game comes from this deck in order.
func newDeck(seed uint64) []model.PlayingCard {
	deck := make([]model.PlayingCard, 0, 52)
	for suit := uint8(0); suit < 4; suit++ {
		for rank := uint8(1); rank <= 13; rank++ {
			deck = append(deck, model.PlayingCard{Suit: suit, Rank: rank})
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^deckSeedMix))
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// cardValue returns the blackjack value of a card: aces count 11 here and
// are demoted to 1 by handTotal, face cards count 10.
func cardValue(c model.PlayingCard) int {
	switch {
	case c.Rank == 1:
		return 11
	case c.Rank >= 10:
		return 10
	default:
		return int(c.Rank)
	}
}

// handTotal returns the best blackjack total of a hand, demoting aces from
// 11 to 1 while the total busts.
func handTotal(hand []model.PlayingCard) int {
	total := 0
	aces := 0
	for _, c := range hand {
		v := cardValue(c)
		if c.Rank == 1 {
			aces++
		}
		total += v
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

// isNatural reports a two-card 21.
func isNatural(hand []model.PlayingCard) bool {
	return len(hand) == 2 && handTotal(hand) == 21
}
