package board

import "mural-api/domain"

// Snapshot is one immutable-in-effect view of the board. Mutations always
// clone before touching anything, so a snapshot handed to a reader is never
// spliced under it.
type Snapshot []domain.Column

// Clone deep-copies the snapshot including every column's card slice.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for i, col := range s {
		cards := make([]domain.Card, len(col.Cards))
		copy(cards, col.Cards)
		col.Cards = cards
		out[i] = col
	}
	return out
}

// columnIndex returns the position of the column with the given id, or -1.
func (s Snapshot) columnIndex(columnID string) int {
	for i := range s {
		if s[i].ID == columnID {
			return i
		}
	}
	return -1
}

// columnOfCard returns the position of the column currently holding the card,
// or -1. Membership is the source of truth, not the card's ColumnID field,
// because previews move cards between columns without persisting.
func (s Snapshot) columnOfCard(cardID string) int {
	for i := range s {
		if cardIndex(s[i].Cards, cardID) >= 0 {
			return i
		}
	}
	return -1
}

func cardIndex(cards []domain.Card, cardID string) int {
	for i := range cards {
		if cards[i].ID == cardID {
			return i
		}
	}
	return -1
}

func removeAt(cards []domain.Card, i int) []domain.Card {
	out := make([]domain.Card, 0, len(cards)-1)
	out = append(out, cards[:i]...)
	return append(out, cards[i+1:]...)
}

func insertAt(cards []domain.Card, i int, card domain.Card) []domain.Card {
	out := make([]domain.Card, 0, len(cards)+1)
	out = append(out, cards[:i]...)
	out = append(out, card)
	return append(out, cards[i:]...)
}

// moveCard relocates the card at from to to with remove-then-insert
// semantics; the surrounding cards keep their relative order.
func moveCard(cards []domain.Card, from, to int) []domain.Card {
	if from == to {
		out := make([]domain.Card, len(cards))
		copy(out, cards)
		return out
	}
	moved := cards[from]
	out := removeAt(cards, from)
	return insertAt(out, to, moved)
}

// renumber restores the contiguous zero-based order invariant for one
// column's cards, in their current relative order.
func renumber(cards []domain.Card) {
	for i := range cards {
		cards[i].Order = i
	}
}
