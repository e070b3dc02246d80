package board

import "mural-api/domain"

// previewOver applies the visual preview for a drag-over event: a
// cross-column hover splices the active card into the hovered column at the
// hovered card's index (append when the hover target is a column or has
// vanished). Same-column hovers and unresolvable ids change nothing. Orders
// are deliberately not renumbered; nothing here is committed.
func previewOver(s Snapshot, activeID, overID string) (Snapshot, bool) {
	if activeID == "" || overID == "" {
		return s, false
	}
	srcIdx := s.columnOfCard(activeID)
	dstIdx := s.columnIndex(overID)
	if dstIdx < 0 {
		dstIdx = s.columnOfCard(overID)
	}
	if srcIdx < 0 || dstIdx < 0 || srcIdx == dstIdx {
		return s, false
	}

	next := s.Clone()
	src := &next[srcIdx]
	dst := &next[dstIdx]

	ai := cardIndex(src.Cards, activeID)
	moved := src.Cards[ai]
	src.Cards = removeAt(src.Cards, ai)

	moved.ColumnID = dst.ID
	insert := cardIndex(dst.Cards, overID)
	if insert < 0 {
		insert = len(dst.Cards)
	}
	dst.Cards = insertAt(dst.Cards, insert, moved)
	return next, true
}

// commitDrag resolves the final placement for a drag-end event against the
// snapshot as it stands at commit time, which already reflects any previews.
// It returns the new snapshot and the cards whose positions must be
// persisted: the whole affected column for a same-column move, both columns
// for a transfer. Unresolvable ids are a silent no-op.
func commitDrag(s Snapshot, activeID, overID string) (Snapshot, []domain.Card, bool) {
	srcIdx := s.columnOfCard(activeID)
	dstIdx := s.columnIndex(overID)
	if dstIdx < 0 {
		dstIdx = s.columnOfCard(overID)
	}
	if srcIdx < 0 || dstIdx < 0 {
		return s, nil, false
	}

	next := s.Clone()
	src := &next[srcIdx]
	ai := cardIndex(src.Cards, activeID)

	if srcIdx == dstIdx {
		di := cardIndex(src.Cards, overID)
		if di < 0 {
			di = len(src.Cards) - 1
		}
		src.Cards = moveCard(src.Cards, ai, di)
		renumber(src.Cards)
		persist := make([]domain.Card, len(src.Cards))
		copy(persist, src.Cards)
		return next, persist, true
	}

	dst := &next[dstIdx]
	moved := src.Cards[ai]
	src.Cards = removeAt(src.Cards, ai)

	di := cardIndex(dst.Cards, overID)
	if di < 0 {
		di = len(dst.Cards)
	}
	moved.ColumnID = dst.ID
	dst.Cards = insertAt(dst.Cards, di, moved)

	renumber(src.Cards)
	renumber(dst.Cards)

	persist := make([]domain.Card, 0, len(src.Cards)+len(dst.Cards))
	persist = append(persist, src.Cards...)
	persist = append(persist, dst.Cards...)
	return next, persist, true
}
