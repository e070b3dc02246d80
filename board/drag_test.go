package board

import (
	"testing"

	"mural-api/domain"
)

func cardIDs(cards []domain.Card) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}

func assertIDs(t *testing.T, got []domain.Card, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("cards = %v, want %v", cardIDs(got), want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("cards = %v, want %v", cardIDs(got), want)
		}
	}
}

func assertContiguous(t *testing.T, cards []domain.Card, columnID string) {
	t.Helper()
	for i, card := range cards {
		if card.Order != i {
			t.Fatalf("card %s has order %d, want %d", card.ID, card.Order, i)
		}
		if card.ColumnID != columnID {
			t.Fatalf("card %s has column %q, want %q", card.ID, card.ColumnID, columnID)
		}
	}
}

func boardCardSet(s Snapshot) map[string]int {
	set := make(map[string]int)
	for _, col := range s {
		for _, card := range col.Cards {
			set[card.ID]++
		}
	}
	return set
}

func TestPreviewOverCrossColumn(t *testing.T) {
	s := testBoard()

	next, ok := previewOver(s, "a", "d")
	if !ok {
		t.Fatal("expected a cross-column preview")
	}
	assertIDs(t, next[0].Cards, "b", "c")
	assertIDs(t, next[1].Cards, "a", "d")

	if next[1].Cards[0].ColumnID != "col-doing" {
		t.Fatalf("previewed card column = %q, want col-doing", next[1].Cards[0].ColumnID)
	}
	// Previews never renumber; persisted orders stay as they were.
	if next[1].Cards[0].Order != 0 || next[1].Cards[1].Order != 0 {
		t.Fatalf("preview renumbered: %+v", next[1].Cards)
	}
	// The input snapshot is untouched.
	assertIDs(t, s[0].Cards, "a", "b", "c")
}

func TestPreviewOverColumnTarget(t *testing.T) {
	s := testBoard()

	next, ok := previewOver(s, "b", "col-done")
	if !ok {
		t.Fatal("expected a preview into the empty column")
	}
	assertIDs(t, next[2].Cards, "b")
}

func TestPreviewOverNoOps(t *testing.T) {
	s := testBoard()

	cases := []struct {
		name     string
		activeID string
		overID   string
	}{
		{"same column", "a", "b"},
		{"own column id", "a", "col-todo"},
		{"unknown active", "nope", "d"},
		{"unknown target", "a", "nope"},
		{"empty active", "", "d"},
		{"empty target", "a", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := previewOver(s, tc.activeID, tc.overID); ok {
				t.Fatal("expected a no-op")
			}
		})
	}
}

func TestCommitDragSameColumn(t *testing.T) {
	s := testBoard()

	next, persist, ok := commitDrag(s, "a", "c")
	if !ok {
		t.Fatal("expected a committed move")
	}
	assertIDs(t, next[0].Cards, "b", "c", "a")
	assertContiguous(t, next[0].Cards, "col-todo")
	assertIDs(t, persist, "b", "c", "a")
}

func TestCommitDragCrossColumn(t *testing.T) {
	s := testBoard()

	next, persist, ok := commitDrag(s, "a", "d")
	if !ok {
		t.Fatal("expected a committed transfer")
	}
	assertIDs(t, next[0].Cards, "b", "c")
	assertIDs(t, next[1].Cards, "a", "d")
	assertContiguous(t, next[0].Cards, "col-todo")
	assertContiguous(t, next[1].Cards, "col-doing")

	// Both columns persist: the shrunken source and the grown destination.
	assertIDs(t, persist, "b", "c", "a", "d")

	// The move never loses or duplicates cards.
	set := boardCardSet(next)
	for _, id := range []string{"a", "b", "c", "d"} {
		if set[id] != 1 {
			t.Fatalf("card %s appears %d times", id, set[id])
		}
	}
}

func TestCommitDragIntoEmptyColumn(t *testing.T) {
	s := testBoard()

	next, persist, ok := commitDrag(s, "b", "col-done")
	if !ok {
		t.Fatal("expected a committed transfer")
	}
	assertIDs(t, next[2].Cards, "b")
	assertContiguous(t, next[2].Cards, "col-done")
	assertIDs(t, persist, "a", "c", "b")
}

func TestCommitDragSelfDropStillRenumbers(t *testing.T) {
	s := testBoard()
	// Orders arrive non-contiguous; dropping a card on itself must repair them.
	s[0].Cards[0].Order = 3
	s[0].Cards[1].Order = 7

	next, persist, ok := commitDrag(s, "b", "b")
	if !ok {
		t.Fatal("expected a commit")
	}
	assertIDs(t, next[0].Cards, "a", "b", "c")
	assertContiguous(t, next[0].Cards, "col-todo")
	assertIDs(t, persist, "a", "b", "c")
}

func TestCommitDragMissingTargetFallsBackToEnd(t *testing.T) {
	s := testBoard()
	// A preview already spliced "a" into Doing; the hovered card vanished
	// before the drop, so the commit resolves against the preview state.
	previewed, ok := previewOver(s, "a", "d")
	if !ok {
		t.Fatal("preview should apply")
	}
	previewed[1].Cards = removeAt(previewed[1].Cards, 1) // "d" is gone

	next, persist, ok := commitDrag(previewed, "a", "col-doing")
	if !ok {
		t.Fatal("expected a commit")
	}
	assertIDs(t, next[1].Cards, "a")
	assertContiguous(t, next[1].Cards, "col-doing")
	assertIDs(t, persist, "a")
}

func BenchmarkCommitDragCrossColumn(b *testing.B) {
	s := testBoard()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, ok := commitDrag(s, "a", "d"); !ok {
			b.Fatal("commit failed")
		}
	}
}

func TestCommitDragUnresolvableIsNoOp(t *testing.T) {
	s := testBoard()

	if _, _, ok := commitDrag(s, "nope", "d"); ok {
		t.Fatal("unknown active card must not commit")
	}
	if _, _, ok := commitDrag(s, "a", "nope"); ok {
		t.Fatal("unknown target must not commit")
	}
}
