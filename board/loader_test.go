package board

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"mural-api/domain"
)

type fakeReader struct {
	columns    []domain.Column
	cards      []domain.Card
	columnsErr error
	cardsErr   error

	lastScopeTag string
}

func (f *fakeReader) FetchColumns(ctx context.Context) ([]domain.Column, error) {
	if f.columnsErr != nil {
		return nil, f.columnsErr
	}
	return f.columns, nil
}

func (f *fakeReader) FetchCards(ctx context.Context, scopeTag string) ([]domain.Card, error) {
	f.lastScopeTag = scopeTag
	if f.cardsErr != nil {
		return nil, f.cardsErr
	}
	return f.cards, nil
}

func TestLoadGroupsAndSortsCards(t *testing.T) {
	r := &fakeReader{
		columns: []domain.Column{
			{ID: "col-todo", Title: "To Do", Order: 0},
			{ID: "col-doing", Title: "Doing", Order: 1},
			{ID: "col-done", Title: "Done", Order: 2},
		},
		cards: []domain.Card{
			{ID: "c", Order: 2, ColumnID: "col-todo"},
			{ID: "d", Order: 0, ColumnID: "col-doing"},
			{ID: "a", Order: 0, ColumnID: "col-todo"},
			{ID: "b", Order: 1, ColumnID: "col-todo"},
		},
	}

	s, err := Load(context.Background(), r, "marketing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.lastScopeTag != "marketing" {
		t.Fatalf("scope tag = %q, want marketing", r.lastScopeTag)
	}

	assertIDs(t, s[0].Cards, "a", "b", "c")
	assertIDs(t, s[1].Cards, "d")

	if s[2].Cards == nil {
		t.Fatal("empty column must carry an empty slice, not nil")
	}
	if len(s[2].Cards) != 0 {
		t.Fatalf("empty column has %d cards", len(s[2].Cards))
	}
}

func TestLoadDropsOrphanCards(t *testing.T) {
	r := &fakeReader{
		columns: []domain.Column{{ID: "col-todo"}},
		cards: []domain.Card{
			{ID: "a", ColumnID: "col-todo"},
			{ID: "ghost", ColumnID: "col-deleted"},
		},
	}

	s, err := Load(context.Background(), r, "tag")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertIDs(t, s[0].Cards, "a")
	if set := boardCardSet(s); set["ghost"] != 0 {
		t.Fatal("orphan card leaked into the snapshot")
	}
}

func TestLoadTwiceYieldsEqualSnapshots(t *testing.T) {
	r := &fakeReader{
		columns: []domain.Column{
			{ID: "col-todo", Title: "To Do", Order: 0},
			{ID: "col-doing", Title: "Doing", Order: 1},
		},
		cards: []domain.Card{
			{ID: "b", Order: 1, ColumnID: "col-todo"},
			{ID: "a", Order: 0, ColumnID: "col-todo"},
			{ID: "c", Order: 0, ColumnID: "col-doing"},
		},
	}

	first, err := Load(context.Background(), r, "ops")
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	second, err := Load(context.Background(), r, "ops")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("loads diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestLoadPropagatesErrors(t *testing.T) {
	columnsErr := errors.New("tables down")
	cardsErr := errors.New("partition gone")

	if _, err := Load(context.Background(), &fakeReader{columnsErr: columnsErr}, "tag"); !errors.Is(err, columnsErr) {
		t.Fatalf("columns error not propagated: %v", err)
	}
	if _, err := Load(context.Background(), &fakeReader{cardsErr: cardsErr}, "tag"); !errors.Is(err, cardsErr) {
		t.Fatalf("cards error not propagated: %v", err)
	}
}
