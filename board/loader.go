package board

import (
	"context"
	"fmt"
	"sort"

	"mural-api/domain"
)

// Reader is the read-only slice of Store the loader needs.
type Reader interface {
	FetchColumns(ctx context.Context) ([]domain.Column, error)
	FetchCards(ctx context.Context, scopeTag string) ([]domain.Card, error)
}

// Load fetches the full board for one scope tag: all columns ordered
// ascending, their cards joined in and re-sorted by order. Either fetch
// failing propagates; no partial board is ever returned.
func Load(ctx context.Context, r Reader, scopeTag string) (Snapshot, error) {
	columns, err := r.FetchColumns(ctx)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	cards, err := r.FetchCards(ctx, scopeTag)
	if err != nil {
		return nil, fmt.Errorf("load cards for %q: %w", scopeTag, err)
	}

	byColumn := make(map[string][]domain.Card)
	for _, card := range cards {
		byColumn[card.ColumnID] = append(byColumn[card.ColumnID], card)
	}

	snapshot := make(Snapshot, len(columns))
	for i, col := range columns {
		cs := byColumn[col.ID]
		if cs == nil {
			cs = []domain.Card{}
		}
		// Grouping must not be trusted to preserve store ordering.
		sort.SliceStable(cs, func(a, b int) bool { return cs[a].Order < cs[b].Order })
		col.Cards = cs
		snapshot[i] = col
	}
	return snapshot, nil
}
