package domain

// Column is one lane of the board. Columns are seeded externally; the board
// core only ever rewrites the embedded card list.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Order int    `json:"order"`
	Cards []Card `json:"cards"`
}
