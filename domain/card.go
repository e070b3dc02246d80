package domain

// Card is a single board item. Order is zero-based and contiguous within the
// owning column after every committed mutation.
type Card struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Order    int    `json:"order"`
	ColumnID string `json:"columnId"`
	ScopeTag string `json:"scopeTag"`
}
