package domain

// Gesture kinds accepted by the drag reconciler.
const (
	GestureStart = "drag-start"
	GestureOver  = "drag-over"
	GestureEnd   = "drag-end"
)

// Gesture is a single drag event. ActiveID is the card being dragged; OverID
// is the card or column currently under the pointer and may be empty on
// drag-end when the drop happened outside any target.
type Gesture struct {
	Type     string `json:"type"`
	ActiveID string `json:"activeId"`
	OverID   string `json:"overId,omitempty"`
}

// Known returns whether the gesture type is one the reconciler understands.
func (g Gesture) Known() bool {
	switch g.Type {
	case GestureStart, GestureOver, GestureEnd:
		return true
	}
	return false
}
