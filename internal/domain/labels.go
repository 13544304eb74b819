package domain

// LabelRecord is a text label with its position, tagged with the drawing it came from.
type LabelRecord struct {
	Text     string `json:"text"`
	Position Vector `json:"position"`
	Source   string `json:"source"`
}

// ChangeKind classifies a changed-label row.
type ChangeKind string

const (
	ChangeModified ChangeKind = "modified"
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
)

// ChangeRow pairs an old label with its new counterpart. Added rows carry no old side and
// removed rows carry no new side.
type ChangeRow struct {
	Kind        ChangeKind `json:"kind"`
	OldText     string     `json:"oldText,omitempty"`
	OldPosition *Vector    `json:"oldPosition,omitempty"`
	NewText     string     `json:"newText,omitempty"`
	NewPosition *Vector    `json:"newPosition,omitempty"`
}

// LabelCount aggregates unchanged labels by content.
type LabelCount struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// LabelInfo holds the title block values extracted from a drawing. Absent fields are nil.
type LabelInfo struct {
	MainDrawingNumber   *string `json:"mainDrawingNumber,omitempty"`
	SourceDrawingNumber *string `json:"sourceDrawingNumber,omitempty"`
	Title               *string `json:"title,omitempty"`
	Subtitle            *string `json:"subtitle,omitempty"`
}

// Value dereferences an optional field, returning "" when absent.
func Value(field *string) string {
	if field == nil {
		return ""
	}
	return *field
}
