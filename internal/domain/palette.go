package domain

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Default classification colors (ACI).
const (
	DefaultDeletedColor   = 6
	DefaultAddedColor     = 4
	DefaultUnchangedColor = 7
)

// PaletteEntry describes one selectable ACI color.
type PaletteEntry struct {
	Index int
	Name  string
	Color colorful.Color
}

// Hex returns the "#rrggbb" form of the entry.
func (p PaletteEntry) Hex() string {
	return p.Color.Hex()
}

// TextHex returns black or white, whichever reads better on the entry's color.
func (p PaletteEntry) TextHex() string {
	if l, _, _ := p.Color.Lab(); l < 0.65 {
		return "#ffffff"
	}
	return "#000000"
}

// Tint lightens the entry toward white in Lab space; 0 keeps the color and 1 is white.
func (p PaletteEntry) Tint(amount float64) string {
	return tint(p.Color, amount)
}

func tint(c colorful.Color, amount float64) string {
	white := colorful.Color{R: 1, G: 1, B: 1}
	return c.BlendLab(white, amount).Clamped().Hex()
}

// Label returns the "4 - cyan" style caption used in reports.
func (p PaletteEntry) Label() string {
	return fmt.Sprintf("%d - %s", p.Index, p.Name)
}

// Palette is the fixed 7-entry ACI palette offered for classification colors.
var Palette = []PaletteEntry{
	{Index: 1, Name: "red", Color: colorful.Color{R: 1, G: 0, B: 0}},
	{Index: 2, Name: "yellow", Color: colorful.Color{R: 1, G: 1, B: 0}},
	{Index: 3, Name: "green", Color: colorful.Color{R: 0, G: 1, B: 0}},
	{Index: 4, Name: "cyan", Color: colorful.Color{R: 0, G: 1, B: 1}},
	{Index: 5, Name: "blue", Color: colorful.Color{R: 0, G: 0, B: 1}},
	{Index: 6, Name: "magenta", Color: colorful.Color{R: 1, G: 0, B: 1}},
	{Index: 7, Name: "white/black", Color: colorful.Color{R: 1, G: 1, B: 1}},
}

// PaletteColor returns the palette entry for an ACI index.
func PaletteColor(index int) (PaletteEntry, bool) {
	if !ValidColor(index) {
		return PaletteEntry{}, false
	}
	return Palette[index-1], true
}

// ValidColor reports whether index is one of the selectable palette entries.
func ValidColor(index int) bool {
	return index >= 1 && index <= len(Palette)
}

// Colors holds the three classification colors of a comparison.
type Colors struct {
	Deleted   int `json:"deleted" yaml:"deleted"`
	Added     int `json:"added" yaml:"added"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
}

// DefaultColors returns magenta / cyan / white.
func DefaultColors() Colors {
	return Colors{Deleted: DefaultDeletedColor, Added: DefaultAddedColor, Unchanged: DefaultUnchangedColor}
}

// Validate checks that every color is a palette index, in deleted, added, unchanged order.
func (c Colors) Validate() error {
	for _, field := range []struct {
		name  string
		value int
	}{{"deleted", c.Deleted}, {"added", c.Added}, {"unchanged", c.Unchanged}} {
		if !ValidColor(field.value) {
			return fmt.Errorf("%w: %s color %d outside 1..%d", ErrInvalidColor, field.name, field.value, len(Palette))
		}
	}
	return nil
}

// Highlight returns a light row fill for a changed label: a tint of the added color for added
// labels, of the deleted color for removed ones, and of their Lab midpoint for modified ones.
// Invalid colors yield an empty string.
func (c Colors) Highlight(kind ChangeKind) string {
	deleted, okDeleted := PaletteColor(c.Deleted)
	added, okAdded := PaletteColor(c.Added)
	if !okDeleted || !okAdded {
		return ""
	}
	switch kind {
	case ChangeAdded:
		return added.Tint(HighlightTint)
	case ChangeRemoved:
		return deleted.Tint(HighlightTint)
	default:
		return tint(deleted.Color.BlendLab(added.Color, 0.5), HighlightTint)
	}
}

// HighlightTint is how far changed-label fills are lightened toward white.
const HighlightTint = 0.7
