// Package pairing decides which uploaded drawings are compared with which.
package pairing

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// Status tells whether a pair can be compared.
type Status string

const (
	// StatusComplete means both drawings of the pair are available.
	StatusComplete Status = "complete"
	// StatusMissingSource means the new drawing names a source drawing that was not uploaded.
	StatusMissingSource Status = "missing_source"
	// StatusNoSource means the drawing does not name a source drawing.
	StatusNoSource Status = "no_source_defined"
)

// FileInfo describes one inspected drawing file.
type FileInfo struct {
	Filename string           `json:"filename"`
	Path     string           `json:"-"`
	ID       string           `json:"id"`
	SourceID string           `json:"sourceId,omitempty"`
	Info     domain.LabelInfo `json:"info"`
	// Drawing is the parsed drawing when the file was inspected in this process.
	Drawing *domain.Drawing `json:"-"`
}

// NewFileInfo identifies a drawing from its extracted labels, falling back to the file name.
func NewFileInfo(filename, path string, info domain.LabelInfo) FileInfo {
	return FileInfo{
		Filename: filename,
		Path:     path,
		ID:       Identify(info, filename),
		SourceID: domain.Value(info.SourceDrawingNumber),
		Info:     info,
	}
}

// Pair is one (new, source) comparison candidate. Source is nil unless the status is complete.
type Pair struct {
	NewID    string          `json:"newDrawing"`
	SourceID string          `json:"sourceDrawing,omitempty"`
	Relation domain.Relation `json:"relation"`
	Status   Status          `json:"status"`
	New      *FileInfo       `json:"-"`
	Source   *FileInfo       `json:"-"`
}

// Ready reports whether the pair can be compared.
func (p Pair) Ready() bool {
	return p.Status == StatusComplete && p.New != nil && p.Source != nil
}

// Identify returns the drawing's main number, or the file name without extension when none was found.
func Identify(info domain.LabelInfo, filename string) string {
	if number := strings.TrimSpace(domain.Value(info.MainDrawingNumber)); number != "" {
		return number
	}
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SplitRevision separates a trailing revision letter, half-width A-Z or full-width Ａ-Ｚ, from the
// base identifier. The returned letter is half-width.
func SplitRevision(id string) (string, rune, bool) {
	runes := []rune(id)
	if len(runes) < 2 {
		return "", 0, false
	}
	last := runes[len(runes)-1]
	switch {
	case last >= 'A' && last <= 'Z':
	case last >= 'Ａ' && last <= 'Ｚ':
		last = 'A' + (last - 'Ａ')
	default:
		return "", 0, false
	}
	return string(runes[:len(runes)-1]), last, true
}

type revision struct {
	id     string
	letter rune
}

// GroupRevisions groups identifiers by base and pairs each revision with the one before it:
// A with B, B with C, and so on. Identifiers without a revision letter are ignored.
func GroupRevisions(ids []string) []Pair {
	groups := map[string][]revision{}
	for _, id := range ids {
		base, letter, ok := SplitRevision(id)
		if !ok {
			continue
		}
		groups[base] = append(groups[base], revision{id: id, letter: letter})
	}

	bases := make([]string, 0, len(groups))
	for base := range groups {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	var pairs []Pair
	for _, base := range bases {
		revisions := groups[base]
		sort.SliceStable(revisions, func(i, j int) bool {
			if revisions[i].letter != revisions[j].letter {
				return revisions[i].letter < revisions[j].letter
			}
			return revisions[i].id < revisions[j].id
		})
		for i := 1; i < len(revisions); i++ {
			older, newer := revisions[i-1], revisions[i]
			if older.letter == newer.letter {
				continue
			}
			pairs = append(pairs, Pair{
				NewID:    newer.id,
				SourceID: older.id,
				Relation: domain.RelationRevisionUp,
				Status:   StatusComplete,
			})
		}
	}
	return pairs
}

// BuildPairs lists a derived-from row for every drawing, with its status, followed by the
// revision-up pairs among the drawings that are not already covered by a derived-from pair.
// When two files share an identifier the first one is used.
func BuildPairs(files []FileInfo) []Pair {
	byID := map[string]*FileInfo{}
	var ids []string
	for i := range files {
		id := files[i].ID
		if _, exists := byID[id]; exists {
			continue
		}
		byID[id] = &files[i]
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs := make([]Pair, 0, len(ids))
	covered := map[[2]string]bool{}
	for _, id := range ids {
		file := byID[id]
		pair := Pair{NewID: id, SourceID: file.SourceID, Relation: domain.RelationDerivedFrom, New: file}
		switch source, ok := byID[file.SourceID]; {
		case file.SourceID == "":
			pair.Status = StatusNoSource
		case !ok:
			pair.Status = StatusMissingSource
		default:
			pair.Status = StatusComplete
			pair.Source = source
			covered[[2]string{id, file.SourceID}] = true
		}
		pairs = append(pairs, pair)
	}

	for _, pair := range GroupRevisions(ids) {
		if covered[[2]string{pair.NewID, pair.SourceID}] {
			continue
		}
		pair.New = byID[pair.NewID]
		pair.Source = byID[pair.SourceID]
		pairs = append(pairs, pair)
	}
	return pairs
}

// Ready filters the pairs that can be compared.
func Ready(pairs []Pair) []Pair {
	ready := make([]Pair, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Ready() {
			ready = append(ready, pair)
		}
	}
	return ready
}

// Relationships returns the parent/child rows of the complete derived-from pairs.
func Relationships(pairs []Pair) []domain.Relationship {
	var rows []domain.Relationship
	for _, pair := range pairs {
		if pair.Relation != domain.RelationDerivedFrom || pair.Status != StatusComplete {
			continue
		}
		rows = append(rows, domain.Relationship{Parent: pair.SourceID, Child: pair.NewID})
	}
	return rows
}
