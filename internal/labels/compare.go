package labels

import (
	"sort"
	"strings"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// DefaultPairDistance is the distance within which an unmatched old label and an unmatched new
// label are reported as one modified row rather than a removal and an addition.
const DefaultPairDistance = 50

// DiffOptions configures DiffLabels.
type DiffOptions struct {
	// Tolerance is the largest position change of an unchanged label.
	Tolerance float64
	// PairDistance bounds the pairing of changed labels.
	PairDistance float64
}

// DefaultDiffOptions uses the default entity tolerance and pair distance.
func DefaultDiffOptions() DiffOptions {
	return DiffOptions{Tolerance: domain.DefaultTolerance, PairDistance: DefaultPairDistance}
}

// Records lists the text entities of a drawing as label records. Formatting codes are removed and
// empty texts are skipped. Block attributes are not included.
func Records(d *domain.Drawing) []domain.LabelRecord {
	if d == nil {
		return nil
	}
	records := make([]domain.LabelRecord, 0)
	for _, entity := range d.Entities {
		text, ok := entity.Shape.(domain.Text)
		if !ok {
			continue
		}
		content := Content(text)
		if content == "" {
			continue
		}
		records = append(records, domain.LabelRecord{Text: content, Position: text.Insert, Source: d.Name})
	}
	return records
}

// DiffLabels compares the labels of two drawings. A new label with an old label of equal text
// within Tolerance is unchanged. The remaining labels are paired greedily, nearest first, within
// PairDistance into modified rows; what is left over becomes removed and added rows.
//
// Changed rows are ordered modified (by old label order), removed (old order), added (new order).
// Unchanged records are the new drawing's records in their order.
func DiffLabels(newD, sourceD *domain.Drawing, opts DiffOptions) ([]domain.ChangeRow, []domain.LabelRecord) {
	newRecords := Records(newD)
	oldRecords := Records(sourceD)

	oldUsed := make([]bool, len(oldRecords))
	newUsed := make([]bool, len(newRecords))
	unchanged := make([]domain.LabelRecord, 0)

	byText := map[string][]int{}
	for i, record := range oldRecords {
		byText[record.Text] = append(byText[record.Text], i)
	}
	for i, record := range newRecords {
		best, bestDistance := -1, 0.0
		for _, j := range byText[record.Text] {
			if oldUsed[j] {
				continue
			}
			distance := record.Position.Distance2D(oldRecords[j].Position)
			if distance > opts.Tolerance {
				continue
			}
			if best < 0 || distance < bestDistance {
				best, bestDistance = j, distance
			}
		}
		if best >= 0 {
			oldUsed[best] = true
			newUsed[i] = true
			unchanged = append(unchanged, record)
		}
	}

	pairs := candidatePairs(oldRecords, newRecords, oldUsed, newUsed, opts.PairDistance)
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.oldIdx != b.oldIdx {
			return a.oldIdx < b.oldIdx
		}
		return a.newIdx < b.newIdx
	})

	partner := make([]int, len(oldRecords))
	for i := range partner {
		partner[i] = -1
	}
	for _, p := range pairs {
		if oldUsed[p.oldIdx] || newUsed[p.newIdx] {
			continue
		}
		oldUsed[p.oldIdx] = true
		newUsed[p.newIdx] = true
		partner[p.oldIdx] = p.newIdx
	}

	changed := make([]domain.ChangeRow, 0)
	for i, j := range partner {
		if j < 0 {
			continue
		}
		oldPosition, newPosition := oldRecords[i].Position, newRecords[j].Position
		changed = append(changed, domain.ChangeRow{
			Kind:        domain.ChangeModified,
			OldText:     oldRecords[i].Text,
			OldPosition: &oldPosition,
			NewText:     newRecords[j].Text,
			NewPosition: &newPosition,
		})
	}
	for i, record := range oldRecords {
		if oldUsed[i] {
			continue
		}
		position := record.Position
		changed = append(changed, domain.ChangeRow{Kind: domain.ChangeRemoved, OldText: record.Text, OldPosition: &position})
	}
	for i, record := range newRecords {
		if newUsed[i] {
			continue
		}
		position := record.Position
		changed = append(changed, domain.ChangeRow{Kind: domain.ChangeAdded, NewText: record.Text, NewPosition: &position})
	}
	return changed, unchanged
}

type labelPair struct {
	oldIdx, newIdx int
	distance       float64
}

// candidatePairs lists every unmatched (old, new) combination within maxDistance.
func candidatePairs(oldRecords, newRecords []domain.LabelRecord, oldUsed, newUsed []bool, maxDistance float64) []labelPair {
	var positions []domain.Vector
	var seqs []int
	for j, record := range newRecords {
		if !newUsed[j] {
			positions = append(positions, record.Position)
			seqs = append(seqs, j)
		}
	}
	ix := newIndex(positions, seqs)

	var pairs []labelPair
	for i, record := range oldRecords {
		if oldUsed[i] {
			continue
		}
		for _, hit := range ix.within(record.Position, maxDistance) {
			pairs = append(pairs, labelPair{oldIdx: i, newIdx: hit.Seq, distance: hit.Distance})
		}
	}
	return pairs
}

// FilterUnchangedByPrefix keeps the records whose text starts with one of prefixes and counts
// them by text in first-seen order. No prefixes keeps nothing.
func FilterUnchangedByPrefix(records []domain.LabelRecord, prefixes []string) ([]domain.LabelRecord, []domain.LabelCount) {
	kept := make([]domain.LabelRecord, 0)
	counts := make([]domain.LabelCount, 0)
	if len(prefixes) == 0 {
		return kept, counts
	}

	position := map[string]int{}
	for _, record := range records {
		if !hasAnyPrefix(record.Text, prefixes) {
			continue
		}
		kept = append(kept, record)
		if i, ok := position[record.Text]; ok {
			counts[i].Count++
			continue
		}
		position[record.Text] = len(counts)
		counts = append(counts, domain.LabelCount{Text: record.Text, Count: 1})
	}
	return kept, counts
}

func hasAnyPrefix(text string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}
