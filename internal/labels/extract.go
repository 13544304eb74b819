package labels

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// Rule locates one title block field: the value is the nearest text around an anchor label.
type Rule struct {
	Anchors []string
	// MaxDistance bounds the planar distance between anchor and value.
	MaxDistance float64
	// MaxHorizontal additionally bounds the horizontal offset; zero leaves it unbounded.
	MaxHorizontal float64
	// DrawingNumber requires the value to contain a drawing number and returns only that number.
	DrawingNumber bool
}

// ExtractOptions configures Extract.
type ExtractOptions struct {
	DrawingNumber Rule
	SourceNumber  Rule
	Title         Rule
	Subtitle      Rule
	// RightmostTolerance limits a field with several anchors to those within this horizontal
	// distance of the rightmost one; title blocks sit at the right edge of the sheet.
	RightmostTolerance float64
}

// Default proximities in drawing units.
const (
	DefaultDrawingNumberProximity = 80
	DefaultSourceNumberProximity  = 80
	DefaultTitleProximityX        = 80
	DefaultTitleProximity         = 120
	DefaultRightmostTolerance     = 100
)

// DefaultExtractOptions returns the anchors and proximities used for standard title blocks.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		DrawingNumber: Rule{
			Anchors:       []string{"DWG NO.", "DWG.NO", "DWG NO", "DRAWING NO.", "図番"},
			MaxDistance:   DefaultDrawingNumberProximity,
			DrawingNumber: true,
		},
		SourceNumber: Rule{
			Anchors:       []string{"流用元図番", "SOURCE DWG NO.", "DERIVED FROM"},
			MaxDistance:   DefaultSourceNumberProximity,
			DrawingNumber: true,
		},
		Title: Rule{
			Anchors:       []string{"TITLE", "表題"},
			MaxDistance:   DefaultTitleProximity,
			MaxHorizontal: DefaultTitleProximityX,
		},
		Subtitle: Rule{
			Anchors:       []string{"SUBTITLE", "SUB TITLE", "副表題"},
			MaxDistance:   DefaultTitleProximity,
			MaxHorizontal: DefaultTitleProximityX,
		},
		RightmostTolerance: DefaultRightmostTolerance,
	}
}

// label is one text item prepared for extraction.
type label struct {
	Seq      int
	Text     string
	Key      string
	Position domain.Vector
}

type extractor struct {
	opts       ExtractOptions
	labels     []label
	anchorKeys []string
	index      *index
}

// Extract reads the drawing number, source drawing number, title and subtitle from the drawing.
// Fields that cannot be located are left nil; extraction never fails.
func Extract(d *domain.Drawing, opts ExtractOptions) domain.LabelInfo {
	if d == nil {
		return domain.LabelInfo{}
	}
	e := newExtractor(d, opts)

	var info domain.LabelInfo
	info.MainDrawingNumber = first(e.candidates(opts.DrawingNumber))
	info.SourceDrawingNumber = first(e.candidates(opts.SourceNumber))

	titles := e.candidates(opts.Title)
	info.Title = first(titles)
	info.Subtitle = first(e.candidates(opts.Subtitle))
	if info.Subtitle == nil && len(titles) > 1 {
		info.Subtitle = &titles[1]
	}
	return info
}

func newExtractor(d *domain.Drawing, opts ExtractOptions) *extractor {
	e := &extractor{opts: opts}
	for _, rule := range []Rule{opts.DrawingNumber, opts.SourceNumber, opts.Title, opts.Subtitle} {
		for _, anchor := range rule.Anchors {
			if key := normalize(anchor); key != "" {
				e.anchorKeys = append(e.anchorKeys, key)
			}
		}
	}

	var positions []domain.Vector
	var seqs []int
	for _, item := range d.Texts() {
		text := Content(item.Text)
		if text == "" {
			continue
		}
		seq := len(e.labels)
		e.labels = append(e.labels, label{Seq: seq, Text: text, Key: normalize(text), Position: item.Text.Insert})
		positions = append(positions, item.Text.Insert)
		seqs = append(seqs, seq)
	}
	e.index = newIndex(positions, seqs)
	return e
}

type candidate struct {
	value    string
	distance float64
	seq      int
}

// candidates returns the distinct qualifying values of a rule, best first.
func (e *extractor) candidates(rule Rule) []string {
	anchors := e.anchorLabels(rule)
	if len(anchors) == 0 {
		return nil
	}

	var found []candidate
	for _, anchor := range anchors {
		if inline, ok := e.inlineValue(anchor, rule); ok {
			found = append(found, candidate{value: inline, distance: 0, seq: anchor.Seq})
		}
		for _, hit := range e.index.within(anchor.Position, rule.MaxDistance) {
			if hit.Seq == anchor.Seq {
				continue
			}
			other := e.labels[hit.Seq]
			if e.isAnchor(other.Key) {
				continue
			}
			if rule.MaxHorizontal > 0 && math.Abs(other.Position.X-anchor.Position.X) > rule.MaxHorizontal {
				continue
			}
			value, ok := e.qualify(other.Text, rule)
			if !ok {
				continue
			}
			found = append(found, candidate{value: value, distance: hit.Distance, seq: hit.Seq})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].seq < found[j].seq
	})
	values := make([]string, 0, len(found))
	seen := map[string]bool{}
	for _, c := range found {
		if !seen[c.value] {
			seen[c.value] = true
			values = append(values, c.value)
		}
	}
	return values
}

// isAnchor reports whether a label is an anchor of any field, with or without an inline value.
// Anchors never count as values of another field.
func (e *extractor) isAnchor(key string) bool {
	for _, anchor := range e.anchorKeys {
		if strings.HasPrefix(key, anchor) {
			return true
		}
	}
	return false
}

// anchorLabels returns the labels that open with one of the rule's anchors, keeping only those
// near the rightmost one.
func (e *extractor) anchorLabels(rule Rule) []label {
	var anchors []label
	for _, l := range e.labels {
		for _, anchor := range rule.Anchors {
			if key := normalize(anchor); key != "" && strings.HasPrefix(l.Key, key) {
				anchors = append(anchors, l)
				break
			}
		}
	}
	if len(anchors) < 2 || e.opts.RightmostTolerance <= 0 {
		return anchors
	}
	rightmost := math.Inf(-1)
	for _, anchor := range anchors {
		rightmost = math.Max(rightmost, anchor.Position.X)
	}
	kept := anchors[:0]
	for _, anchor := range anchors {
		if rightmost-anchor.Position.X <= e.opts.RightmostTolerance {
			kept = append(kept, anchor)
		}
	}
	return kept
}

// inlineValue handles anchors written together with their value, such as "DWG NO. AB1234-567-89C".
func (e *extractor) inlineValue(anchor label, rule Rule) (string, bool) {
	for _, a := range rule.Anchors {
		key := normalize(a)
		if anchor.Key == key || !strings.HasPrefix(anchor.Key, key) {
			continue
		}
		if rest, ok := stripPrefix(anchor.Text, key); ok {
			return e.qualify(rest, rule)
		}
	}
	return "", false
}

func (e *extractor) qualify(text string, rule Rule) (string, bool) {
	if rule.DrawingNumber {
		return MatchDrawingNumber(text)
	}
	text = strings.TrimSpace(text)
	if number, ok := MatchDrawingNumber(text); ok && number == width.Fold.String(text) {
		return "", false
	}
	return text, text != ""
}

// stripPrefix removes the leading runes of text whose normalized form is key, plus any
// separators that follow.
func stripPrefix(text, key string) (string, bool) {
	consumed := ""
	for i, r := range text {
		if consumed == key {
			return strings.TrimLeftFunc(text[i:], isSeparator), true
		}
		if unicode.IsSpace(r) {
			continue
		}
		consumed += strings.ToUpper(width.Fold.String(string(r)))
		if !strings.HasPrefix(key, consumed) {
			return "", false
		}
	}
	return "", false
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == ':' || r == '：' || r == '.'
}

func first(values []string) *string {
	if len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}
