package diff

import (
	"math"
	"strconv"
	"strings"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// epsilon absorbs representation error in the logarithm, so 0.01 resolves to exactly two decimals.
const epsilon = 1e-9

// quantizer rounds coordinates to the decimal resolution implied by the tolerance:
// 0.01 compares two decimals, 0.5 one decimal, 1.0 whole units. Cells are centred on the round
// values, so 1.0 and 0.9999999 share a cell.
type quantizer struct {
	scale float64
}

func newQuantizer(tolerance float64) quantizer {
	digits := math.Ceil(-math.Log10(tolerance) - epsilon)
	if digits < 0 {
		digits = 0
	}
	return quantizer{scale: math.Pow(10, digits)}
}

func (q quantizer) cell(value float64) int64 {
	return int64(math.Round(value * q.scale))
}

// signer builds signature keys; one signer is reused for every entity of a diff.
type signer struct {
	q   quantizer
	buf []byte
}

func (s *signer) number(value float64) {
	s.buf = strconv.AppendInt(s.buf, s.q.cell(value), 10)
	s.buf = append(s.buf, ',')
}

func (s *signer) point(v domain.Vector) {
	s.number(v.X)
	s.number(v.Y)
	s.number(v.Z)
}

func (s *signer) text(value string) {
	s.buf = strconv.AppendQuote(s.buf, value)
	s.buf = append(s.buf, ',')
}

func (s *signer) separator() {
	s.buf = append(s.buf, '|')
}

// signature returns the matching key of an entity: type, layer, quantized geometry and text.
// Color and handles are not part of it.
func (s *signer) signature(e domain.Entity) string {
	s.buf = s.buf[:0]
	s.buf = append(s.buf, strings.ToUpper(e.Type)...)
	s.separator()
	s.buf = append(s.buf, strings.ToUpper(e.Layer)...)
	s.separator()

	switch shape := e.Shape.(type) {
	case domain.Line:
		s.point(shape.Start)
		s.point(shape.End)
	case domain.Circle:
		s.point(shape.Center)
		s.number(shape.Radius)
	case domain.Arc:
		s.point(shape.Center)
		s.number(shape.Radius)
		s.number(shape.StartAngle)
		s.number(shape.EndAngle)
	case domain.Polyline:
		if shape.Closed {
			s.buf = append(s.buf, 'c')
		}
		for _, vertex := range shape.Vertices {
			s.point(vertex.Point)
			s.number(vertex.Bulge)
		}
	case domain.Text:
		s.textShape(shape)
	case domain.BlockReference:
		s.text(strings.ToUpper(shape.Name))
		s.point(shape.Insert)
		s.point(shape.Scale)
		s.number(shape.Rotation)
		for _, attr := range shape.Attributes {
			s.separator()
			s.text(attr.Tag)
			s.textShape(attr.Text)
		}
	default:
		s.rawTags(e.Tags)
	}
	return string(s.buf)
}

func (s *signer) textShape(t domain.Text) {
	s.point(t.Insert)
	s.number(t.Height)
	s.number(t.Rotation)
	s.text(t.Content)
}

// rawTags signs an unmodeled entity from its groups, quantizing floating point groups and
// skipping handles, owner links, reactor groups and the color override.
func (s *signer) rawTags(tags []domain.Tag) {
	inReactors := false
	for _, tag := range tags {
		switch {
		case tag.Code == 102:
			inReactors = strings.HasPrefix(strings.TrimSpace(tag.Value), "{")
			continue
		case inReactors:
			continue
		case tag.Code == 5 || tag.Code == 105 || tag.Code == 330 || tag.Code == 360 || tag.Code == 8 || tag.Code == 62:
			continue
		}
		s.buf = strconv.AppendInt(s.buf, int64(tag.Code), 10)
		s.buf = append(s.buf, '=')
		if isFloatCode(tag.Code) {
			if value, err := strconv.ParseFloat(strings.TrimSpace(tag.Value), 64); err == nil {
				s.number(value)
				continue
			}
		}
		s.text(strings.TrimSpace(tag.Value))
	}
}

// isFloatCode reports whether a group code carries a double precision value.
func isFloatCode(code int) bool {
	switch {
	case code >= 10 && code <= 59:
		return true
	case code >= 110 && code <= 149:
		return true
	case code >= 210 && code <= 239:
		return true
	case code >= 460 && code <= 469:
		return true
	case code >= 1010 && code <= 1059:
		return true
	}
	return false
}
