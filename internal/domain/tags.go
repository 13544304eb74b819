package domain

import (
	"strconv"
	"strings"
)

// pointCodes lists the X group codes of WCS points per entity type. The matching Y and Z
// codes are X+10 and X+20. Codes that carry direction vectors (MTEXT 11, ELLIPSE 11) are left out.
var pointCodes = map[string][]int{
	"LINE":       {10, 11},
	"CIRCLE":     {10},
	"ARC":        {10},
	"POINT":      {10},
	"LWPOLYLINE": {10},
	"POLYLINE":   {},
	"VERTEX":     {10},
	"SEQEND":     {},
	"TEXT":       {10, 11},
	"MTEXT":      {10},
	"ATTRIB":     {10, 11},
	"ATTDEF":     {10, 11},
	"INSERT":     {10},
	"ELLIPSE":    {10},
	"SPLINE":     {10, 11},
	"SOLID":      {10, 11, 12, 13},
	"TRACE":      {10, 11, 12, 13},
	"3DFACE":     {10, 11, 12, 13},
	"DIMENSION":  {10, 11, 12, 13, 14, 15, 16},
	"LEADER":     {10},
	"RAY":        {10},
	"XLINE":      {10},
}

// PointCodes returns the X group codes translated for the given entity type.
func PointCodes(entityType string) []int {
	if codes, ok := pointCodes[strings.ToUpper(entityType)]; ok {
		return codes
	}
	return []int{10}
}

func translateTags(entityType string, tags []Tag, offset Vector) []Tag {
	current := entityType
	for i := range tags {
		if tags[i].Code == 0 {
			current = strings.TrimSpace(tags[i].Value)
			continue
		}
		delta, ok := axisDelta(current, tags[i].Code, offset)
		if !ok || delta == 0 {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(tags[i].Value), 64)
		if err != nil {
			continue
		}
		tags[i].Value = FormatFloat(value + delta)
	}
	return tags
}

func axisDelta(entityType string, code int, offset Vector) (float64, bool) {
	for _, x := range PointCodes(entityType) {
		switch code {
		case x:
			return offset.X, true
		case x + 10:
			return offset.Y, true
		case x + 20:
			return offset.Z, true
		}
	}
	return 0, false
}

// FormatFloat renders a coordinate the way DXF writers do: shortest round-trip form with a decimal point.
func FormatFloat(value float64) string {
	out := strconv.FormatFloat(value, 'f', -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	return out
}

func formatInt(value int) string {
	return strconv.Itoa(value)
}
