// Package dxf reads and writes ASCII DXF drawings into the domain drawing model.
//
// Entities that are not modeled are kept as raw group codes so that a drawing
// written back out carries the same content it was read with.
package dxf

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/rpattn/dxfdiff/internal/domain"
)

var binarySentinel = []byte("AutoCAD Binary DXF")

// lineTag is a group code pair with the 1-based line of its code, kept for error reporting.
type lineTag struct {
	domain.Tag
	Line int
}

func (t lineTag) is(code int, value string) bool {
	return t.Code == code && strings.EqualFold(strings.TrimSpace(t.Value), value)
}

func tokenize(source string, text string) ([]lineTag, error) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, &domain.FormatError{Source: source, Reason: "empty input"}
	}
	if len(lines)%2 != 0 {
		return nil, &domain.FormatError{Source: source, Line: len(lines), Reason: "group code without value"}
	}

	tags := make([]lineTag, 0, len(lines)/2)
	for i := 0; i < len(lines); i += 2 {
		code, err := strconv.Atoi(strings.TrimSpace(lines[i]))
		if err != nil {
			return nil, &domain.FormatError{Source: source, Line: i + 1, Reason: "invalid group code " + strconv.Quote(lines[i])}
		}
		tags = append(tags, lineTag{Tag: domain.Tag{Code: code, Value: lines[i+1]}, Line: i + 1})
	}
	return tags, nil
}

func isBinary(data []byte) bool {
	return bytes.HasPrefix(data, binarySentinel)
}
