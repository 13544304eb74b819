package dxf

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// decodeEntity builds an entity from its groups; group[0] is the "0 <TYPE>" marker.
func decodeEntity(source string, group []lineTag) (domain.Entity, error) {
	entityType := strings.ToUpper(strings.TrimSpace(group[0].Value))
	body := group[1:]
	primary := body
	for i, tag := range body {
		if tag.Code == 0 {
			primary = body[:i]
			break
		}
	}

	entity := domain.Entity{Type: entityType, Color: domain.ColorByLayer, Tags: plainTags(body)}
	d := &fieldDecoder{source: source}
	for _, tag := range primary {
		switch tag.Code {
		case 8:
			entity.Layer = strings.TrimSpace(tag.Value)
		case 62:
			entity.Color = d.integer(tag)
		case 5:
			entity.Handle = strings.TrimSpace(tag.Value)
		}
	}

	switch entityType {
	case "LINE":
		entity.Shape = domain.Line{Start: d.point(primary, 10), End: d.point(primary, 11)}
	case "CIRCLE":
		entity.Shape = domain.Circle{Center: d.point(primary, 10), Radius: d.float(primary, 40, 0)}
	case "ARC":
		entity.Shape = domain.Arc{
			Center:     d.point(primary, 10),
			Radius:     d.float(primary, 40, 0),
			StartAngle: d.float(primary, 50, 0),
			EndAngle:   d.float(primary, 51, 0),
		}
	case "LWPOLYLINE":
		entity.Shape = d.lwpolyline(primary)
	case "TEXT":
		entity.Shape = d.text(primary, false)
	case "MTEXT":
		entity.Shape = d.text(primary, true)
	case "INSERT":
		entity.Shape = d.insert(primary, body)
	default:
		entity.Shape = domain.Other{Type: entityType}
	}
	if d.err != nil {
		return domain.Entity{}, d.err
	}
	return entity, nil
}

// fieldDecoder converts group values and keeps the first conversion error.
type fieldDecoder struct {
	source string
	err    error
}

func (d *fieldDecoder) fail(tag lineTag, kind string) {
	if d.err == nil {
		d.err = &domain.FormatError{
			Source: d.source,
			Line:   tag.Line,
			Reason: fmt.Sprintf("group %d: invalid %s %q", tag.Code, kind, strings.TrimSpace(tag.Value)),
		}
	}
}

func (d *fieldDecoder) parseFloat(tag lineTag) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(tag.Value), 64)
	if err != nil {
		d.fail(tag, "number")
		return 0
	}
	return value
}

func (d *fieldDecoder) integer(tag lineTag) int {
	value, err := parseInt(tag.Value)
	if err != nil {
		d.fail(tag, "integer")
	}
	return value
}

func (d *fieldDecoder) float(tags []lineTag, code int, fallback float64) float64 {
	for _, tag := range tags {
		if tag.Code == code {
			return d.parseFloat(tag)
		}
	}
	return fallback
}

func (d *fieldDecoder) point(tags []lineTag, code int) domain.Vector {
	return domain.Vector{
		X: d.float(tags, code, 0),
		Y: d.float(tags, code+10, 0),
		Z: d.float(tags, code+20, 0),
	}
}

func (d *fieldDecoder) lwpolyline(tags []lineTag) domain.Polyline {
	var polyline domain.Polyline
	elevation := 0.0
	for _, tag := range tags {
		switch tag.Code {
		case 10:
			polyline.Vertices = append(polyline.Vertices, domain.Vertex{Point: domain.Vector{X: d.parseFloat(tag)}})
		case 20:
			if n := len(polyline.Vertices); n > 0 {
				polyline.Vertices[n-1].Point.Y = d.parseFloat(tag)
			}
		case 42:
			if n := len(polyline.Vertices); n > 0 {
				polyline.Vertices[n-1].Bulge = d.parseFloat(tag)
			}
		case 38:
			elevation = d.parseFloat(tag)
		case 70:
			polyline.Closed = d.integer(tag)&1 == 1
		}
	}
	for i := range polyline.Vertices {
		polyline.Vertices[i].Point.Z = elevation
	}
	return polyline
}

func (d *fieldDecoder) text(tags []lineTag, multiline bool) domain.Text {
	text := domain.Text{
		Insert:    d.point(tags, 10),
		Height:    d.float(tags, 40, 0),
		Rotation:  d.float(tags, 50, 0),
		Multiline: multiline,
	}
	var content strings.Builder
	var tail string
	hasRotation := false
	for _, tag := range tags {
		switch tag.Code {
		case 3:
			if multiline {
				content.WriteString(tag.Value)
			}
		case 1:
			tail = tag.Value
		case 50:
			hasRotation = true
		}
	}
	content.WriteString(tail)
	text.Content = content.String()
	if multiline && !hasRotation {
		direction := d.point(tags, 11)
		if direction.X != 0 || direction.Y != 0 {
			text.Rotation = math.Atan2(direction.Y, direction.X) * 180 / math.Pi
		}
	}
	return text
}

func (d *fieldDecoder) insert(primary, body []lineTag) domain.BlockReference {
	ref := domain.BlockReference{
		Insert:   d.point(primary, 10),
		Scale:    domain.Vector{X: d.float(primary, 41, 1), Y: d.float(primary, 42, 1), Z: d.float(primary, 43, 1)},
		Rotation: d.float(primary, 50, 0),
	}
	for _, tag := range primary {
		if tag.Code == 2 {
			ref.Name = strings.TrimSpace(tag.Value)
			break
		}
	}

	for i := len(primary); i < len(body); {
		if !body[i].is(0, "ATTRIB") {
			i++
			continue
		}
		end := i + 1
		for end < len(body) && body[end].Code != 0 {
			end++
		}
		attrTags := body[i+1 : end]
		attr := domain.Attribute{Text: d.text(attrTags, false)}
		for _, tag := range attrTags {
			if tag.Code == 2 {
				attr.Tag = strings.TrimSpace(tag.Value)
				break
			}
		}
		ref.Attributes = append(ref.Attributes, attr)
		i = end
	}
	return ref
}

func parseInt(value string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(value))
}

// encodeEntity synthesises groups for an entity built in memory rather than parsed.
func encodeEntity(e domain.Entity) (string, []domain.Tag) {
	entityType := e.Type
	var tags []domain.Tag
	add := func(code int, value string) { tags = append(tags, domain.Tag{Code: code, Value: value}) }
	addFloat := func(code int, value float64) { add(code, domain.FormatFloat(value)) }
	addPoint := func(code int, v domain.Vector) {
		addFloat(code, v.X)
		addFloat(code+10, v.Y)
		addFloat(code+20, v.Z)
	}
	common := func() {
		if e.Handle != "" {
			add(5, e.Handle)
		}
		layer := e.Layer
		if layer == "" {
			layer = "0"
		}
		add(8, layer)
		if e.Color != domain.ColorByLayer {
			add(62, strconv.Itoa(e.Color))
		}
	}

	switch shape := e.Shape.(type) {
	case domain.Line:
		entityType = "LINE"
		common()
		addPoint(10, shape.Start)
		addPoint(11, shape.End)
	case domain.Circle:
		entityType = "CIRCLE"
		common()
		addPoint(10, shape.Center)
		addFloat(40, shape.Radius)
	case domain.Arc:
		entityType = "ARC"
		common()
		addPoint(10, shape.Center)
		addFloat(40, shape.Radius)
		addFloat(50, shape.StartAngle)
		addFloat(51, shape.EndAngle)
	case domain.Polyline:
		entityType = "LWPOLYLINE"
		common()
		add(90, strconv.Itoa(len(shape.Vertices)))
		flags := 0
		if shape.Closed {
			flags = 1
		}
		add(70, strconv.Itoa(flags))
		if len(shape.Vertices) > 0 && shape.Vertices[0].Point.Z != 0 {
			addFloat(38, shape.Vertices[0].Point.Z)
		}
		for _, vertex := range shape.Vertices {
			addFloat(10, vertex.Point.X)
			addFloat(20, vertex.Point.Y)
			if vertex.Bulge != 0 {
				addFloat(42, vertex.Bulge)
			}
		}
	case domain.Text:
		entityType = "TEXT"
		if shape.Multiline {
			entityType = "MTEXT"
		}
		common()
		addPoint(10, shape.Insert)
		addFloat(40, shape.Height)
		add(1, shape.Content)
		if shape.Rotation != 0 {
			addFloat(50, shape.Rotation)
		}
	case domain.BlockReference:
		entityType = "INSERT"
		common()
		if len(shape.Attributes) > 0 {
			add(66, "1")
		}
		add(2, shape.Name)
		addPoint(10, shape.Insert)
		addFloat(41, shape.Scale.X)
		addFloat(42, shape.Scale.Y)
		addFloat(43, shape.Scale.Z)
		if shape.Rotation != 0 {
			addFloat(50, shape.Rotation)
		}
		for _, attr := range shape.Attributes {
			add(0, "ATTRIB")
			add(8, e.Layer)
			addPoint(10, attr.Text.Insert)
			addFloat(40, attr.Text.Height)
			add(1, attr.Text.Content)
			add(2, attr.Tag)
		}
		if len(shape.Attributes) > 0 {
			add(0, "SEQEND")
		}
	default:
		if entityType == "" {
			entityType = "POINT"
		}
		common()
	}
	return entityType, tags
}
