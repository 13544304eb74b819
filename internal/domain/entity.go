package domain

import "strings"

// Kind classifies an entity for comparison purposes.
type Kind string

const (
	KindLine           Kind = "line"
	KindCircle         Kind = "circle"
	KindArc            Kind = "arc"
	KindPolyline       Kind = "polyline"
	KindText           Kind = "text"
	KindBlockReference Kind = "block_reference"
	KindOther          Kind = "other"
)

const (
	// ColorByBlock is the ACI value that defers to the owning block reference.
	ColorByBlock = 0
	// ColorByLayer is the ACI value that defers to the layer color. It is the default when group 62 is absent.
	ColorByLayer = 256
)

// Tag is a raw DXF group code / value pair.
type Tag struct {
	Code  int
	Value string
}

// Shape is the geometric payload of an entity. Implementations are value types; Translate never mutates the receiver.
type Shape interface {
	Kind() Kind
	Translate(offset Vector) Shape
}

// Line is a straight segment.
type Line struct {
	Start Vector
	End   Vector
}

func (Line) Kind() Kind { return KindLine }

func (l Line) Translate(offset Vector) Shape {
	return Line{Start: l.Start.Add(offset), End: l.End.Add(offset)}
}

// Circle is a full circle.
type Circle struct {
	Center Vector
	Radius float64
}

func (Circle) Kind() Kind { return KindCircle }

func (c Circle) Translate(offset Vector) Shape {
	return Circle{Center: c.Center.Add(offset), Radius: c.Radius}
}

// Arc is a circular arc; angles are in degrees, counter-clockwise from StartAngle to EndAngle.
type Arc struct {
	Center     Vector
	Radius     float64
	StartAngle float64
	EndAngle   float64
}

func (Arc) Kind() Kind { return KindArc }

func (a Arc) Translate(offset Vector) Shape {
	a.Center = a.Center.Add(offset)
	return a
}

// Vertex is one polyline vertex with an optional bulge for arc segments.
type Vertex struct {
	Point Vector
	Bulge float64
}

// Polyline is a lightweight polyline.
type Polyline struct {
	Vertices []Vertex
	Closed   bool
}

func (Polyline) Kind() Kind { return KindPolyline }

func (p Polyline) Translate(offset Vector) Shape {
	vertices := make([]Vertex, len(p.Vertices))
	for i, vertex := range p.Vertices {
		vertices[i] = Vertex{Point: vertex.Point.Add(offset), Bulge: vertex.Bulge}
	}
	return Polyline{Vertices: vertices, Closed: p.Closed}
}

// Text is a single or multi line text label. Content holds the raw string as stored in the file.
type Text struct {
	Insert    Vector
	Content   string
	Height    float64
	Rotation  float64
	Multiline bool
}

func (Text) Kind() Kind { return KindText }

func (t Text) Translate(offset Vector) Shape {
	t.Insert = t.Insert.Add(offset)
	return t
}

// Attribute is a tagged text value attached to a block reference.
type Attribute struct {
	Tag  string
	Text Text
}

// BlockReference places a named block definition.
type BlockReference struct {
	Name       string
	Insert     Vector
	Scale      Vector
	Rotation   float64
	Attributes []Attribute
}

func (BlockReference) Kind() Kind { return KindBlockReference }

func (b BlockReference) Translate(offset Vector) Shape {
	attributes := make([]Attribute, len(b.Attributes))
	for i, attr := range b.Attributes {
		attributes[i] = Attribute{Tag: attr.Tag, Text: attr.Text.Translate(offset).(Text)}
	}
	b.Insert = b.Insert.Add(offset)
	b.Attributes = attributes
	return b
}

// Other is any entity type that is not modeled; its payload lives verbatim in Entity.Tags.
type Other struct {
	Type string
}

func (Other) Kind() Kind { return KindOther }

func (o Other) Translate(Vector) Shape { return o }

// Entity is one graphical primitive of a drawing. Type is the DXF entity name (LINE, MTEXT, HATCH, ...),
// Tags holds every group that follows the entity's leading "0 <Type>" pair, including sub-entities
// such as VERTEX, ATTRIB and SEQEND. Entities are values: the helpers below return copies.
type Entity struct {
	Type   string
	Layer  string
	Color  int
	Handle string
	Shape  Shape
	Tags   []Tag
}

// Kind returns the comparison kind of the entity.
func (e Entity) Kind() Kind {
	if e.Shape == nil {
		return KindOther
	}
	return e.Shape.Kind()
}

// Clone returns a deep copy that shares no slices with the receiver.
func (e Entity) Clone() Entity {
	out := e
	out.Tags = append([]Tag(nil), e.Tags...)
	switch shape := e.Shape.(type) {
	case Polyline:
		out.Shape = shape.Translate(Vector{})
	case BlockReference:
		out.Shape = shape.Translate(Vector{})
	}
	return out
}

// WithColor returns a copy carrying an explicit color override. Attributes of a block reference
// get the same override so their text shows the classification too.
func (e Entity) WithColor(color int) Entity {
	out := e.Clone()
	out.Color = color
	if out.Tags == nil {
		return out
	}
	value := formatInt(color)
	end := primaryEnd(out.Tags)
	tags := make([]Tag, 0, len(out.Tags)+2)
	tags = append(tags, withColorGroup(out.Tags[:end], value)...)
	for start := end; start < len(out.Tags); {
		stop := start + 1
		for stop < len(out.Tags) && out.Tags[stop].Code != 0 {
			stop++
		}
		group := out.Tags[start:stop]
		if strings.TrimSpace(group[0].Value) == "ATTRIB" {
			group = withColorGroup(group, value)
		}
		tags = append(tags, group...)
		start = stop
	}
	out.Tags = tags
	return out
}

// withColorGroup sets the 62 group of one entity group, inserting it after the layer when absent.
func withColorGroup(group []Tag, value string) []Tag {
	for i, tag := range group {
		if tag.Code == 62 {
			out := append([]Tag(nil), group...)
			out[i].Value = value
			return out
		}
	}
	insertAt := 0
	if len(group) > 0 && group[0].Code == 0 {
		insertAt = 1
	}
	for i, tag := range group {
		if tag.Code == 8 {
			insertAt = i + 1
			break
		}
	}
	out := make([]Tag, 0, len(group)+1)
	out = append(out, group[:insertAt]...)
	out = append(out, Tag{Code: 62, Value: value})
	return append(out, group[insertAt:]...)
}

// Translate returns a copy moved by offset, keeping the shape and raw point groups consistent.
func (e Entity) Translate(offset Vector) Entity {
	out := e.Clone()
	if offset.IsZero() {
		return out
	}
	if out.Shape != nil {
		out.Shape = out.Shape.Translate(offset)
	}
	out.Tags = translateTags(e.Type, out.Tags, offset)
	return out
}

// EffectiveColor resolves BYLAYER against the drawing's layer table.
func (e Entity) EffectiveColor(d *Drawing) int {
	if e.Color != ColorByLayer {
		return e.Color
	}
	if d != nil {
		if layer, ok := d.Layer(e.Layer); ok {
			if layer.Color < 0 {
				return -layer.Color
			}
			return layer.Color
		}
	}
	return 7
}

// primaryEnd returns the index of the first sub-entity marker, i.e. the end of the entity's own groups.
func primaryEnd(tags []Tag) int {
	for i, tag := range tags {
		if tag.Code == 0 {
			return i
		}
	}
	return len(tags)
}
