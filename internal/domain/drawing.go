package domain

import (
	"strconv"
	"strings"
)

// Encodings recognised for drawing text.
const (
	EncodingUTF8     = "UTF-8"
	EncodingShiftJIS = "ANSI_932"
	EncodingLatin1   = "ANSI_1252"
)

// Section names that the drawing model treats specially.
const (
	SectionHeader   = "HEADER"
	SectionTables   = "TABLES"
	SectionBlocks   = "BLOCKS"
	SectionEntities = "ENTITIES"
)

// Layer is a declared layer and its default color.
type Layer struct {
	Name  string
	Color int
}

// Block is a block definition kept as raw groups, from the group after "0 BLOCK" through the ENDBLK record.
type Block struct {
	Name string
	Tags []Tag
}

// Section is a raw top level section. BLOCKS and ENTITIES sections are placeholders; their content
// lives in Drawing.Blocks and Drawing.Entities.
type Section struct {
	Name string
	Tags []Tag
}

// Drawing is a parsed drawing. It is not modified after parsing; derived drawings are built with a Builder.
type Drawing struct {
	Name     string
	Encoding string
	Sections []Section
	Layers   []Layer
	Blocks   []Block
	Entities []Entity
}

// NewDrawing returns an empty drawing with the standard section order.
func NewDrawing(name string) *Drawing {
	return &Drawing{
		Name:     name,
		Encoding: EncodingUTF8,
		Sections: []Section{{Name: SectionHeader}, {Name: SectionTables}, {Name: SectionBlocks}, {Name: SectionEntities}},
	}
}

// Layer looks up a layer by name. Layer names compare case-insensitively as in CAD applications.
func (d *Drawing) Layer(name string) (Layer, bool) {
	for _, layer := range d.Layers {
		if strings.EqualFold(layer.Name, name) {
			return layer, true
		}
	}
	return Layer{}, false
}

// Block looks up a block definition by name.
func (d *Drawing) Block(name string) (Block, bool) {
	for _, block := range d.Blocks {
		if strings.EqualFold(block.Name, name) {
			return block, true
		}
	}
	return Block{}, false
}

// Section returns the named raw section.
func (d *Drawing) Section(name string) (Section, bool) {
	for _, section := range d.Sections {
		if section.Name == name {
			return section, true
		}
	}
	return Section{}, false
}

// HeaderVariable returns the first value of a header variable such as "$ACADVER".
func (d *Drawing) HeaderVariable(name string) (string, bool) {
	header, ok := d.Section(SectionHeader)
	if !ok {
		return "", false
	}
	for i, tag := range header.Tags {
		if tag.Code == 9 && strings.EqualFold(strings.TrimSpace(tag.Value), name) && i+1 < len(header.Tags) {
			return strings.TrimSpace(header.Tags[i+1].Value), true
		}
	}
	return "", false
}

// TextItem is a text value found in the drawing, either a text entity or a block attribute.
type TextItem struct {
	Text        Text
	Layer       string
	EntityIndex int
}

// Texts enumerates text entities and block attributes in entity order.
func (d *Drawing) Texts() []TextItem {
	items := make([]TextItem, 0)
	for idx, entity := range d.Entities {
		switch shape := entity.Shape.(type) {
		case Text:
			items = append(items, TextItem{Text: shape, Layer: entity.Layer, EntityIndex: idx})
		case BlockReference:
			for _, attr := range shape.Attributes {
				items = append(items, TextItem{Text: attr.Text, Layer: entity.Layer, EntityIndex: idx})
			}
		}
	}
	return items
}

// MaxHandle returns the highest hexadecimal handle used anywhere in the drawing. The header is
// skipped because $HANDSEED is stored under group 5 as well.
func (d *Drawing) MaxHandle() uint64 {
	var maxHandle uint64
	consider := func(handle string) {
		if value, err := strconv.ParseUint(strings.TrimSpace(handle), 16, 64); err == nil && value > maxHandle {
			maxHandle = value
		}
	}
	scan := func(tags []Tag) {
		for _, tag := range tags {
			if tag.Code == 5 || tag.Code == 105 {
				consider(tag.Value)
			}
		}
	}
	for _, section := range d.Sections {
		if section.Name != SectionHeader {
			scan(section.Tags)
		}
	}
	for _, block := range d.Blocks {
		scan(block.Tags)
	}
	for _, entity := range d.Entities {
		if entity.Tags == nil {
			consider(entity.Handle)
			continue
		}
		scan(entity.Tags)
	}
	return maxHandle
}
