package domain

import (
	"strconv"
	"strings"
)

// Builder assembles a derived drawing from a base drawing's header, tables and blocks.
// It is local to one operation and not safe for concurrent use.
type Builder struct {
	drawing *Drawing
	used    map[string]bool
	next    uint64
}

// NewBuilder starts a drawing that copies everything from base except its entities.
func NewBuilder(base *Drawing, name string) *Builder {
	d := &Drawing{Name: name, Encoding: EncodingUTF8}
	if base != nil {
		d.Encoding = base.Encoding
		for _, section := range base.Sections {
			d.Sections = append(d.Sections, Section{Name: section.Name, Tags: append([]Tag(nil), section.Tags...)})
		}
		d.Layers = append(d.Layers, base.Layers...)
		for _, block := range base.Blocks {
			d.Blocks = append(d.Blocks, Block{Name: block.Name, Tags: append([]Tag(nil), block.Tags...)})
		}
	} else {
		d.Sections = NewDrawing(name).Sections
	}

	b := &Builder{drawing: d, used: map[string]bool{}}
	if base != nil {
		b.next = base.MaxHandle() + 1
	}
	for _, section := range d.Sections {
		if section.Name != SectionHeader {
			b.markUsed(section.Tags)
		}
	}
	for _, block := range d.Blocks {
		b.markUsed(block.Tags)
	}
	return b
}

// AddLayer declares a layer unless one with the same name exists.
func (b *Builder) AddLayer(layer Layer) {
	if _, ok := b.drawing.Layer(layer.Name); ok {
		return
	}
	b.drawing.Layers = append(b.drawing.Layers, layer)
}

// AddForeignBlock copies a block definition from another drawing unless the name is taken.
func (b *Builder) AddForeignBlock(block Block) {
	if _, ok := b.drawing.Block(block.Name); ok {
		return
	}
	b.drawing.Blocks = append(b.drawing.Blocks, Block{Name: block.Name, Tags: b.rehandle(block.Tags, true)})
}

// Append adds a copy of an entity that originates from the base drawing.
func (b *Builder) Append(e Entity) {
	b.appendEntity(e.Clone(), false)
}

// AppendForeign adds a copy of an entity taken from another drawing. Owner and reactor
// references into that drawing are dropped and colliding handles are replaced.
func (b *Builder) AppendForeign(e Entity) {
	b.appendEntity(e.Clone(), true)
}

// Drawing returns the assembled drawing.
func (b *Builder) Drawing() *Drawing {
	return b.drawing
}

func (b *Builder) appendEntity(e Entity, foreign bool) {
	if e.Tags != nil {
		e.Tags = b.rehandle(e.Tags, foreign)
		e.Handle = ""
		for _, tag := range e.Tags[:primaryEnd(e.Tags)] {
			if tag.Code == 5 {
				e.Handle = strings.TrimSpace(tag.Value)
				break
			}
		}
	} else if e.Handle != "" {
		handle := strings.ToUpper(e.Handle)
		if b.used[handle] {
			handle = b.allocate()
		}
		b.used[handle] = true
		e.Handle = handle
	}
	if _, ok := b.drawing.Layer(e.Layer); !ok && e.Layer != "" {
		b.drawing.Layers = append(b.drawing.Layers, Layer{Name: e.Layer, Color: 7})
	}
	b.drawing.Entities = append(b.drawing.Entities, e)
}

func (b *Builder) rehandle(tags []Tag, foreign bool) []Tag {
	remap := map[string]string{}
	out := make([]Tag, 0, len(tags))
	for _, tag := range tags {
		if tag.Code != 5 {
			continue
		}
		handle := strings.ToUpper(strings.TrimSpace(tag.Value))
		if b.used[handle] {
			remap[handle] = b.allocate()
		}
	}

	skipGroup := false
	for _, tag := range tags {
		value := strings.ToUpper(strings.TrimSpace(tag.Value))
		if foreign {
			if tag.Code == 102 {
				skipGroup = strings.HasPrefix(value, "{")
				continue
			}
			if skipGroup || tag.Code == 360 {
				continue
			}
		}
		switch tag.Code {
		case 5:
			if replacement, ok := remap[value]; ok {
				tag.Value = replacement
				value = replacement
			}
			b.used[value] = true
		case 330:
			if replacement, ok := remap[value]; ok {
				tag.Value = replacement
			} else if foreign {
				continue
			}
		}
		out = append(out, tag)
	}
	return out
}

func (b *Builder) allocate() string {
	for {
		if b.next == 0 {
			b.next = 1
		}
		handle := strings.ToUpper(strconv.FormatUint(b.next, 16))
		b.next++
		if !b.used[handle] {
			b.used[handle] = true
			return handle
		}
	}
}

func (b *Builder) markUsed(tags []Tag) {
	for _, tag := range tags {
		if tag.Code == 5 || tag.Code == 105 {
			b.used[strings.ToUpper(strings.TrimSpace(tag.Value))] = true
		}
	}
}
