package dxf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// ParseFile opens and parses a drawing file. The drawing is named after the file's base name.
func ParseFile(path string) (*domain.Drawing, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &domain.IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	return Parse(file, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// Parse reads a complete ASCII DXF document.
func Parse(r io.Reader, name string) (*domain.Drawing, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &domain.IOError{Op: "read", Path: name, Err: err}
	}
	return ParseBytes(data, name)
}

// ParseBytes parses an in-memory DXF document.
func ParseBytes(data []byte, name string) (*domain.Drawing, error) {
	if isBinary(data) {
		return nil, &domain.FormatError{Source: name, Reason: "binary DXF is not supported"}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &domain.FormatError{Source: name, Reason: "empty input"}
	}

	enc := detectEncoding(data)
	text, err := decodeText(data, enc)
	if err != nil {
		return nil, &domain.FormatError{Source: name, Reason: fmt.Sprintf("decode %s text: %v", enc, err)}
	}
	tags, err := tokenize(name, text)
	if err != nil {
		return nil, err
	}

	p := &parser{source: name, tags: tags, drawing: &domain.Drawing{Name: name, Encoding: enc}}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.drawing, nil
}

type parser struct {
	source  string
	tags    []lineTag
	pos     int
	drawing *domain.Drawing
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &domain.FormatError{Source: p.source, Line: line, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) run() error {
	for p.pos < len(p.tags) {
		tag := p.tags[p.pos]
		switch {
		case tag.is(0, "EOF"):
			return nil
		case tag.is(0, "SECTION"):
			if err := p.section(); err != nil {
				return err
			}
		case tag.Code == 999:
			p.pos++
		default:
			return p.errorf(tag.Line, "unexpected group %d %q outside of a section", tag.Code, strings.TrimSpace(tag.Value))
		}
	}
	return p.errorf(0, "missing EOF marker")
}

func (p *parser) section() error {
	start := p.tags[p.pos]
	p.pos++
	if p.pos >= len(p.tags) || p.tags[p.pos].Code != 2 {
		return p.errorf(start.Line, "section without a name")
	}
	name := strings.ToUpper(strings.TrimSpace(p.tags[p.pos].Value))
	p.pos++

	bodyStart := p.pos
	for p.pos < len(p.tags) && !p.tags[p.pos].is(0, "ENDSEC") {
		if p.tags[p.pos].is(0, "SECTION") || p.tags[p.pos].is(0, "EOF") {
			break
		}
		p.pos++
	}
	if p.pos >= len(p.tags) || !p.tags[p.pos].is(0, "ENDSEC") {
		return p.errorf(start.Line, "section %s is not terminated", name)
	}
	body := p.tags[bodyStart:p.pos]
	p.pos++

	switch name {
	case domain.SectionEntities:
		entities, err := p.entities(body)
		if err != nil {
			return err
		}
		p.drawing.Entities = append(p.drawing.Entities, entities...)
		p.drawing.Sections = append(p.drawing.Sections, domain.Section{Name: name})
	case domain.SectionBlocks:
		blocks, err := p.blocks(body)
		if err != nil {
			return err
		}
		p.drawing.Blocks = append(p.drawing.Blocks, blocks...)
		p.drawing.Sections = append(p.drawing.Sections, domain.Section{Name: name})
	case domain.SectionTables:
		p.drawing.Layers = append(p.drawing.Layers, parseLayers(body)...)
		p.drawing.Sections = append(p.drawing.Sections, domain.Section{Name: name, Tags: plainTags(body)})
	default:
		p.drawing.Sections = append(p.drawing.Sections, domain.Section{Name: name, Tags: plainTags(body)})
	}
	return nil
}

// entities splits an ENTITIES body into entities. VERTEX/SEQEND after a POLYLINE and ATTRIB/SEQEND
// after an INSERT stay with their owner.
func (p *parser) entities(body []lineTag) ([]domain.Entity, error) {
	groups, err := p.group(body)
	if err != nil {
		return nil, err
	}
	entities := make([]domain.Entity, 0, len(groups))
	for _, group := range groups {
		entity, err := decodeEntity(p.source, group)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (p *parser) group(body []lineTag) ([][]lineTag, error) {
	var groups [][]lineTag
	owner := ""
	for i, tag := range body {
		if tag.Code != 0 {
			if len(groups) == 0 {
				return nil, p.errorf(tag.Line, "group %d before the first entity", tag.Code)
			}
			groups[len(groups)-1] = append(groups[len(groups)-1], tag)
			continue
		}
		entityType := strings.ToUpper(strings.TrimSpace(tag.Value))
		attached := false
		switch entityType {
		case "VERTEX":
			attached = owner == "POLYLINE"
		case "ATTRIB":
			attached = owner == "INSERT"
		case "SEQEND":
			attached = owner == "POLYLINE" || owner == "INSERT"
		}
		if attached && len(groups) > 0 {
			groups[len(groups)-1] = append(groups[len(groups)-1], tag)
			if entityType == "SEQEND" {
				owner = ""
			}
			continue
		}
		groups = append(groups, []lineTag{body[i]})
		owner = entityType
	}
	return groups, nil
}

func (p *parser) blocks(body []lineTag) ([]domain.Block, error) {
	var blocks []domain.Block
	for i := 0; i < len(body); {
		if !body[i].is(0, "BLOCK") {
			return nil, p.errorf(body[i].Line, "expected BLOCK, found group %d %q", body[i].Code, strings.TrimSpace(body[i].Value))
		}
		start := i
		i++
		for i < len(body) && !body[i].is(0, "ENDBLK") {
			i++
		}
		if i >= len(body) {
			return nil, p.errorf(body[start].Line, "block is not terminated by ENDBLK")
		}
		i++
		for i < len(body) && body[i].Code != 0 {
			i++
		}
		tags := plainTags(body[start+1 : i])
		blocks = append(blocks, domain.Block{Name: blockName(tags), Tags: tags})
	}
	return blocks, nil
}

func blockName(tags []domain.Tag) string {
	for _, tag := range tags {
		if tag.Code == 0 {
			break
		}
		if tag.Code == 2 {
			return strings.TrimSpace(tag.Value)
		}
	}
	return ""
}

// parseLayers reads the LAYER table of a TABLES body.
func parseLayers(body []lineTag) []domain.Layer {
	var layers []domain.Layer
	inLayerTable := false
	var current *domain.Layer
	flush := func() {
		if current != nil && current.Name != "" {
			layers = append(layers, *current)
		}
		current = nil
	}
	for i, tag := range body {
		switch {
		case tag.is(0, "TABLE"):
			flush()
			inLayerTable = i+1 < len(body) && body[i+1].is(2, "LAYER")
		case tag.is(0, "ENDTAB"):
			flush()
			inLayerTable = false
		case !inLayerTable:
		case tag.is(0, "LAYER"):
			flush()
			current = &domain.Layer{Color: 7}
		case tag.Code == 0:
			flush()
		case current == nil:
		case tag.Code == 2:
			current.Name = strings.TrimSpace(tag.Value)
		case tag.Code == 62:
			if color, err := parseInt(tag.Value); err == nil {
				current.Color = color
			}
		}
	}
	flush()
	return layers
}

func plainTags(tags []lineTag) []domain.Tag {
	out := make([]domain.Tag, len(tags))
	for i, tag := range tags {
		out[i] = tag.Tag
	}
	return out
}
