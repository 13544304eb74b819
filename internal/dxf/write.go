package dxf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// WriteFile writes the drawing to path through a temporary file in the same directory, so a
// failed write never leaves a partial drawing at path.
func WriteFile(d *domain.Drawing, path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dxfdiff-*.tmp")
	if err != nil {
		return &domain.IOError{Op: "create", Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := Write(tmp, d); err != nil {
		return &domain.IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &domain.IOError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		cleanup = false
		return &domain.IOError{Op: "rename", Path: path, Err: err}
	}
	cleanup = false
	return nil
}

// Marshal renders the drawing into memory.
func Marshal(d *domain.Drawing) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders the drawing as ASCII DXF in the drawing's own text encoding.
func Write(w io.Writer, d *domain.Drawing) error {
	encoded := encodingWriter(w, d.Encoding)
	out := &tagWriter{w: bufio.NewWriter(encoded)}

	handleSeed := d.MaxHandle() + 1
	tableHandles := &handleAllocator{next: handleSeed}
	layers := missingLayers(d)
	blockRecords := missingBlockRecords(d)
	owners := make(map[string]string, len(blockRecords))
	for _, name := range blockRecords {
		owners[name] = tableHandles.allocate()
	}
	sections := sectionsToWrite(d)
	for _, section := range sections {
		out.tag(0, "SECTION")
		out.tag(2, section.Name)
		switch section.Name {
		case domain.SectionHeader:
			out.tags(withHandleSeed(section.Tags, handleSeed+uint64(len(layers)+len(blockRecords))))
		case domain.SectionTables:
			tags := withLayers(section.Tags, layers, tableHandles)
			out.tags(withBlockRecords(tags, blockRecords, owners))
		case domain.SectionBlocks:
			for _, block := range d.Blocks {
				tags := block.Tags
				if owner, ok := owners[block.Name]; ok {
					tags = withOwner(tags, owner)
				}
				out.tag(0, "BLOCK")
				out.tags(tags)
			}
		case domain.SectionEntities:
			for _, entity := range d.Entities {
				entityType, tags := entity.Type, entity.Tags
				if tags == nil {
					entityType, tags = encodeEntity(entity)
				}
				out.tag(0, entityType)
				out.tags(tags)
			}
		default:
			out.tags(section.Tags)
		}
		out.tag(0, "ENDSEC")
	}
	out.tag(0, "EOF")

	if out.err != nil {
		return out.err
	}
	if err := out.w.Flush(); err != nil {
		return err
	}
	return encoded.Close()
}

type tagWriter struct {
	w   *bufio.Writer
	err error
}

func (t *tagWriter) tag(code int, value string) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, "%3d\n%s\n", code, value)
}

func (t *tagWriter) tags(tags []domain.Tag) {
	for _, tag := range tags {
		t.tag(tag.Code, tag.Value)
	}
}

type handleAllocator struct {
	next uint64
}

func (a *handleAllocator) allocate() string {
	handle := strings.ToUpper(strconv.FormatUint(a.next, 16))
	a.next++
	return handle
}

// sectionsToWrite returns the drawing's sections, adding TABLES, BLOCKS and ENTITIES when the
// drawing has content for them but no section to hold it.
func sectionsToWrite(d *domain.Drawing) []domain.Section {
	sections := append([]domain.Section(nil), d.Sections...)
	has := func(name string) bool {
		for _, section := range sections {
			if section.Name == name {
				return true
			}
		}
		return false
	}
	insertBefore := func(section domain.Section, before ...string) {
		for i, existing := range sections {
			for _, name := range before {
				if existing.Name == name {
					sections = append(sections[:i], append([]domain.Section{section}, sections[i:]...)...)
					return
				}
			}
		}
		sections = append(sections, section)
	}
	if !has(domain.SectionEntities) {
		insertBefore(domain.Section{Name: domain.SectionEntities}, "OBJECTS", "THUMBNAILIMAGE")
	}
	if len(d.Blocks) > 0 && !has(domain.SectionBlocks) {
		insertBefore(domain.Section{Name: domain.SectionBlocks}, domain.SectionEntities)
	}
	if len(missingLayers(d)) > 0 && !has(domain.SectionTables) {
		insertBefore(domain.Section{Name: domain.SectionTables}, domain.SectionBlocks, domain.SectionEntities)
	}
	return sections
}

// missingLayers lists declared layers that have no record in the raw LAYER table.
func missingLayers(d *domain.Drawing) []domain.Layer {
	declared := map[string]bool{}
	if tables, ok := d.Section(domain.SectionTables); ok {
		names, _, _ := tableRecords(tables.Tags, "LAYER")
		for _, name := range names {
			declared[strings.ToUpper(name)] = true
		}
	}
	var missing []domain.Layer
	for _, layer := range d.Layers {
		if !declared[strings.ToUpper(layer.Name)] {
			missing = append(missing, layer)
		}
	}
	return missing
}

// missingBlockRecords lists the blocks without a BLOCK_RECORD entry. Drawings without a
// BLOCK_RECORD table (R12 and older) do not get one.
func missingBlockRecords(d *domain.Drawing) []string {
	tables, ok := d.Section(domain.SectionTables)
	if !ok {
		return nil
	}
	names, _, found := tableRecords(tables.Tags, "BLOCK_RECORD")
	if !found {
		return nil
	}
	declared := map[string]bool{}
	for _, name := range names {
		declared[strings.ToUpper(name)] = true
	}
	var missing []string
	for _, block := range d.Blocks {
		key := strings.ToUpper(block.Name)
		if block.Name == "" || declared[key] {
			continue
		}
		declared[key] = true
		missing = append(missing, block.Name)
	}
	return missing
}

// tableRecords reads the record names and the table handle of one table in a TABLES body.
// found is false when the table is absent.
func tableRecords(tags []domain.Tag, table string) (names []string, handle string, found bool) {
	inTable, inHeader, inRecord := false, false, false
	for i, tag := range tags {
		value := strings.TrimSpace(tag.Value)
		switch {
		case tag.Code == 0 && value == "TABLE":
			inTable = i+1 < len(tags) && tags[i+1].Code == 2 && strings.TrimSpace(tags[i+1].Value) == table
			inHeader = inTable
			inRecord = false
			found = found || inTable
		case tag.Code == 0:
			inHeader = false
			inRecord = inTable && value == table
		case inHeader && tag.Code == 5:
			handle = value
		case inRecord && tag.Code == 2:
			names = append(names, value)
			inRecord = false
		}
	}
	return names, handle, found
}

// insertRecords places records before the ENDTAB of table, or appends a new table holding them.
func insertRecords(tags []domain.Tag, table string, records []domain.Tag, count int) []domain.Tag {
	inTable := false
	for i, tag := range tags {
		value := strings.TrimSpace(tag.Value)
		if tag.Code == 0 && value == "TABLE" {
			inTable = i+1 < len(tags) && tags[i+1].Code == 2 && strings.TrimSpace(tags[i+1].Value) == table
		}
		if inTable && tag.Code == 0 && value == "ENDTAB" {
			out := make([]domain.Tag, 0, len(tags)+len(records))
			out = append(out, tags[:i]...)
			out = append(out, records...)
			return append(out, tags[i:]...)
		}
	}

	out := append([]domain.Tag(nil), tags...)
	out = append(out, domain.Tag{Code: 0, Value: "TABLE"}, domain.Tag{Code: 2, Value: table}, domain.Tag{Code: 70, Value: strconv.Itoa(count)})
	out = append(out, records...)
	return append(out, domain.Tag{Code: 0, Value: "ENDTAB"})
}

func withLayers(tags []domain.Tag, layers []domain.Layer, handles *handleAllocator) []domain.Tag {
	if len(layers) == 0 {
		return tags
	}
	records := make([]domain.Tag, 0, len(layers)*8)
	for _, layer := range layers {
		records = append(records,
			domain.Tag{Code: 0, Value: "LAYER"},
			domain.Tag{Code: 5, Value: handles.allocate()},
			domain.Tag{Code: 100, Value: "AcDbSymbolTableRecord"},
			domain.Tag{Code: 100, Value: "AcDbLayerTableRecord"},
			domain.Tag{Code: 2, Value: layer.Name},
			domain.Tag{Code: 70, Value: "0"},
			domain.Tag{Code: 62, Value: strconv.Itoa(layer.Color)},
			domain.Tag{Code: 6, Value: "CONTINUOUS"},
		)
	}
	return insertRecords(tags, "LAYER", records, len(layers))
}

// withBlockRecords adds a BLOCK_RECORD entry, with the handle from owners, for each named block.
func withBlockRecords(tags []domain.Tag, names []string, owners map[string]string) []domain.Tag {
	if len(names) == 0 {
		return tags
	}
	_, tableHandle, _ := tableRecords(tags, "BLOCK_RECORD")
	records := make([]domain.Tag, 0, len(names)*9)
	for _, name := range names {
		records = append(records, domain.Tag{Code: 0, Value: "BLOCK_RECORD"}, domain.Tag{Code: 5, Value: owners[name]})
		if tableHandle != "" {
			records = append(records, domain.Tag{Code: 330, Value: tableHandle})
		}
		records = append(records,
			domain.Tag{Code: 100, Value: "AcDbSymbolTableRecord"},
			domain.Tag{Code: 100, Value: "AcDbBlockTableRecord"},
			domain.Tag{Code: 2, Value: name},
			domain.Tag{Code: 70, Value: "0"},
			domain.Tag{Code: 280, Value: "1"},
			domain.Tag{Code: 281, Value: "0"},
		)
	}
	return insertRecords(tags, "BLOCK_RECORD", records, len(names))
}

// withOwner points the BLOCK header, the block's entities and its ENDBLK at the block record
// when they carry no owner of their own. The first group of tags is the BLOCK header.
func withOwner(tags []domain.Tag, owner string) []domain.Tag {
	out := make([]domain.Tag, 0, len(tags)+8)
	for start := 0; start < len(tags); {
		end := start + 1
		for end < len(tags) && tags[end].Code != 0 {
			end++
		}
		out = appendOwned(out, tags[start:end], owner)
		start = end
	}
	return out
}

func appendOwned(out, group []domain.Tag, owner string) []domain.Tag {
	at := 0
	if group[0].Code == 0 {
		switch strings.TrimSpace(group[0].Value) {
		case "ATTRIB", "VERTEX", "SEQEND":
			// owned by the preceding INSERT or POLYLINE
			return append(out, group...)
		}
		at = 1
	}
	for i, tag := range group {
		switch tag.Code {
		case 330:
			return append(out, group...)
		case 5:
			at = i + 1
		}
	}
	out = append(out, group[:at]...)
	out = append(out, domain.Tag{Code: 330, Value: owner})
	return append(out, group[at:]...)
}

// withHandleSeed raises $HANDSEED so it stays above every handle in the drawing.
func withHandleSeed(tags []domain.Tag, seed uint64) []domain.Tag {
	for i, tag := range tags {
		if tag.Code != 9 || strings.TrimSpace(tag.Value) != "$HANDSEED" || i+1 >= len(tags) {
			continue
		}
		current, err := strconv.ParseUint(strings.TrimSpace(tags[i+1].Value), 16, 64)
		if err == nil && current >= seed {
			return tags
		}
		out := append([]domain.Tag(nil), tags...)
		out[i+1].Value = strings.ToUpper(strconv.FormatUint(seed, 16))
		return out
	}
	return tags
}
