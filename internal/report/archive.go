package report

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// Archive entry names besides the merged drawings.
const (
	ReportName   = "report.xlsx"
	ManifestName = "manifest.yaml"
	RegistryName = "Parent-Child_list.xlsx"
)

// RegistryWriter serialises the relationship registry into the archive.
type RegistryWriter interface {
	Save(w io.Writer) error
}

// ArchiveOptions configures WriteArchive.
type ArchiveOptions struct {
	Colors domain.Colors
	// Registry, when set, is included as Parent-Child_list.xlsx.
	Registry  RegistryWriter
	CreatedAt time.Time
}

type manifestFile struct {
	Name   string `yaml:"name"`
	Size   int    `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

type manifestPair struct {
	Name          string          `yaml:"name"`
	NewDrawing    string          `yaml:"new_drawing"`
	SourceDrawing string          `yaml:"source_drawing"`
	Relation      domain.Relation `yaml:"relation"`
	Success       bool            `yaml:"success"`
	Error         string          `yaml:"error,omitempty"`
	Output        string          `yaml:"output,omitempty"`
	Counts        domain.Counts   `yaml:"counts"`
	ChangedLabels int             `yaml:"changed_labels"`
}

type manifest struct {
	CreatedAt time.Time      `yaml:"created_at"`
	Colors    domain.Colors  `yaml:"colors"`
	Pairs     []manifestPair `yaml:"pairs"`
	Files     []manifestFile `yaml:"files"`
}

type archiveFile struct {
	name string
	data []byte
}

// WriteArchive writes a ZIP holding every successful merged drawing, the results workbook, the
// registry when given, and a manifest describing the pairs and files.
func WriteArchive(w io.Writer, results []domain.ComparisonResult, opts ArchiveOptions) error {
	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if opts.Colors == (domain.Colors{}) {
		opts.Colors = domain.DefaultColors()
	}

	var files []archiveFile
	m := manifest{CreatedAt: createdAt, Colors: opts.Colors}
	for _, result := range results {
		pair := manifestPair{
			Name:          result.PairName(),
			NewDrawing:    result.NewID,
			SourceDrawing: result.SourceID,
			Relation:      result.Relation,
			Success:       result.Success,
			Error:         result.Error,
			Counts:        result.Counts,
			ChangedLabels: len(result.ChangedLabels),
		}
		if result.Success && len(result.MergedDXF) > 0 {
			pair.Output = result.OutputFilename
			files = append(files, archiveFile{name: result.OutputFilename, data: result.MergedDXF})
		}
		m.Pairs = append(m.Pairs, pair)
	}

	var workbook bytes.Buffer
	if err := WriteWorkbook(&workbook, results, opts.Colors); err != nil {
		return err
	}
	files = append(files, archiveFile{name: ReportName, data: workbook.Bytes()})

	if opts.Registry != nil {
		var registry bytes.Buffer
		if err := opts.Registry.Save(&registry); err != nil {
			return fmt.Errorf("failed to write registry: %w", err)
		}
		files = append(files, archiveFile{name: RegistryName, data: registry.Bytes()})
	}

	for _, file := range files {
		sum := sha256.Sum256(file.data)
		m.Files = append(m.Files, manifestFile{Name: file.name, Size: len(file.data), SHA256: hex.EncodeToString(sum[:])})
	}
	sort.Slice(m.Files, func(i, j int) bool {
		return m.Files[i].Name < m.Files[j].Name
	})
	manifestData, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	files = append(files, archiveFile{name: ManifestName, data: manifestData})

	zw := zip.NewWriter(w)
	for _, file := range files {
		header := &zip.FileHeader{
			Name:     file.name,
			Method:   zip.Deflate,
			Modified: createdAt,
		}
		writer, err := zw.CreateHeader(header)
		if err != nil {
			_ = zw.Close()
			return err
		}
		if _, err := writer.Write(file.data); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}
