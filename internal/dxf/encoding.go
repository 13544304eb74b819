package dxf

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/rpattn/dxfdiff/internal/domain"
)

var (
	utf8BOM         = []byte{0xEF, 0xBB, 0xBF}
	codepagePattern = regexp.MustCompile(`\$DWGCODEPAGE\s*\r?\n\s*3\s*\r?\n([^\r\n]*)`)
	versionPattern  = regexp.MustCompile(`\$ACADVER\s*\r?\n\s*1\s*\r?\n([^\r\n]*)`)
)

// detectEncoding picks the text encoding of a raw DXF payload. Files from AutoCAD 2007 on are UTF-8;
// older files use the code page named in $DWGCODEPAGE.
func detectEncoding(data []byte) string {
	codepage := ""
	if match := codepagePattern.FindSubmatch(data); match != nil {
		codepage = strings.ToUpper(strings.TrimSpace(string(match[1])))
	}
	legacy := false
	if match := versionPattern.FindSubmatch(data); match != nil {
		version := strings.ToUpper(strings.TrimSpace(string(match[1])))
		legacy = version != "" && version < "AC1021"
	}

	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return domain.EncodingUTF8
	case legacy && codepage == domain.EncodingShiftJIS:
		// Pre-2007 files are never UTF-8, even when their bytes happen to validate as UTF-8.
		return domain.EncodingShiftJIS
	case utf8.Valid(data):
		return domain.EncodingUTF8
	case codepage == domain.EncodingShiftJIS:
		return domain.EncodingShiftJIS
	}
	return domain.EncodingLatin1
}

func textEncoding(name string) encoding.Encoding {
	switch name {
	case domain.EncodingShiftJIS:
		return japanese.ShiftJIS
	case domain.EncodingLatin1:
		return charmap.Windows1252
	default:
		return nil
	}
}

func decodeText(data []byte, name string) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	enc := textEncoding(name)
	if enc == nil {
		return string(data), nil
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// encodingWriter wraps w so that text is written in the named encoding. Close flushes the encoder
// but does not close w.
func encodingWriter(w io.Writer, name string) io.WriteCloser {
	enc := textEncoding(name)
	if enc == nil {
		return nopWriteCloser{w}
	}
	return transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder()))
}
