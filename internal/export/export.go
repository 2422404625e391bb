// Package export renders the current text of a document as downloadable files.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Format identifies an export file type.
type Format string

const (
	FormatText Format = "txt"
	FormatDocx Format = "docx"
)

const baseName = "extracted_text"

// MIME types served for each format.
const (
	MIMETypeText = "text/plain; charset=utf-8"
	MIMETypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ParseFormat accepts "txt" or "docx", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText:
		return FormatText, nil
	case FormatDocx:
		return FormatDocx, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Filename returns the default download name for a format.
func (f Format) Filename() string {
	return baseName + "." + string(f)
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	if f == FormatDocx {
		return MIMETypeDocx
	}
	return MIMETypeText
}

// Render encodes text in the given format.
func Render(f Format, text string) ([]byte, error) {
	switch f {
	case FormatText:
		return PlainText(text), nil
	case FormatDocx:
		return Docx(text)
	}
	return nil, fmt.Errorf("unsupported export format %q", f)
}

// PlainText returns text as UTF-8 bytes.
func PlainText(text string) []byte {
	return []byte(text)
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// Docx builds a minimal Word document with one paragraph per line of text.
func Docx(text string) ([]byte, error) {
	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		if err := xml.EscapeText(&body, []byte(line)); err != nil {
			return nil, fmt.Errorf("failed to escape paragraph: %w", err)
		}
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name    string
		content io.Reader
	}{
		{"[Content_Types].xml", strings.NewReader(contentTypesXML)},
		{"_rels/.rels", strings.NewReader(relsXML)},
		{"word/document.xml", &body},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", p.name, err)
		}
		if _, err := io.Copy(w, p.content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize docx: %w", err)
	}
	return buf.Bytes(), nil
}
