package document

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxBodyPart     = "word/document.xml"
	maxDocxPartSize  = 32 << 20
	localHeaderSize  = 30
	zipMethodDeflate = 8
	zipMethodStore   = 0
)

var (
	localHeaderSig = []byte("PK\x03\x04")

	rawRunRe   = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>([^<]*)</w:t>|</w:p>|<w:br\s*/>|<w:tab\s*/>`)
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe    = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	namePairRe = regexp.MustCompile(`\b[A-Z][a-z]{1,20} [A-Z][a-z]{1,20}\b`)
	yearRe     = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	xmlNoiseRe = regexp.MustCompile(`(?i)(<\?xml|xmlns|schemas\.|openxmlformats|\[Content_Types\]|word/|_rels|\.xml|\.rels|docProps|w:rsid|<w:|</w:)`)
)

var (
	errNoDocxBody   = errors.New("document body not found")
	errNoDocxFields = errors.New("no contact or career fields found")
)

func docxStrategies(office bool) []Strategy {
	strategies := []Strategy{docxZip{}, docxRawXML{}, docxFields{}}
	if office {
		return append([]Strategy{docxOffice{}}, strategies...)
	}
	return strategies
}

type docxZip struct{}

func (docxZip) Name() string { return "docx_zip" }

func (docxZip) Extract(_ context.Context, doc RawDocument) (Candidate, error) {
	archive, err := zip.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return Candidate{}, fmt.Errorf("open archive: %w", err)
	}

	for _, file := range archive.File {
		if file.Name != docxBodyPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return Candidate{}, fmt.Errorf("open %s: %w", docxBodyPart, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(rc, maxDocxPartSize))
		rc.Close()

		text, err := wordprocessingText(body)
		if text == "" {
			if readErr != nil {
				return Candidate{}, fmt.Errorf("read %s: %w", docxBodyPart, readErr)
			}
			if err != nil {
				return Candidate{}, err
			}
		}
		return Candidate{Text: text, PageCount: 1}, nil
	}

	return Candidate{}, errNoDocxBody
}

// wordprocessingText walks the XML tokens of a WordprocessingML part. Partial
// text is returned together with any decode error.
func wordprocessingText(body []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false

	var (
		b      strings.Builder
		inText bool
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), fmt.Errorf("decode %s: %w", docxBodyPart, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(el)
			}
		}
	}
}

type docxRawXML struct{}

func (docxRawXML) Name() string { return "docx_raw_xml" }

// Extract matches run elements directly in the bytes, which works for stored
// entries, and also inflates local file entries when the central directory is damaged.
func (docxRawXML) Extract(_ context.Context, doc RawDocument) (Candidate, error) {
	sources := [][]byte{doc.Data}
	sources = append(sources, localEntries(doc.Data, docxBodyPart)...)

	var best string
	for _, src := range sources {
		if text := rawRunText(src); len(text) > len(best) {
			best = text
		}
	}

	return Candidate{Text: best, PageCount: 1}, nil
}

func rawRunText(src []byte) string {
	var b strings.Builder
	for _, m := range rawRunRe.FindAllSubmatch(src, -1) {
		switch {
		case bytes.HasPrefix(m[0], []byte("</w:p")), bytes.HasPrefix(m[0], []byte("<w:br")):
			b.WriteByte('\n')
		case bytes.HasPrefix(m[0], []byte("<w:tab")):
			b.WriteByte('\t')
		default:
			b.WriteString(html.UnescapeString(string(m[1])))
		}
	}
	return strings.TrimSpace(b.String())
}

// localEntries scans for local file headers named name and returns their
// decompressed payloads, ignoring the central directory entirely.
func localEntries(data []byte, name string) [][]byte {
	var entries [][]byte
	pos := 0
	for {
		idx := bytes.Index(data[pos:], localHeaderSig)
		if idx < 0 {
			return entries
		}
		start := pos + idx
		pos = start + len(localHeaderSig)

		if start+localHeaderSize > len(data) {
			return entries
		}
		header := data[start : start+localHeaderSize]
		method := binary.LittleEndian.Uint16(header[8:10])
		compressed := int(binary.LittleEndian.Uint32(header[18:22]))
		nameLen := int(binary.LittleEndian.Uint16(header[26:28]))
		extraLen := int(binary.LittleEndian.Uint16(header[28:30]))

		nameStart := start + localHeaderSize
		payload := nameStart + nameLen + extraLen
		if payload > len(data) || string(data[nameStart:nameStart+nameLen]) != name {
			continue
		}

		end := len(data)
		if compressed > 0 && payload+compressed <= len(data) {
			end = payload + compressed
		}

		switch method {
		case zipMethodStore:
			entries = append(entries, data[payload:end])
		case zipMethodDeflate:
			fr := flate.NewReader(bytes.NewReader(data[payload:end]))
			inflated, _ := io.ReadAll(io.LimitReader(fr, maxDocxPartSize))
			fr.Close()
			if len(inflated) > 0 {
				entries = append(entries, inflated)
			}
		}
	}
}

type docxFields struct{}

func (docxFields) Name() string { return "docx_fields" }

// Extract keeps loose ASCII prose and the high-value fields a CV almost always has.
func (docxFields) Extract(_ context.Context, doc RawDocument) (Candidate, error) {
	runs := asciiRuns(doc.Data, xmlNoiseRe)
	joined := strings.Join(runs, "\n")

	emails := uniqueMatches(emailRe, joined)
	phones := uniqueMatches(phoneRe, joined)
	names := uniqueMatches(namePairRe, joined)
	years := uniqueMatches(yearRe, joined)

	if len(emails)+len(phones)+len(names)+len(years) == 0 {
		return Candidate{Text: joined, PageCount: 1}, errNoDocxFields
	}

	var b strings.Builder
	writeField := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", label, strings.Join(values, ", "))
	}
	writeField("Names", names)
	writeField("Email", emails)
	writeField("Phone", phones)
	writeField("Years", years)
	if joined != "" {
		b.WriteString("\n")
		b.WriteString(joined)
	}

	return Candidate{Text: b.String(), PageCount: 1}, nil
}

func uniqueMatches(re *regexp.Regexp, text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range re.FindAllString(text, -1) {
		m = strings.TrimSpace(m)
		if _, ok := seen[m]; ok || m == "" {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
