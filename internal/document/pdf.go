package document

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/ledongthuc/pdf"
)

const (
	// maxInflatedStream bounds the size of a single decompressed content stream.
	maxInflatedStream = 16 << 20
	// kerningSpace is the TJ adjustment (in thousandths of a text unit) treated as a word gap.
	kerningSpace = -200
	maxOperands  = 64
	// maxArrayDepth bounds nested [ ] arrays in content streams. Deeper arrays are skipped.
	maxArrayDepth = 32
	// maxObjectNesting bounds nested arrays and dictionaries handed to the object model reader.
	maxObjectNesting = 256
)

var (
	pageObjectRe = regexp.MustCompile(`/Type\s*/Page\b`)
	asciiRunRe   = regexp.MustCompile(`[\x20-\x7E]{10,}`)
	pdfSyntaxRe  = regexp.MustCompile(`(?i)(\bobj\b|endobj|endstream|\bstream\b|xref|trailer|startxref|%PDF|%%EOF|<<|>>|/Type|/Font|/Filter|/Length|/Subtype|/Resources|/MediaBox|/Contents|/Parent|/Kids|/ProcSet|/Encoding|/BaseFont|/XObject|/FlateDecode)`)
)

var (
	errNoPDFText      = errors.New("no text operators found")
	errPDFNestingDeep = errors.New("pdf objects nested too deeply")
)

func pdfStrategies() []Strategy {
	return []Strategy{pdfObjectModel{}, pdfContentStream{}, pdfASCIIRuns{}}
}

// countPDFPages counts page objects in the raw file. It never returns less than 1.
func countPDFPages(data []byte) int {
	n := len(pageObjectRe.FindAllIndex(data, -1))
	if n < 1 {
		return 1
	}
	return n
}

type pdfObjectModel struct{}

func (pdfObjectModel) Name() string { return "pdf_object_model" }

func (pdfObjectModel) Extract(ctx context.Context, doc RawDocument) (Candidate, error) {
	// The object reader parses nested objects recursively, and a stack overflow
	// cannot be recovered.
	if nestingExceeds(doc.Data, maxObjectNesting) {
		return Candidate{}, errPDFNestingDeep
	}

	reader, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return Candidate{}, fmt.Errorf("open pdf: %w", err)
	}

	pages := reader.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	return Candidate{Text: b.String(), PageCount: pages}, nil
}

type pdfContentStream struct{}

func (pdfContentStream) Name() string { return "pdf_content_stream" }

func (pdfContentStream) Extract(ctx context.Context, doc RawDocument) (Candidate, error) {
	pages := countPDFPages(doc.Data)

	var parts []string
	for _, segment := range contentSegments(doc.Data) {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		if text := strings.TrimSpace(scanTextOperators(segment)); text != "" {
			parts = append(parts, text)
		}
	}

	// Uncompressed files without stream markers still carry BT/ET blocks.
	if len(parts) == 0 {
		if text := strings.TrimSpace(scanTextOperators(doc.Data)); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return Candidate{PageCount: pages}, errNoPDFText
	}

	return Candidate{Text: strings.Join(parts, "\n\n"), PageCount: pages}, nil
}

type pdfASCIIRuns struct{}

func (pdfASCIIRuns) Name() string { return "pdf_ascii_runs" }

func (pdfASCIIRuns) Extract(_ context.Context, doc RawDocument) (Candidate, error) {
	runs := asciiRuns(doc.Data, pdfSyntaxRe)
	return Candidate{Text: strings.Join(runs, "\n"), PageCount: countPDFPages(doc.Data)}, nil
}

// asciiRuns returns printable ASCII runs of at least ten characters that are mostly
// letters and do not match the noise pattern.
func asciiRuns(data []byte, noise *regexp.Regexp) []string {
	var runs []string
	for _, match := range asciiRunRe.FindAll(data, -1) {
		run := strings.TrimSpace(string(match))
		if len(run) < 10 {
			continue
		}
		if noise != nil && noise.MatchString(run) {
			continue
		}
		if !mostlyLetters(run) {
			continue
		}
		runs = append(runs, run)
	}
	return runs
}

func mostlyLetters(s string) bool {
	letters, total := 0, 0
	for _, r := range s {
		if r == ' ' {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return total > 0 && letters*2 >= total
}

// contentSegments returns the payload of every stream object, inflated when it is
// zlib compressed and left as is otherwise.
func contentSegments(data []byte) [][]byte {
	var segments [][]byte
	pos := 0
	for pos < len(data) {
		idx := bytes.Index(data[pos:], []byte("stream"))
		if idx < 0 {
			break
		}
		start := pos + idx
		pos = start + len("stream")

		if start >= 3 && string(data[start-3:start]) == "end" {
			continue
		}

		body := pos
		if body < len(data) && data[body] == '\r' {
			body++
		}
		if body < len(data) && data[body] == '\n' {
			body++
		}

		end := bytes.Index(data[body:], []byte("endstream"))
		if end < 0 {
			end = len(data)
		} else {
			end += body
		}

		segments = append(segments, inflateOrRaw(data[body:end]))
		pos = end
	}
	return segments
}

func inflateOrRaw(raw []byte) []byte {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	defer zr.Close()

	// Truncated streams still yield a usable prefix.
	inflated, _ := io.ReadAll(io.LimitReader(zr, maxInflatedStream))
	if len(inflated) == 0 {
		return raw
	}
	return inflated
}

type operandKind int

const (
	operandOther operandKind = iota
	operandString
	operandNumber
	operandArray
)

type operand struct {
	kind  operandKind
	text  string
	num   float64
	items []operand
}

// nestingExceeds reports whether arrays and dictionaries in data nest deeper than
// limit. Literal strings and stream bodies are skipped.
func nestingExceeds(data []byte, limit int) bool {
	depth := 0
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case 's':
			if bytes.HasPrefix(data[i:], []byte("stream")) && !(i >= 3 && string(data[i-3:i]) == "end") {
				end := bytes.Index(data[i:], []byte("endstream"))
				if end < 0 {
					return false
				}
				i += end + len("endstream") - 1
			}
		case '(':
			i = skipLiteral(data, i+1) - 1
		case '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case '[':
			depth++
		case '<':
			if i+1 < len(data) && data[i+1] == '<' {
				depth++
				i++
			}
		case ']':
			if depth > 0 {
				depth--
			}
		case '>':
			if i+1 < len(data) && data[i+1] == '>' {
				if depth > 0 {
					depth--
				}
				i++
			}
		}
		if depth > limit {
			return true
		}
	}
	return false
}

// skipLiteral returns the position after the literal string starting at pos,
// which is just past the opening parenthesis.
func skipLiteral(data []byte, pos int) int {
	depth := 1
	for pos < len(data) {
		switch data[pos] {
		case '\\':
			pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return pos + 1
			}
		}
		pos++
	}
	return len(data)
}

// contentScanner is a minimal tokenizer for PDF content stream syntax.
type contentScanner struct {
	data  []byte
	pos   int
	depth int
}

// scanTextOperators collects the text shown by Tj, ', " and TJ inside BT...ET blocks.
func scanTextOperators(data []byte) string {
	s := &contentScanner{data: data}
	var (
		out      strings.Builder
		operands []operand
		inText   bool
	)

	emit := func(text string) {
		out.WriteString(printable(text))
	}
	newline := func() {
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
	}

	for {
		tok, ok := s.next()
		if !ok {
			break
		}
		if tok.kind != operandOther || tok.text == "" || tok.text[0] == '/' {
			operands = append(operands, tok)
			if len(operands) > maxOperands {
				operands = operands[len(operands)-maxOperands:]
			}
			continue
		}

		switch tok.text {
		case "BT":
			inText = true
		case "ET":
			if inText {
				newline()
			}
			inText = false
		case "Tj":
			if inText {
				if str, ok := lastOperand(operands, operandString); ok {
					emit(str.text)
				}
			}
		case "'", "\"":
			if inText {
				newline()
				if str, ok := lastOperand(operands, operandString); ok {
					emit(str.text)
				}
			}
		case "TJ":
			if inText {
				if arr, ok := lastOperand(operands, operandArray); ok {
					for _, item := range arr.items {
						switch item.kind {
						case operandString:
							emit(item.text)
						case operandNumber:
							if item.num < kerningSpace {
								out.WriteByte(' ')
							}
						}
					}
				}
			}
		case "T*", "TD":
			if inText {
				newline()
			}
		case "Td":
			if inText {
				if len(operands) >= 1 && operands[len(operands)-1].kind == operandNumber && operands[len(operands)-1].num != 0 {
					newline()
				} else {
					out.WriteByte(' ')
				}
			}
		case "Tm":
			if inText {
				out.WriteByte(' ')
			}
		}
		operands = operands[:0]
	}

	return out.String()
}

func lastOperand(operands []operand, kind operandKind) (operand, bool) {
	if len(operands) == 0 {
		return operand{}, false
	}
	last := operands[len(operands)-1]
	return last, last.kind == kind
}

func isPDFWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// next returns the following token. Operators and names are returned as operandOther.
func (s *contentScanner) next() (operand, bool) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isPDFWhitespace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			s.pos++
			return operand{kind: operandString, text: s.literalString()}, true
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return operand{kind: operandOther, text: "<<"}, true
			}
			s.pos++
			return operand{kind: operandString, text: s.hexString()}, true
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
		case c == '[':
			s.pos++
			if s.depth >= maxArrayDepth {
				s.skipArray()
				return operand{kind: operandArray}, true
			}
			return s.array(), true
		case c == ']', c == ')', c == '{', c == '}':
			s.pos++
		case c == '/':
			start := s.pos
			s.pos++
			s.skipRegular()
			return operand{kind: operandOther, text: string(s.data[start:s.pos])}, true
		default:
			start := s.pos
			s.skipRegular()
			if s.pos == start {
				s.pos++
				continue
			}
			word := string(s.data[start:s.pos])
			if num, err := strconv.ParseFloat(word, 64); err == nil {
				return operand{kind: operandNumber, num: num}, true
			}
			return operand{kind: operandOther, text: word}, true
		}
	}
	return operand{}, false
}

func (s *contentScanner) skipRegular() {
	for s.pos < len(s.data) && !isPDFWhitespace(s.data[s.pos]) && !isPDFDelimiter(s.data[s.pos]) {
		s.pos++
	}
}

func (s *contentScanner) array() operand {
	s.depth++
	defer func() { s.depth-- }()

	arr := operand{kind: operandArray}
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c == ']' {
			s.pos++
			return arr
		}
		if isPDFWhitespace(c) {
			s.pos++
			continue
		}
		tok, ok := s.next()
		if !ok {
			break
		}
		if tok.kind == operandString || tok.kind == operandNumber {
			arr.items = append(arr.items, tok)
		}
		if len(arr.items) > 4096 {
			break
		}
	}
	return arr
}

// skipArray moves past the array whose opening bracket was just consumed,
// without building operands.
func (s *contentScanner) skipArray() {
	depth := 1
	for s.pos < len(s.data) && depth > 0 {
		switch s.data[s.pos] {
		case '[':
			depth++
		case ']':
			depth--
		case '(':
			s.pos = skipLiteral(s.data, s.pos+1)
			continue
		}
		s.pos++
	}
}

// literalString reads a (...) string after the opening parenthesis, honouring
// nesting and backslash escapes.
func (s *contentScanner) literalString() string {
	var buf []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return decodePDFString(buf)
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '(', ')', '\\':
				buf = append(buf, e)
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data); i++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						val = val*8 + int(d-'0')
						s.pos++
					}
					buf = append(buf, byte(val))
				} else {
					buf = append(buf, e)
				}
			}
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				return decodePDFString(buf)
			}
			buf = append(buf, c)
		default:
			buf = append(buf, c)
		}
	}
	return decodePDFString(buf)
}

func (s *contentScanner) hexString() string {
	var digits []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		if isHexDigit(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	buf := make([]byte, len(digits)/2)
	for i := range buf {
		v, _ := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
		buf[i] = byte(v)
	}
	return decodePDFString(buf)
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// decodePDFString decodes UTF-16BE strings marked with a BOM and treats anything
// else as a single-byte encoding.
func decodePDFString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}

	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
}
