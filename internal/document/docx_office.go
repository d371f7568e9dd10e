package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/unidoc/unioffice/common/license"
	office "github.com/unidoc/unioffice/document"
)

// SetOfficeLicense registers the metered key needed by the docx_unioffice strategy.
func SetOfficeLicense(key string) error {
	if err := license.SetMeteredKey(strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("set unioffice license: %w", err)
	}
	return nil
}

// docxOffice reads the document through the full WordprocessingML model. It needs
// an intact archive, so damaged files fall through to the zip and raw strategies.
type docxOffice struct{}

func (docxOffice) Name() string { return "docx_unioffice" }

func (docxOffice) Extract(ctx context.Context, doc RawDocument) (Candidate, error) {
	d, err := office.Read(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return Candidate{}, fmt.Errorf("read docx: %w", err)
	}
	defer d.Close()

	var b strings.Builder
	for _, para := range d.Paragraphs() {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		for _, run := range para.Runs() {
			b.WriteString(run.Text())
		}
		b.WriteByte('\n')
	}

	return Candidate{Text: b.String(), PageCount: 1}, nil
}
