// Package textextract reads the text layer of a PDF page by page.
//
// Load decodes the file once with pdfcpu; pages whose content streams show no
// text are retried with ledongthuc/pdf, which resolves more font encodings.
// Extract then applies the page skip policy while keeping one slot per page,
// so PageTexts[i] is always page i+1.
package textextract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxSize bounds the PDF files Load accepts when no limit is given.
const DefaultMaxSize = 100 << 20

// instructionPageRe marks pages that carry exam instructions, not questions.
var instructionPageRe = regexp.MustCompile(`(?i)instruction|direction|read\s+carefully|before\s+answering|marking\s+scheme|time\s+allowed`)

// Source is a decoded PDF: the NFC-normalised text of every page.
type Source struct {
	pages   []string
	quality *Quality
}

// Options controls Extract.
type Options struct {
	// SkipInstructionPages blanks the cover page and pages that read like
	// exam instructions.
	SkipInstructionPages bool
}

// Document is the per-page text handed to the parser.
type Document struct {
	// Text is every page, unskipped, joined by newlines.
	Text      string
	PageCount int
	// PageTexts has exactly PageCount entries; skipped pages are "".
	PageTexts []string
	// Skipped marks the pages blanked by the skip policy.
	Skipped []bool
}

// Load reads and decodes the PDF at path. Files larger than maxSize
// (DefaultMaxSize when maxSize <= 0) are rejected.
func Load(ctx context.Context, path string, maxSize int64) (*Source, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("textextract: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("textextract: %s is a directory", path)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("textextract: file too large (%d bytes, max %d)", info.Size(), maxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("textextract: %w", err)
	}
	return Decode(ctx, data)
}

// Decode is Load for PDF bytes already in memory.
func Decode(ctx context.Context, data []byte) (*Source, error) {
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("textextract: pdfcpu read: %w", err)
	}

	fb := &fallback{data: data}
	pages := make([]string, pctx.PageCount)
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("textextract: %w", err)
		}
		text := pageText(pctx, i+1)
		if text == "" {
			text = fb.page(i + 1)
		}
		pages[i] = text
	}
	return newSource(pages, hasImageStreams(pctx)), nil
}

// newSource normalizes page texts and measures their quality.
func newSource(pages []string, hasImages bool) *Source {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = normalize(p)
	}
	return &Source{pages: out, quality: measure(out, hasImages)}
}

func normalize(s string) string { return norm.NFC.String(s) }

// PageCount is the number of pages in the document.
func (s *Source) PageCount() int { return len(s.pages) }

// Text is the raw text of every page joined by newlines.
func (s *Source) Text() string { return strings.Join(s.pages, "\n") }

// Quality describes the text layer.
func (s *Source) Quality() *Quality { return s.quality }

// Extract applies opts and returns one text slot per page.
func (s *Source) Extract(opts Options) *Document {
	doc := &Document{
		Text:      s.Text(),
		PageCount: len(s.pages),
		PageTexts: make([]string, len(s.pages)),
		Skipped:   make([]bool, len(s.pages)),
	}
	for i, p := range s.pages {
		if skip(i, p, opts) {
			doc.Skipped[i] = true
			continue
		}
		doc.PageTexts[i] = p
	}
	return doc
}

// skip reports whether page index i is the cover page or an instruction page.
func skip(i int, text string, opts Options) bool {
	return opts.SkipInstructionPages && (i == 0 || instructionPageRe.MatchString(text))
}

// pageText reads the text operators of one page's content streams.
func pageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return streamText(data)
}

// fallback reads pages with ledongthuc/pdf, opened on first use.
type fallback struct {
	data   []byte
	reader *pdf.Reader
	failed bool
}

func (f *fallback) page(pageNr int) (text string) {
	if f.failed {
		return ""
	}
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if f.reader == nil {
		r, err := pdf.NewReader(bytes.NewReader(f.data), int64(len(f.data)))
		if err != nil {
			f.failed = true
			return ""
		}
		f.reader = r
	}
	if pageNr > f.reader.NumPage() {
		return ""
	}
	p := f.reader.Page(pageNr)
	if p.V.IsNull() {
		return ""
	}
	t, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(t)
}
