package textextract

import (
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Quality captures how usable the text layer of a PDF is.
type Quality struct {
	PageCount       int     `json:"pageCount"`
	EmptyPages      int     `json:"emptyPages"`
	CharsPerPage    float64 `json:"charsPerPage"`
	PrintableRatio  float64 `json:"printableRatio"`
	WordlikeRatio   float64 `json:"wordlikeRatio"`
	HasImageStreams bool    `json:"hasImageStreams"`
}

// NeedsOCR reports whether the document looks scanned: little text next to
// embedded images, or a text layer that is mostly garbage.
func (q *Quality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

func measure(pages []string, hasImages bool) *Quality {
	q := &Quality{PageCount: len(pages), HasImageStreams: hasImages}
	total := 0
	for _, p := range pages {
		n := len([]rune(p))
		if n == 0 {
			q.EmptyPages++
		}
		total += n
	}
	if len(pages) > 0 {
		q.CharsPerPage = float64(total) / float64(len(pages))
	}
	all := strings.Join(pages, "\n")
	q.PrintableRatio = printableRatio(all)
	q.WordlikeRatio = wordlikeRatio(all)
	return q
}

// printableRatio returns the share of printable runes. Private-use runes,
// U+FFFD and control characters other than \n \r \t count as garbage.
func printableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == 0xFFFD:
		return true
	case r < 0x20 && r != '\n' && r != '\r' && r != '\t':
		return true
	}
	return false
}

// wordlikeRatio returns the share of tokens 2 to 15 runes long.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	n := 0
	for _, f := range fields {
		if l := len([]rune(f)); l >= 2 && l <= 15 {
			n++
		}
	}
	return float64(n) / float64(len(fields))
}

// hasImageStreams checks the pages' image XObjects, then the xref table.
func hasImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}
