// Package neetpipe extracts multiple-choice questions from NEET exam PDFs.
//
// A ProcessFile call runs
//
//	load → analyze → [strict gate] → page split → parse each page
//	     → OCR pages with no question → sort → dedup → answer key → result
//
// Text comes from the PDF's text layer; pages without a usable one are
// rasterized and recognised when OCR is configured. Parsing never fails:
// imperfect pages only lower the yield. Only document-level problems
// (unreadable file, strict-mode mismatch) fail the call, and even then a
// Result is returned with the message in Errors.
//
// Usage:
//
//	cfg := neetpipe.DefaultConfig()
//	cfg.NewRasterizer = func(path string) (ocr.Rasterizer, error) { return fitz.Open(path) }
//	cfg.NewRecognizer = tesseract.Factory("eng")
//	res := neetpipe.New(cfg).ProcessFile(ctx, "/papers/neet-2024.pdf")
package neetpipe

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/hazyhaar/neetextract/neetpipe/internal/analyze"
	"github.com/hazyhaar/neetextract/neetpipe/internal/dedup"
	"github.com/hazyhaar/neetextract/neetpipe/internal/parse"
	"github.com/hazyhaar/neetextract/neetpipe/internal/textextract"
)

// Pipeline is the question extraction engine. It holds no per-document
// state and is safe for concurrent use; every ProcessFile call owns its own
// OCR engines.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	parser *parse.Parser
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		parser: parse.New(cfg.Logger),
	}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Analyze classifies the document at path without parsing questions.
func (p *Pipeline) Analyze(ctx context.Context, path string) (DocumentAnalysis, error) {
	src, err := textextract.Load(ctx, path, p.cfg.MaxFileSize)
	if err != nil {
		return analyze.Empty(), err
	}
	return analyze.Analyze(src.Text()), nil
}

// ParseText parses the text of one page (1-based) with the pipeline's
// parser. Nothing is deduplicated.
func (p *Pipeline) ParseText(text string, pageNumber int) []Question {
	qs := p.parser.Page(text, pageNumber)
	if qs == nil {
		return []Question{}
	}
	return qs
}

// ProcessFile extracts the questions of the PDF at path. It always returns
// a Result; document-level failures are reported in Result.Errors.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) *Result {
	start := time.Now()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	res, err := p.safeProcess(ctx, path)
	if err != nil {
		p.logger.Error("neetpipe: document failed", "path", path, "error", err)
		res = failed(err)
	}
	res.Metadata.ProcessingTimeMS = time.Since(start).Milliseconds()
	p.logger.Info("neetpipe: processed",
		"path", path,
		"questions", res.Metadata.QuestionsFound,
		"pages", res.Metadata.TotalPages,
		"ocr_pages", res.Metadata.OCRPagesAttempted,
		"errors", len(res.Errors),
		"duration_ms", res.Metadata.ProcessingTimeMS,
	)
	return res
}

// safeProcess runs process, turning a panic in any stage into an error.
func (p *Pipeline) safeProcess(ctx context.Context, path string) (res *Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Error("neetpipe: panic", "path", path, "panic", v, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("neetpipe: panic: %v", v)
		}
	}()
	return p.process(ctx, path)
}

func (p *Pipeline) process(ctx context.Context, path string) (*Result, error) {
	res := &Result{Questions: []Question{}, Errors: []string{}, Warnings: []string{}}

	src, err := textextract.Load(ctx, path, p.cfg.MaxFileSize)
	if err != nil {
		return nil, err
	}

	analysis := analyze.Analyze(src.Text())
	if p.cfg.StrictNEETFormat && !analysis.IsNEETFormat {
		return nil, fmt.Errorf("%w: no NEET marker found in %s", ErrNotNEETFormat, path)
	}
	res.Metadata.DocumentAnalysis = analysis

	quality := src.Quality()
	res.Metadata.ExtractionQuality = quality
	if quality.NeedsOCR() && !p.ocrEnabled() {
		res.Warnings = append(res.Warnings, "text layer looks scanned; enable OCR for better yield")
	}

	doc := src.Extract(textextract.Options{SkipInstructionPages: p.cfg.SkipInstructionPages})
	res.Metadata.TotalPages = doc.PageCount

	limit := doc.PageCount
	if p.cfg.MaxPages > 0 && p.cfg.MaxPages < limit {
		limit = p.cfg.MaxPages
	}

	var questions []Question
	var ocrPages []int
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("timeout: stopped after %d of %d pages", i, limit))
			res.partial = true
			break
		}
		res.Metadata.PagesProcessed++
		if doc.Skipped[i] {
			res.Metadata.PagesSkipped++
			continue
		}
		qs := p.parser.Page(doc.PageTexts[i], i+1)
		if len(qs) == 0 {
			if p.cfg.UseOCR {
				ocrPages = append(ocrPages, i)
			}
			continue
		}
		questions = append(questions, qs...)
	}

	if len(ocrPages) > 0 {
		if !p.ocrEnabled() {
			res.Warnings = append(res.Warnings, fmt.Sprintf("ocr: no engine configured, %d pages without text questions", len(ocrPages)))
		} else {
			out := p.runOCR(ctx, path, ocrPages)
			questions = append(questions, out.questions...)
			res.Metadata.OCRPagesAttempted = out.attempted
			res.Metadata.OCRPagesAccepted = out.accepted
			res.Warnings = append(res.Warnings, out.warnings()...)
			res.partial = res.partial || out.failed > 0 || out.timedOut
		}
	}

	slices.SortStableFunc(questions, func(a, b Question) int {
		return cmp.Or(cmp.Compare(a.PageNumber, b.PageNumber), cmp.Compare(a.QuestionNumber, b.QuestionNumber))
	})
	questions = dedup.Questions(questions)
	dedup.UniqueIDs(questions)

	if p.cfg.ParseAnswerKey && analysis.HasSolutions {
		key := parse.AnswerKey(doc.Text)
		res.Metadata.AnswersApplied = parse.ApplyAnswerKey(questions, key)
	}

	res.Questions = questions
	res.Metadata.QuestionsFound = len(questions)
	res.Metadata.AverageConfidence = averageConfidence(questions)
	res.Metadata.PagesWithQuestions = countPages(questions)
	return res, nil
}

func (p *Pipeline) ocrEnabled() bool {
	return p.cfg.UseOCR && p.cfg.NewRasterizer != nil && p.cfg.NewRecognizer != nil
}

// Fingerprint identifies the settings that shape a result. Two pipelines
// with the same fingerprint extract the same questions from the same file.
func (p *Pipeline) Fingerprint() string {
	c := p.cfg
	data, _ := json.Marshal([]any{
		p.ocrEnabled(),
		c.PreprocessImages,
		c.ConfidenceThreshold,
		c.MaxPages,
		c.SkipInstructionPages,
		c.EnableMathFormulaParsing,
		c.StrictNEETFormat,
		c.ParseAnswerKey,
		c.OCRDPI,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func averageConfidence(qs []Question) float64 {
	if len(qs) == 0 {
		return 0
	}
	sum := 0.0
	for _, q := range qs {
		sum += q.Confidence
	}
	return sum / float64(len(qs))
}

func countPages(qs []Question) int {
	seen := map[int]bool{}
	for _, q := range qs {
		seen[q.PageNumber] = true
	}
	return len(seen)
}
