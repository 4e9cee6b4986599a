package neetpipe

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/hazyhaar/neetextract/neetpipe/ocr"
	"golang.org/x/text/unicode/norm"
)

// ocrOutcome gathers the per-page OCR results of one document.
type ocrOutcome struct {
	questions []Question
	attempted int
	accepted  int
	failed    int
	rejected  int
	timedOut  bool
}

func (o *ocrOutcome) warnings() []string {
	var w []string
	if o.failed > 0 {
		w = append(w, fmt.Sprintf("ocr: %d of %d pages failed", o.failed, o.attempted))
	}
	if o.rejected > 0 {
		w = append(w, fmt.Sprintf("ocr: %d pages below confidence threshold", o.rejected))
	}
	if o.timedOut {
		w = append(w, "timeout: ocr stopped before all pages were recognised")
	}
	return w
}

// runOCR recognises pages (0-based indexes) with OCRWorkers workers, each
// owning one engine. Results are joined here; ordering is restored by the
// caller's sort.
func (p *Pipeline) runOCR(ctx context.Context, path string, pages []int) *ocrOutcome {
	workers := min(p.cfg.OCRWorkers, len(pages))
	out := &ocrOutcome{}
	var mu sync.Mutex

	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var eng *ocr.Engine
			defer func() {
				if eng != nil {
					if err := eng.Close(); err != nil {
						p.logger.Warn("neetpipe: close ocr engine", "error", err)
					}
				}
			}()
			for idx := range work {
				if eng == nil {
					e, err := p.newEngine(path)
					if err != nil {
						p.logger.Warn("neetpipe: ocr unavailable", "path", path, "error", err)
						mu.Lock()
						out.attempted++
						out.failed++
						mu.Unlock()
						continue
					}
					eng = e
				}
				qs, status := p.ocrPage(ctx, eng, idx)
				mu.Lock()
				out.attempted++
				switch status {
				case pageAccepted:
					out.accepted++
					out.questions = append(out.questions, qs...)
				case pageRejected:
					out.rejected++
				case pageFailed:
					out.failed++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, idx := range pages {
		select {
		case work <- idx:
		case <-ctx.Done():
			out.timedOut = true
			break feed
		}
	}
	close(work)
	wg.Wait()
	return out
}

func (p *Pipeline) newEngine(path string) (eng *ocr.Engine, err error) {
	defer func() {
		if v := recover(); v != nil {
			eng, err = nil, fmt.Errorf("open rasterizer: panic: %v", v)
		}
	}()
	raster, err := p.cfg.NewRasterizer(path)
	if err != nil {
		return nil, fmt.Errorf("open rasterizer: %w", err)
	}
	return ocr.NewEngine(raster, p.cfg.NewRecognizer, ocr.Config{
		DPI:        p.cfg.OCRDPI,
		Preprocess: p.cfg.PreprocessImages,
		Logger:     p.logger,
	}), nil
}

type pageStatus int

const (
	pageAccepted pageStatus = iota
	pageRejected
	pageFailed
)

// ocrPage recognises one page and parses its text. Pages whose engine
// confidence is under the threshold are discarded unparsed; accepted
// questions get Source ocr and a confidence no higher than the engine's.
func (p *Pipeline) ocrPage(ctx context.Context, eng *ocr.Engine, idx int) (qs []Question, status pageStatus) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Warn("neetpipe: ocr page panicked", "page", idx+1, "panic", v)
			qs, status = nil, pageFailed
		}
	}()
	if p.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PageTimeout)
		defer cancel()
	}

	rec, err := eng.Recognize(ctx, idx)
	if err != nil {
		p.logger.Warn("neetpipe: ocr page failed", "page", idx+1, "error", err)
		return nil, pageFailed
	}

	conf := math.Max(0, math.Min(1, rec.Confidence/100))
	if conf < p.cfg.ConfidenceThreshold {
		p.logger.Debug("neetpipe: ocr below confidence threshold",
			"page", idx+1, "confidence", conf, "threshold", p.cfg.ConfidenceThreshold)
		return nil, pageRejected
	}

	qs = p.parser.Page(norm.NFC.String(rec.Text), idx+1)
	for i := range qs {
		qs[i].Confidence = math.Min(qs[i].Confidence, conf)
		qs[i].Source = SourceOCR
	}
	p.logger.Debug("neetpipe: ocr page parsed", "page", idx+1, "confidence", conf, "questions", len(qs))
	return qs, pageAccepted
}
