// Package ocr recognises the text of scanned exam pages.
//
// An Engine drives one page at a time through
//
//	Rasterizer → fixed canvas → preprocessing → PNG → Recognizer
//
// Rasterizer and Recognizer are interfaces; the tesseract and fitz
// subpackages implement them with gosseract and go-fitz. Neither is safe for
// concurrent use, so callers that want parallel OCR run one Engine per
// goroutine.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"
)

// Defaults: A4 at 300 DPI.
const (
	DefaultDPI          = 300
	DefaultCanvasWidth  = 2480
	DefaultCanvasHeight = 3508
)

var (
	// ErrClosed is returned by Recognize after Close.
	ErrClosed = errors.New("ocr: engine closed")
	// ErrRecognizerPanic is returned when the recognizer panics. The
	// recognizer is discarded; the next page gets a fresh one.
	ErrRecognizerPanic = errors.New("ocr: recognizer panicked")
)

// Recognition is the text found on one page. Confidence is the engine's
// mean word confidence, 0 to 100.
type Recognition struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer turns a PNG image into text. Implementations are not reentrant.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (Recognition, error)
	Close() error
}

// Rasterizer renders pages of one document. pageIndex is 0-based.
type Rasterizer interface {
	Rasterize(ctx context.Context, pageIndex, dpi int) (image.Image, error)
	Close() error
}

// RecognizerFactory creates a Recognizer. The Engine calls it lazily, and
// again after abandoning a recognizer that overran its deadline.
type RecognizerFactory func() (Recognizer, error)

// Config tunes an Engine.
type Config struct {
	DPI          int
	CanvasWidth  int
	CanvasHeight int
	// Preprocess applies greyscale, contrast stretch and sharpening before
	// recognition.
	Preprocess bool
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.DPI <= 0 {
		c.DPI = DefaultDPI
	}
	if c.CanvasWidth <= 0 {
		c.CanvasWidth = DefaultCanvasWidth
	}
	if c.CanvasHeight <= 0 {
		c.CanvasHeight = DefaultCanvasHeight
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine recognises pages of one document. It owns its Rasterizer and at
// most one live Recognizer; Close releases both.
type Engine struct {
	cfg           Config
	raster        Rasterizer
	newRecognizer RecognizerFactory

	mu     sync.Mutex
	rec    Recognizer
	closed bool
}

type outcome struct {
	r   Recognition
	err error
}

// NewEngine creates an Engine. No recognizer is created until the first
// page is recognised.
func NewEngine(raster Rasterizer, newRecognizer RecognizerFactory, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg, raster: raster, newRecognizer: newRecognizer}
}

// Recognize renders page pageIndex (0-based) and runs recognition on it.
// If ctx expires while recognition is running, the recognizer is abandoned:
// it is closed once its call returns and the next page gets a fresh one.
func (e *Engine) Recognize(ctx context.Context, pageIndex int) (Recognition, error) {
	if e.isClosed() {
		return Recognition{}, ErrClosed
	}
	img, err := e.raster.Rasterize(ctx, pageIndex, e.cfg.DPI)
	if err != nil {
		return Recognition{}, fmt.Errorf("ocr: rasterize page %d: %w", pageIndex+1, err)
	}

	var canvas image.Image = Fit(img, e.cfg.CanvasWidth, e.cfg.CanvasHeight)
	if e.cfg.Preprocess {
		canvas = Preprocess(canvas)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return Recognition{}, fmt.Errorf("ocr: encode page %d: %w", pageIndex+1, err)
	}

	rec, err := e.recognizer()
	if err != nil {
		return Recognition{}, err
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrRecognizerPanic, v)}
			}
		}()
		r, err := rec.Recognize(ctx, buf.Bytes())
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		if errors.Is(o.err, ErrRecognizerPanic) {
			e.discard(rec)
		}
		if o.err != nil {
			return Recognition{}, fmt.Errorf("ocr: recognize page %d: %w", pageIndex+1, o.err)
		}
		return o.r, nil
	case <-ctx.Done():
		e.abandon(rec, done)
		e.cfg.Logger.Warn("ocr: page deadline exceeded, recognizer abandoned", "page", pageIndex+1)
		return Recognition{}, fmt.Errorf("ocr: recognize page %d: %w", pageIndex+1, ctx.Err())
	}
}

// recognizer returns the live recognizer, creating one if needed.
func (e *Engine) recognizer() (Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.rec == nil {
		r, err := e.newRecognizer()
		if err != nil {
			return nil, fmt.Errorf("ocr: create recognizer: %w", err)
		}
		e.rec = r
	}
	return e.rec, nil
}

// abandon detaches rec so the next page creates a new one, and closes rec
// once its in-flight call has returned.
func (e *Engine) abandon(rec Recognizer, done <-chan outcome) {
	e.mu.Lock()
	if e.rec == rec {
		e.rec = nil
	}
	e.mu.Unlock()
	go func() {
		<-done
		if err := rec.Close(); err != nil {
			e.cfg.Logger.Warn("ocr: close abandoned recognizer", "error", err)
		}
	}()
}

// discard detaches rec and closes it. Its call has already returned.
func (e *Engine) discard(rec Recognizer) {
	e.mu.Lock()
	if e.rec == rec {
		e.rec = nil
	}
	e.mu.Unlock()
	if err := rec.Close(); err != nil {
		e.cfg.Logger.Warn("ocr: close discarded recognizer", "error", err)
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close releases the recognizer (if one was created) and the rasterizer.
// Abandoned recognizers close themselves when their call returns. It is safe
// to call twice.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	rec := e.rec
	e.rec = nil
	e.mu.Unlock()

	var errs []error
	if rec != nil {
		errs = append(errs, rec.Close())
	}
	if e.raster != nil {
		errs = append(errs, e.raster.Close())
	}
	return errors.Join(errs...)
}
