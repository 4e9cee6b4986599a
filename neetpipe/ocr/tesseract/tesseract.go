// Package tesseract implements ocr.Recognizer with gosseract (libtesseract).
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/hazyhaar/neetextract/neetpipe/ocr"
)

// DefaultLanguage is the tessdata language used when none is given.
const DefaultLanguage = "eng"

// Client wraps one gosseract client. It is not safe for concurrent use.
type Client struct {
	c *gosseract.Client
}

// New creates a recognizer for the given tessdata languages.
func New(languages ...string) (*Client, error) {
	if len(languages) == 0 {
		languages = []string{DefaultLanguage}
	}
	c := gosseract.NewClient()
	if err := c.SetLanguage(languages...); err != nil {
		c.Close()
		return nil, fmt.Errorf("tesseract: set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		c.Close()
		return nil, fmt.Errorf("tesseract: set page seg mode: %w", err)
	}
	return &Client{c: c}, nil
}

// Factory returns an ocr.RecognizerFactory creating clients for languages.
func Factory(languages ...string) ocr.RecognizerFactory {
	return func() (ocr.Recognizer, error) {
		return New(languages...)
	}
}

// Recognize runs tesseract on a PNG. Confidence is the mean of the word
// confidences. ctx is only checked before the call; libtesseract cannot be
// interrupted.
func (t *Client) Recognize(ctx context.Context, png []byte) (ocr.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Recognition{}, err
	}
	if err := t.c.SetImageFromBytes(png); err != nil {
		return ocr.Recognition{}, fmt.Errorf("tesseract: set image: %w", err)
	}
	text, err := t.c.Text()
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("tesseract: text: %w", err)
	}
	boxes, err := t.c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("tesseract: word boxes: %w", err)
	}
	return ocr.Recognition{Text: text, Confidence: meanConfidence(boxes)}, nil
}

func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}

// Close frees the tesseract handle.
func (t *Client) Close() error {
	return t.c.Close()
}
