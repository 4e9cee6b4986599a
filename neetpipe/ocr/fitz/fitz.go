// Package fitz implements ocr.Rasterizer with go-fitz (MuPDF).
package fitz

import (
	"context"
	"fmt"
	"image"

	gofitz "github.com/gen2brain/go-fitz"
)

// Document is an open PDF ready for rasterizing.
type Document struct {
	doc *gofitz.Document
}

// Open opens the PDF at path.
func Open(path string) (*Document, error) {
	d, err := gofitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("fitz: open %s: %w", path, err)
	}
	return &Document{doc: d}, nil
}

// Rasterize renders page pageIndex (0-based) at dpi.
func (d *Document) Rasterize(ctx context.Context, pageIndex, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageIndex < 0 || pageIndex >= d.doc.NumPage() {
		return nil, fmt.Errorf("fitz: page %d out of range (%d pages)", pageIndex+1, d.doc.NumPage())
	}
	img, err := d.doc.ImageDPI(pageIndex, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("fitz: render page %d: %w", pageIndex+1, err)
	}
	return img, nil
}

// Close releases the MuPDF document.
func (d *Document) Close() error {
	return d.doc.Close()
}
