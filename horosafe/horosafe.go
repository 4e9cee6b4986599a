// Package horosafe guards the inputs neetextract receives from API clients:
// file paths that must stay under a served root, and request bodies that
// must stay small.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxRequestBody caps JSON request bodies (64 KiB).
const MaxRequestBody int64 = 64 << 10

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrNotPDF is returned when a user-supplied path does not name a .pdf file.
var ErrNotPDF = errors.New("horosafe: not a .pdf path")

// SafePath validates that joining base and userInput does not escape base.
// Returns the cleaned path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// PDFPath resolves a client-supplied PDF path. With an empty root the path
// is used as given; otherwise it is taken relative to root and must stay
// under it. Either way it must end in .pdf.
func PDFPath(root, userInput string) (string, error) {
	if !strings.EqualFold(filepath.Ext(userInput), ".pdf") {
		return "", fmt.Errorf("%w: %q", ErrNotPDF, userInput)
	}
	if root == "" {
		return filepath.Clean(userInput), nil
	}
	return SafePath(root, userInput)
}

// LimitedReadAll reads up to maxBytes from r. It returns an error if the
// input exceeds the limit.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("horosafe: input exceeds %d bytes", maxBytes)
	}
	return data, nil
}
