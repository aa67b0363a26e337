// Package pdfread wraps the native PDF libraries behind one read-only
// adapter: pdfcpu for document structure (metadata, outline, images,
// optimization) and ledongthuc/pdf for styled text runs, which pdfcpu
// does not expose. Nothing outside this package imports either library.
package pdfread

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrEncrypted is returned for password-protected documents, which are
// out of scope for conversion.
var ErrEncrypted = errors.New("PDF is encrypted")

// Metadata is the document-level information extracted during pre-flight.
type Metadata struct {
	Title        string
	Author       string
	Creator      string
	Producer     string
	CreationDate *time.Time
	ModDate      *time.Time
}

// Reader is a stateless read adapter over one PDF file.
type Reader struct {
	path   string
	ctx    *model.Context
	styled *pdf.Reader
	f      *os.File
	conf   *model.Configuration
}

// Open reads and validates the document with both libraries.
func Open(path string) (*Reader, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		if strings.Contains(err.Error(), "encrypt") || strings.Contains(err.Error(), "password") {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, styled, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading text layer of %s: %w", path, err)
	}
	return &Reader{path: path, ctx: ctx, styled: styled, f: f, conf: conf}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Path returns the source path the reader was opened on.
func (r *Reader) Path() string { return r.path }

// PageCount returns the number of pages.
func (r *Reader) PageCount() int {
	return r.ctx.PageCount
}

// FileSize returns the source file size in bytes.
func (r *Reader) FileSize() (int64, error) {
	fi, err := os.Stat(r.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Metadata extracts the info-dictionary fields. Malformed date strings
// degrade to nil; invalid UTF-8 in the text fields is replaced with
// U+FFFD.
func (r *Reader) Metadata() Metadata {
	return Metadata{
		Title:        cleanText(r.ctx.Title),
		Author:       cleanText(r.ctx.Author),
		Creator:      cleanText(r.ctx.Creator),
		Producer:     cleanText(r.ctx.Producer),
		CreationDate: parsePDFDate(r.ctx.XRefTable.CreationDate),
		ModDate:      parsePDFDate(r.ctx.XRefTable.ModDate),
	}
}

func parsePDFDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, ok := types.DateTime(s, true)
	if !ok {
		return nil
	}
	u := t.UTC()
	return &u
}

// cleanText replaces invalid UTF-8 bytes with the replacement character.
func cleanText(s string) string {
	return strings.ToValidUTF8(s, "�")
}
