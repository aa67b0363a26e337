package pdfread

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ExtractedImage is one embedded image resource streamed out of the
// document. Positions are not recoverable from the resource dictionary
// alone, so X/Y stay zero and downstream placement works from the page.
type ExtractedImage struct {
	Page   int
	Seq    int // 1-indexed within the page, by object number
	Ext    string
	Width  int
	Height int
	Data   io.Reader
}

// Images walks every page's image resources in deterministic order and
// hands each one to fn.
func (r *Reader) Images(fn func(img ExtractedImage) error) error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer f.Close()

	pages, err := api.ExtractImagesRaw(f, nil, r.conf)
	if err != nil {
		return fmt.Errorf("extracting images: %w", err)
	}
	for _, pageImages := range pages {
		objNrs := make([]int, 0, len(pageImages))
		for objNr := range pageImages {
			objNrs = append(objNrs, objNr)
		}
		sort.Ints(objNrs)
		for seq, objNr := range objNrs {
			img := pageImages[objNr]
			if err := fn(ExtractedImage{
				Page:   img.PageNr,
				Seq:    seq + 1,
				Ext:    img.FileType,
				Width:  img.Width,
				Height: img.Height,
				Data:   img,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ImageCount counts embedded image resources across the document.
func (r *Reader) ImageCount() (int, error) {
	n := 0
	err := r.Images(func(ExtractedImage) error {
		n++
		return nil
	})
	return n, err
}

// StripImages writes a copy of the document with every image XObject
// reference removed from the page resource trees, then garbage-collects
// and deflates the object stream. The result is the small text-only PDF
// the extraction phase reads.
func (r *Reader) StripImages(outPath string) error {
	ctx, err := api.ReadContextFile(r.path)
	if err != nil {
		return fmt.Errorf("re-reading %s: %w", r.path, err)
	}

	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		d, _, _, err := ctx.PageDict(pageNr, false)
		if err != nil {
			return fmt.Errorf("page %d: %w", pageNr, err)
		}
		if d == nil {
			continue
		}
		resObj, found := d.Find("Resources")
		if !found {
			continue
		}
		res, err := ctx.DereferenceDict(resObj)
		if err != nil || res == nil {
			continue
		}
		xoObj, found := res.Find("XObject")
		if !found {
			continue
		}
		xo, err := ctx.DereferenceDict(xoObj)
		if err != nil || xo == nil {
			continue
		}
		for name, ref := range xo {
			sd, _, err := ctx.DereferenceStreamDict(ref)
			if err != nil || sd == nil {
				continue
			}
			if st := sd.Dict.Subtype(); st != nil && *st == "Image" {
				xo.Delete(name)
			}
		}
	}

	if err := api.OptimizeContext(ctx); err != nil {
		return fmt.Errorf("optimizing: %w", err)
	}
	if err := api.WriteContextFile(ctx, outPath); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return nil
}
