package extract

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageImage is one image embedded in a PDF page.
type PageImage struct {
	Page     int
	FileType string
	Data     []byte
}

// PageImages returns the images of every page in page order. Scanned PDFs
// carry one image per page.
func PageImages(data []byte) ([]PageImage, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var images []PageImage
	digest := func(img model.Image, _ bool, _ int) error {
		raw, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("read image %s: %w", img.Name, err)
		}
		images = append(images, PageImage{Page: img.PageNr, FileType: img.FileType, Data: raw})
		return nil
	}

	if err := api.ExtractImages(bytes.NewReader(data), nil, digest, conf); err != nil {
		return nil, fmt.Errorf("extract page images: %w", err)
	}

	sort.SliceStable(images, func(i, j int) bool { return images[i].Page < images[j].Page })
	return images, nil
}
