// Package pdfoverlay draws text onto an existing PDF template page.
package pdfoverlay

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Stamp is one line of text, horizontally centered on the page at a fixed
// distance from the bottom edge.
type Stamp struct {
	Text     string
	OffsetY  float64 // points from the bottom edge
	FontSize int
}

// Engine renders stamps onto the first page of a template and writes the
// result to outPath.
type Engine interface {
	StampCentered(templatePath, outPath string, stamps []Stamp) error
}

// PDFCPUEngine implements Engine with pdfcpu text watermarks.
type PDFCPUEngine struct {
	FontName string
}

// NewEngine returns the default overlay engine (Helvetica bold).
func NewEngine() *PDFCPUEngine {
	return &PDFCPUEngine{FontName: "Helvetica-Bold"}
}

func (e *PDFCPUEngine) StampCentered(templatePath, outPath string, stamps []Stamp) error {
	in := templatePath
	for _, stamp := range stamps {
		desc := fmt.Sprintf(
			"font:%s, points:%d, pos:bc, off:0 %.0f, scale:1 abs, rot:0, fillcolor:#000000, op:1",
			e.FontName, stamp.FontSize, stamp.OffsetY,
		)
		wm, err := api.TextWatermark(stamp.Text, desc, true, false, types.POINTS)
		if err != nil {
			return fmt.Errorf("build text stamp: %w", err)
		}
		if err := api.AddWatermarksFile(in, outPath, []string{"1"}, wm, model.NewDefaultConfiguration()); err != nil {
			return fmt.Errorf("stamp %q: %w", stamp.Text, err)
		}
		// subsequent stamps accumulate on the produced file
		in = outPath
	}
	return nil
}
