package service

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/recorpproduction-prog/camcapprod/capture"
	"github.com/recorpproduction-prog/camcapprod/model"
)

// Renderer turns an SOP into a PDF document.
type Renderer interface {
	Render(sop *model.SOP) ([]byte, error)
}

// PDFRenderer lays out SOPs on A4 pages with an optional company logo.
type PDFRenderer struct {
	logo     []byte
	logoType string
}

// NewPDFRenderer loads the logo once. An empty path renders without a logo.
func NewPDFRenderer(logoPath string) (*PDFRenderer, error) {
	r := &PDFRenderer{}
	if logoPath == "" {
		return r, nil
	}
	data, err := os.ReadFile(logoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read logo: %w", err)
	}
	switch strings.ToLower(filepath.Ext(logoPath)) {
	case ".png":
		r.logoType = "PNG"
	case ".jpg", ".jpeg":
		r.logoType = "JPG"
	default:
		return nil, fmt.Errorf("unsupported logo format %q", filepath.Ext(logoPath))
	}
	r.logo = data
	return r, nil
}

const (
	pdfMargin    = 15.0
	pdfLineH     = 6.0
	stepImageW   = 80.0
	stepImageMax = 800
)

func (r *PDFRenderer) Render(sop *model.SOP) ([]byte, error) {
	if !sop.Valid() {
		return nil, fmt.Errorf("record has no meta")
	}
	meta := sop.Meta

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(meta.Title, true)
	pdf.SetAuthor(meta.Author, true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s  v%s  -  Page %d/{nb}", meta.SOPID, meta.Version, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	if len(r.logo) > 0 {
		pdf.RegisterImageOptionsReader("logo", fpdf.ImageOptions{ImageType: r.logoType}, bytes.NewReader(r.logo))
		pdf.ImageOptions("logo", pdfMargin, pdfMargin, 30, 0, false, fpdf.ImageOptions{ImageType: r.logoType}, 0, "")
		pdf.SetY(pdfMargin + 20)
	}

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(meta.Title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetFillColor(240, 240, 240)
	rows := [][2]string{
		{"SOP ID", meta.SOPID},
		{"Department", meta.Department},
		{"Version", meta.Version},
		{"Author", meta.Author},
		{"Status", string(meta.Status)},
		{"Effective date", meta.EffectiveDate},
		{"Review date", meta.ReviewDate},
		{"Reviewer", meta.Reviewer},
	}
	for _, row := range rows {
		pdf.CellFormat(40, pdfLineH, tr(row[0]), "1", 0, "L", true, 0, "")
		pdf.CellFormat(0, pdfLineH, tr(row[1]), "1", 1, "L", false, 0, "")
	}
	if meta.ReviewComments != "" {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr("Review comments: "+meta.ReviewComments), "", "L", false)
	}

	section := func(title string) {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, tr(title), "B", 1, "L", false, 0, "")
		pdf.Ln(1)
		pdf.SetFont("Helvetica", "", 10)
	}
	bullets := func(items []string) {
		for _, item := range items {
			if strings.TrimSpace(item) == "" {
				continue
			}
			pdf.MultiCell(0, 5, tr("- "+item), "", "L", false)
		}
	}

	if sop.Description != "" {
		section("Purpose")
		pdf.MultiCell(0, 5, tr(sop.Description), "", "L", false)
	}

	if len(sop.Safety.Warnings) > 0 || len(sop.Safety.PPE) > 0 || sop.Safety.Notes != "" {
		section("Safety")
		bullets(sop.Safety.Warnings)
		if len(sop.Safety.PPE) > 0 {
			pdf.MultiCell(0, 5, tr("PPE: "+strings.Join(sop.Safety.PPE, ", ")), "", "L", false)
		}
		if sop.Safety.Notes != "" {
			pdf.MultiCell(0, 5, tr(sop.Safety.Notes), "", "L", false)
		}
	}
	if len(sop.Tools) > 0 {
		section("Tools")
		bullets(sop.Tools)
	}
	if len(sop.Materials) > 0 {
		section("Materials")
		bullets(sop.Materials)
	}

	if len(sop.Steps) > 0 {
		section("Procedure")
		for i, step := range sop.Steps {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("%d. %s", i+1, step.Title)), "", "L", false)
			pdf.SetFont("Helvetica", "", 10)
			if step.Description != "" {
				pdf.MultiCell(0, 5, tr(step.Description), "", "L", false)
			}
			if step.SafetyNote != "" {
				pdf.SetTextColor(180, 0, 0)
				pdf.MultiCell(0, 5, tr("Safety: "+step.SafetyNote), "", "L", false)
				pdf.SetTextColor(0, 0, 0)
			}
			for j, uri := range step.Images {
				data, ok := stepImageJPEG(uri)
				if !ok {
					continue
				}
				name := fmt.Sprintf("step-%d-%d", i, j)
				opts := fpdf.ImageOptions{ImageType: "JPG"}
				pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
				pdf.ImageOptions(name, -1, pdf.GetY(), stepImageW, 0, true, opts, 0, "")
			}
			pdf.Ln(2)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// stepImageJPEG re-encodes a step photo as JPEG. Unreadable images are
// skipped rather than failing the document.
func stepImageJPEG(uri string) ([]byte, bool) {
	data, _, err := capture.ParseDataURI(uri)
	if err != nil {
		return nil, false
	}
	frame, err := capture.DecodeFrame(data, stepImageMax)
	if err != nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image(), &jpeg.Options{Quality: 85}); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
