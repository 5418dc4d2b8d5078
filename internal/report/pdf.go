package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/edmgate/internal/analysis"
	"example.com/edmgate/internal/jpi"
)

// PDFOptions tunes SaveFlightPDF.
type PDFOptions struct {
	// QRSize is the pixel size of the digest QR code; 0 selects 128.
	QRSize int
	// MaxOutages caps the rows of the sensor outage table; 0 means no cap.
	MaxOutages int
}

// SaveFlightPDF renders the flight report into a PDF document.
func SaveFlightPDF(rep FlightReport, out string, opts PDFOptions) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	title := fmt.Sprintf("Flight %d", rep.Summary.FlightID)
	if rep.Summary.Registration != "" {
		title = rep.Summary.Registration + " " + title
	}
	pdf.SetTitle(title, false)
	pdf.SetAuthor("edmctl", false)
	pdf.SetCreator("edmctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, title)
	addSummarySection(pdf, rep)
	addPeaksSection(pdf, rep.Summary.Peaks)
	addAlarmsSection(pdf, rep.Summary.Alarms)
	addOutagesSection(pdf, rep.Summary.Outages, opts.MaxOutages)
	if rep.Digest != "" {
		if err := addDigestSection(pdf, rep.Digest, opts.QRSize); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSectionHeading(pdf *gofpdf.Fpdf, heading string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, heading)
	pdf.Ln(9)
}

type labelValue struct {
	label string
	value string
}

func addSummarySection(pdf *gofpdf.Fpdf, rep FlightReport) {
	addSectionHeading(pdf, "Summary")
	sum := rep.Summary

	pdf.SetFont("Helvetica", "", 11)
	items := []labelValue{
		{label: "Source", value: emptyFallback(rep.Source, "-")},
		{label: "Model", value: modelLabel(sum.Model)},
		{label: "Start", value: timeLabel(sum.Start)},
		{label: "Duration", value: sum.Duration.String()},
		{label: "Interval", value: sum.Interval.String()},
		{label: "Samples", value: fmt.Sprintf("%d (%d records)", sum.Samples, sum.Records)},
		{label: "Status", value: sum.Status},
		{label: "Sensors", value: emptyFallback(sum.Features, "-")},
	}
	if sum.FuelUnit != "" {
		items = append(items, labelValue{label: "Fuel used", value: fmt.Sprintf("%.1f %s", sum.FuelUsed, sum.FuelUnit)})
	}
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, item.value, "", "L", false)
	}
	pdf.Ln(4)
}

func addPeaksSection(pdf *gofpdf.Fpdf, peaks []analysis.Peak) {
	addSectionHeading(pdf, "Peaks")
	if len(peaks) == 0 {
		emptyNote(pdf, "No sensor data recorded.")
		return
	}
	headers := []string{"Kind", "Sensor", "Value", "At"}
	widths := []float64{30, 40, 40, 70}
	addTableHeader(pdf, headers, widths)
	for _, p := range peaks {
		renderTableRow(pdf, widths, []string{
			p.Kind.String(),
			p.Label,
			formatReading(p.Channel, p.Value),
			offsetLabel(p.Offset),
		}, 5)
	}
	pdf.Ln(4)
}

func addAlarmsSection(pdf *gofpdf.Fpdf, alarms []analysis.Interval) {
	addSectionHeading(pdf, "Alarms")
	if len(alarms) == 0 {
		emptyNote(pdf, "No alarm limits exceeded.")
		return
	}
	headers := []string{"Kind", "Sensor", "Worst", "Limit", "From", "Duration"}
	widths := []float64{24, 26, 26, 26, 40, 38}
	addTableHeader(pdf, headers, widths)
	for _, a := range alarms {
		renderTableRow(pdf, widths, []string{
			a.Kind.String(),
			a.Label,
			formatReading(a.Channel, a.Extreme),
			formatReading(a.Channel, a.Limit),
			offsetLabel(a.Offset),
			a.Duration.String(),
		}, 5)
	}
	pdf.Ln(4)
}

func addOutagesSection(pdf *gofpdf.Fpdf, outages []analysis.NAInterval, limit int) {
	addSectionHeading(pdf, "Sensor Outages")
	if len(outages) == 0 {
		emptyNote(pdf, "No sensor outages.")
		return
	}
	headers := []string{"Sensor", "From", "Samples", "Duration"}
	widths := []float64{40, 50, 40, 50}
	addTableHeader(pdf, headers, widths)
	shown := outages
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, o := range shown {
		renderTableRow(pdf, widths, []string{
			o.Channel.Name(),
			offsetLabel(o.Offset),
			strconv.Itoa(o.End - o.Start),
			o.Duration.String(),
		}, 5)
	}
	if n := len(outages) - len(shown); n > 0 {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf("%d more not shown.", n), "", "L", false)
	}
	pdf.Ln(4)
}

func addDigestSection(pdf *gofpdf.Fpdf, digest string, size int) error {
	png, err := DigestToQR(digest, size)
	if err != nil {
		return err
	}
	addSectionHeading(pdf, "Source Digest")
	name := "digest-qr"
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	x, y := pdf.GetXY()
	pdf.ImageOptions(name, x, y, 35, 35, false, opts, 0, "")
	pdf.SetXY(x+40, y)
	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, "SHA-256\n"+strings.ToLower(normalizeDigest(digest)), "", "L", false)
	pdf.SetXY(x, y+38)
	return nil
}

func addTableHeader(pdf *gofpdf.Fpdf, headers []string, widths []float64) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
}

func emptyNote(pdf *gofpdf.Fpdf, msg string) {
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, msg, "", "L", false)
	pdf.Ln(2)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

// formatReading prints a raw value in instrument units. Derived series
// (differential, RPM) carry no channel scale.
func formatReading(ch jpi.Channel, v int) string {
	if ch >= 0 {
		if sc := ch.Scale(); sc != 1 {
			return strconv.FormatFloat(float64(v)/float64(sc), 'f', 1, 64)
		}
	}
	return strconv.Itoa(v)
}

func offsetLabel(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("+%d:%02d:%02d", h, m, s)
}

func timeLabel(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 MST")
}

func modelLabel(model int) string {
	if model == 0 {
		return "-"
	}
	return "EDM-" + strconv.Itoa(model)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
