package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

var contentTypes = map[string]string{
	FormatCSV:  "text/csv",
	FormatJSON: "application/json",
	FormatPDF:  "application/pdf",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// IsSupportedFormat reports whether format (case-insensitive) can be exported
func IsSupportedFormat(format string) bool {
	_, ok := contentTypes[strings.ToLower(format)]
	return ok
}

// ExportResult is a rendered report ready to be served or archived
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// section is one table of a rendered report
type section struct {
	title  string
	header []string
	rows   [][]string
}

// ExportAnalyticsData renders the full report of the window in format
func (s *Service) ExportAnalyticsData(ctx context.Context, shopID string, r DateRange, format string) (*ExportResult, error) {
	const op = "ExportAnalyticsData"
	format = strings.ToLower(format)
	if !IsSupportedFormat(format) {
		err := validationError(op, errorContext(shopID, &r, Filters{}), fmt.Errorf("%w: %q", ErrUnsupportedFormat, format))
		s.metrics.ObserveExport(format, err)
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "analytics.Service."+op)
	defer span.End()

	report, err := s.calc.Report(ctx, shopID, r, Filters{})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveExport(format, err)
		return nil, err
	}

	result, err := RenderReport(report, format)
	if err != nil {
		err = operationFailed(op, "failed to render report", errorContext(shopID, &r, Filters{}), err)
		span.RecordError(err)
	}
	s.metrics.ObserveExport(format, err)
	return result, err
}

// RenderReport serializes a report in one of the export formats
func RenderReport(report *Report, format string) (*ExportResult, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(report, "", "  ")
	case FormatCSV:
		data, err = renderCSV(reportSections(report))
	case FormatXLSX:
		data, err = renderXLSX(reportSections(report))
	case FormatPDF:
		data, err = renderPDF(reportTitle(report), reportSections(report))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	o := report.Overall
	filename := fmt.Sprintf("queue_analytics_%s_%s_%s.%s", o.ShopID,
		o.DateRange.From.Format("2006-01-02"), o.DateRange.To.Format("2006-01-02"), format)
	return &ExportResult{Filename: filename, ContentType: contentTypes[format], Data: data}, nil
}

func reportTitle(report *Report) string {
	o := report.Overall
	return fmt.Sprintf("Queue analytics %s (%s to %s)", o.ShopID,
		o.DateRange.From.Format("2006-01-02"), o.DateRange.To.Format("2006-01-02"))
}

func f2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func reportSections(report *Report) []section {
	o, t, p, svc := report.Overall, report.Time, report.Peak, report.Services

	overview := section{
		title:  "Overview",
		header: []string{"Metric", "Value"},
		rows: [][]string{
			{"Total queues", strconv.Itoa(o.TotalQueues)},
			{"Completed", strconv.Itoa(o.CompletedQueues)},
			{"Cancelled", strconv.Itoa(o.CancelledQueues)},
			{"No show", strconv.Itoa(o.NoShowQueues)},
			{"In progress", strconv.Itoa(o.InProgressQueues)},
			{"Waiting", strconv.Itoa(o.WaitingQueues)},
			{"Completion rate (%)", f2(o.CompletionRate)},
			{"Cancellation rate (%)", f2(o.CancellationRate)},
			{"No-show rate (%)", f2(o.NoShowRate)},
			{"Average wait (min)", f2(o.AverageWaitTime)},
			{"Average service (min)", f2(o.AverageServiceTime)},
		},
	}

	times := section{
		title:  "Times (minutes)",
		header: []string{"Measure", "Average", "Median", "Min", "Max"},
		rows: [][]string{
			{"Wait", f2(t.AverageWaitTime), f2(t.MedianWaitTime), f2(t.MinWaitTime), f2(t.MaxWaitTime)},
			{"Service", f2(t.AverageServiceTime), f2(t.MedianServiceTime), f2(t.MinServiceTime), f2(t.MaxServiceTime)},
		},
	}

	peak := make(map[int]bool, len(p.PeakHours))
	for _, h := range p.PeakHours {
		peak[h.Hour] = true
	}
	hours := section{
		title:  "Hours",
		header: []string{"Hour", "Class", "Recommended staff", "Reason"},
	}
	for _, rec := range p.RecommendedStaffing {
		class := "quiet"
		if peak[rec.Hour] {
			class = "peak"
		}
		hours.rows = append(hours.rows, []string{
			fmt.Sprintf("%02d:00", rec.Hour), class, strconv.Itoa(rec.RecommendedEmployees), rec.Reason,
		})
	}

	services := section{
		title:  "Services",
		header: []string{"Service", "Queues", "Completed", "Avg wait", "Avg service", "Revenue", "Popularity"},
	}
	for _, st := range svc.ServiceStats {
		services.rows = append(services.rows, []string{
			st.ServiceName, strconv.Itoa(st.TotalQueues), strconv.Itoa(st.CompletedQueues),
			f2(st.AverageWaitTime), f2(st.AverageServiceTime), f2(st.Revenue), f2(st.PopularityScore),
		})
	}

	return []section{overview, times, hours, services}
}

func renderCSV(sections []section) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)
	for i, sec := range sections {
		if i > 0 {
			_ = writer.Write([]string{""})
		}
		_ = writer.Write([]string{sec.title})
		_ = writer.Write(sec.header)
		for _, row := range sec.rows {
			_ = writer.Write(row)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(sections []section) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for _, sec := range sections {
		name := sec.title
		if idx := strings.Index(name, " ("); idx > 0 {
			name = name[:idx]
		}
		if first {
			_ = f.SetSheetName("Sheet1", name)
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}

		bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		for col, h := range sec.header {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			_ = f.SetCellValue(name, cell, h)
			_ = f.SetCellStyle(name, cell, cell, bold)
		}
		for i, row := range sec.rows {
			for col, v := range row {
				cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					_ = f.SetCellValue(name, cell, n)
				} else {
					_ = f.SetCellValue(name, cell, v)
				}
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPDF(title string, sections []section) ([]byte, error) {
	pdf := buildPDF(title, sections)
	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildPDF lays the sections out as tables. Core fonts are cp1252, so text is
// translated from UTF-8 before it is written.
func buildPDF(title string, sections []section) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, tr(title))
	pdf.Ln(12)

	for _, sec := range sections {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(40, 10, tr(sec.title))
		pdf.Ln(8)

		width := 190 / float64(len(sec.header))
		pdf.SetFont("Arial", "B", 9)
		for _, h := range sec.header {
			pdf.CellFormat(width, 6, tr(h), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range sec.rows {
			for _, v := range row {
				pdf.CellFormat(width, 6, tr(v), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}
	return pdf
}
