package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/myhomebp/myhomebp/internal/domain/bp"
	"github.com/myhomebp/myhomebp/internal/domain/patient"
)

// Sheet names of a report workbook.
const (
	SheetSummary  = "Summary"
	SheetReadings = "Readings"
	SheetClinical = "Clinical Data"
)

var readingsHeader = []string{
	"Date", "Time", "Session",
	"Reading 1 Systolic", "Reading 1 Diastolic", "Reading 1 Pulse",
	"Reading 2 Systolic", "Reading 2 Diastolic", "Reading 2 Pulse",
	"Reading 3 Systolic", "Reading 3 Diastolic", "Reading 3 Pulse",
	"Average Systolic", "Average Diastolic", "Average Pulse",
	"Category", "High", "Urgent",
}

// WorkbookData is everything rendered into a report workbook. Clinical is
// nil when clinical data is left out.
type WorkbookData struct {
	Patient     *patient.Patient
	ClinicName  string
	Start, End  time.Time
	GeneratedAt time.Time
	Readings    []bp.Reading
	Summary     bp.ReportSummary
	Clinical    *patient.ClinicalData
}

// BuildWorkbook renders the report as an XLSX file.
func BuildWorkbook(d WorkbookData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := writeRows(f, SheetSummary, summaryRows(d), header, false); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 28); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(SheetSummary, "B", "B", 40); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.NewSheet(SheetReadings); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeRows(f, SheetReadings, readingRows(d.Readings), header, true); err != nil {
		return nil, err
	}

	if d.Clinical != nil {
		if _, err := f.NewSheet(SheetClinical); err != nil {
			return nil, fmt.Errorf("create sheet: %w", err)
		}
		if err := writeRows(f, SheetClinical, clinicalRows(d.Clinical), header, false); err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetClinical, "A", "B", 32); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	f.SetActiveSheet(0)
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// writeRows writes rows from A1 down. With headerRow the first row is
// styled; otherwise the first column is, as a label column.
func writeRows(f *excelize.File, sheet string, rows [][]interface{}, style int, headerRow bool) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
		if len(row) == 0 {
			continue
		}
		last := cell
		if headerRow {
			if i != 0 {
				continue
			}
			if last, err = excelize.CoordinatesToCellName(len(row), 1); err != nil {
				return fmt.Errorf("convert coordinates: %w", err)
			}
		}
		if err := f.SetCellStyle(sheet, cell, last, style); err != nil {
			return fmt.Errorf("style %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func summaryRows(d WorkbookData) [][]interface{} {
	s := d.Summary
	rows := [][]interface{}{
		{"Blood Pressure Report"},
		{},
		{"Patient", d.Patient.FullName()},
		{"Date of Birth", d.Patient.DateOfBirth.Format(dateLayout)},
		{"NHS Clinic", orDash(d.ClinicName)},
		{"Period", d.Start.Format(dateLayout) + " to " + d.End.Format(dateLayout)},
		{"Generated", d.GeneratedAt.Format("2006-01-02 15:04")},
		{},
		{"Total Readings", s.TotalReadings},
		{"Days With Readings", s.DaysWithReadings},
		{"Overall Average", formatAverage(s.OverallAverage)},
		{"AM Average", formatAverage(s.AMAverage)},
		{"PM Average", formatAverage(s.PMAverage)},
		{"Highest Reading", formatSnapshot(s.HighestReading)},
		{"Lowest Reading", formatSnapshot(s.LowestReading)},
		{"High Readings", s.HighReadingsCount},
		{"Urgent Readings", s.UrgentReadingsCount},
		{"Compliance", s.ComplianceStatus},
		{"Compliance Percentage", fmt.Sprintf("%.1f%%", s.CompliancePercentage)},
		{"NICE Guidelines Compliant", yesNo(s.NICEGuidelinesCompliant)},
	}
	return rows
}

func readingRows(readings []bp.Reading) [][]interface{} {
	header := make([]interface{}, len(readingsHeader))
	for i, h := range readingsHeader {
		header[i] = h
	}
	rows := [][]interface{}{header}
	for _, r := range readings {
		rows = append(rows, []interface{}{
			r.ReadingDate.Format(dateLayout),
			r.ReadingDate.Format("15:04"),
			strings.ToUpper(string(r.SessionType)),
			r.Reading1Systolic, r.Reading1Diastolic, r.Reading1Pulse,
			r.Reading2Systolic, r.Reading2Diastolic, r.Reading2Pulse,
			optionalInt(r.Reading3Systolic), optionalInt(r.Reading3Diastolic), optionalInt(r.Reading3Pulse),
			r.AverageSystolic, r.AverageDiastolic, r.AveragePulse,
			string(r.ReadingCategory),
			yesNo(r.IsHighReading),
			yesNo(r.RequiresUrgentAdvice),
		})
	}
	return rows
}

func clinicalRows(c *patient.ClinicalData) [][]interface{} {
	rows := [][]interface{}{
		{"Height (cm)", optionalFloat(c.HeightCM)},
		{"Weight (kg)", optionalFloat(c.WeightKG)},
		{"BMI", optionalFloat(c.BMI)},
		{"BMI Category", patient.BMICategory(c.BMI)},
		{"Ethnicity", orDash(deref(c.EthnicityDescription))},
		{"Smoking Status", orDash(deref(c.SmokingStatus))},
		{"Hypertension Diagnosis", orDash(deref(c.HypertensionDiagnosis))},
	}
	if c.LastBloodTestDate != nil {
		rows = append(rows, []interface{}{"Last Blood Test", c.LastBloodTestDate.Format(dateLayout)})
	}
	if c.UrineProteinCreatinineRatio != nil {
		rows = append(rows, []interface{}{"Urine Protein Creatinine Ratio", *c.UrineProteinCreatinineRatio})
	}

	labels := make([]string, 0, len(c.Comorbidities))
	for _, code := range c.Comorbidities {
		if label, ok := patient.Comorbidities[code]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, code)
		}
	}
	rows = append(rows, []interface{}{"Comorbidities", orDash(strings.Join(labels, ", "))})

	if len(c.Medications) > 0 {
		rows = append(rows, []interface{}{}, []interface{}{"Medication (BNF)", "Dose", "Frequency"})
		for _, m := range c.Medications {
			rows = append(rows, []interface{}{m.BNFCode, m.Dose, m.Frequency})
		}
	}
	return rows
}

func formatAverage(a *bp.Average) string {
	if a == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d mmHg, pulse %d (%d readings)", a.Systolic, a.Diastolic, a.Pulse, a.TotalReadings)
}

func formatSnapshot(s *bp.ReadingSnapshot) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d mmHg on %s %s", s.Systolic, s.Diastolic,
		s.Date.Format("2006-01-02 15:04"), strings.ToUpper(string(s.SessionType)))
}

func optionalInt(p *int) interface{} {
	if p == nil {
		return ""
	}
	return *p
}

func optionalFloat(p *float64) interface{} {
	if p == nil {
		return "-"
	}
	return *p
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
