package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"trusted-properties/internal/agreement/application"
)

// BuildStatementPDF renders an agreement statement with its due schedule.
func BuildStatementPDF(view application.View) ([]byte, error) {
	rec := view.Record
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Rent Agreement Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("Agreement: %s", rec.Address),
		fmt.Sprintf("Owner: %s", rec.Owner),
		fmt.Sprintf("Tenant: %s", rec.Tenant),
		fmt.Sprintf("Status: %s", rec.Status),
		fmt.Sprintf("Start: %04d-%02d", rec.StartYear, rec.StartMonth),
		fmt.Sprintf("Created: %s", rec.CreatedAt.Format(time.RFC3339)),
		fmt.Sprintf("Updated: %s", rec.UpdatedAt.Format(time.RFC3339)),
	}
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Rent per period: %d", rec.RentAmount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Payments: %d of %d remaining", rec.RemainingPayments, rec.Duration))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Security deposit: %d (remaining %d, held %d)", rec.SecurityDeposit, rec.RemainingSecurityDeposit, view.Held))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(20, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Due", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Paid", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, due := range view.Schedule {
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", due.Index), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%04d-%02d", due.Year, int(due.Month)), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", rec.RentAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, yesNo(due.Paid), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders an agreement statement as a workbook with
// summary and schedule sheets.
func BuildStatementXLSX(view application.View) ([]byte, error) {
	rec := view.Record
	f := excelize.NewFile()
	summarySheet := "summary"
	scheduleSheet := "schedule"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(scheduleSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Rent Agreement Statement", nil},
		{"Agreement", string(rec.Address)},
		{"Owner", string(rec.Owner)},
		{"Tenant", string(rec.Tenant)},
		{"Status", rec.Status.String()},
		{"Start", fmt.Sprintf("%04d-%02d", rec.StartYear, rec.StartMonth)},
		{"Rent Amount", rec.RentAmount},
		{"Duration", rec.Duration},
		{"Remaining Payments", rec.RemainingPayments},
		{"Security Deposit", rec.SecurityDeposit},
		{"Remaining Security Deposit", rec.RemainingSecurityDeposit},
		{"Held Balance", view.Held},
	}
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		if row[1] != nil {
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
		}
	}

	_ = f.SetCellValue(scheduleSheet, "A1", "#")
	_ = f.SetCellValue(scheduleSheet, "B1", "Due")
	_ = f.SetCellValue(scheduleSheet, "C1", "Amount")
	_ = f.SetCellValue(scheduleSheet, "D1", "Paid")
	for i, due := range view.Schedule {
		row := i + 2
		_ = f.SetCellValue(scheduleSheet, fmt.Sprintf("A%d", row), due.Index)
		_ = f.SetCellValue(scheduleSheet, fmt.Sprintf("B%d", row), fmt.Sprintf("%04d-%02d", due.Year, int(due.Month)))
		_ = f.SetCellValue(scheduleSheet, fmt.Sprintf("C%d", row), rec.RentAmount)
		_ = f.SetCellValue(scheduleSheet, fmt.Sprintf("D%d", row), yesNo(due.Paid))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
