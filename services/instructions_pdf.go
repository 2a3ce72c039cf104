package services

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"studio-booking/models"
)

// InstructionsPDF writes a one-page payment instruction sheet per claim.
type InstructionsPDF struct {
	dir    string
	studio string
	bank   BankDetails
}

func NewInstructionsPDF(dir, studio string, bank BankDetails) *InstructionsPDF {
	return &InstructionsPDF{dir: dir, studio: studio, bank: bank}
}

// Render writes instructions_<confirmation>.pdf into the configured directory.
func (r *InstructionsPDF) Render(v *models.PaymentVerification, deadline time.Time) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating instructions directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, r.studio+" - Payment Instructions")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 12)
	pdf.Cell(40, 10, fmt.Sprintf("Dear %s,", v.StudentName))
	pdf.Ln(10)
	pdf.MultiCell(0, 7, "Please send a bank transfer for the exact amount below and include the confirmation number in the transfer memo.", "", "L", false)
	pdf.Ln(4)

	lines := [][2]string{
		{"Confirmation number", v.ConfirmationNumber},
		{"Amount", fmt.Sprintf("$%.2f", v.Amount)},
		{"Account name", r.bank.AccountName},
		{"Account number", r.bank.AccountNumber},
		{"Routing number", r.bank.RoutingNumber},
		{"For", purchaseDescription(v)},
		{"Pay before", models.FormatDateTime(deadline)},
	}
	for _, line := range lines {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(55, 9, line[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(0, 9, line[1], "", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.Cell(40, 10, "Namaste,")
	pdf.Ln(8)
	pdf.Cell(40, 10, r.studio)

	fileName := filepath.Join(r.dir, fmt.Sprintf("instructions_%s.pdf", v.ConfirmationNumber))
	if err := pdf.OutputFileAndClose(fileName); err != nil {
		return "", fmt.Errorf("error generating instructions PDF: %w", err)
	}
	return fileName, nil
}
