package services

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"studio-booking/models"
)

// StatementFeed reads transactions from an exported bank statement workbook.
// The file is re-read on every fetch so a refreshed export is picked up.
type StatementFeed struct {
	path string
}

func NewStatementFeed(path string) *StatementFeed {
	return &StatementFeed{path: path}
}

func (f *StatementFeed) Fetch(ctx context.Context) ([]models.BankTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseStatement(f.path)
}

// ParseStatement reads the first sheet of an xlsx bank statement with
// flexible column detection.
func ParseStatement(filePath string) ([]models.BankTransaction, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement file: %w", err)
	}
	defer f.Close()

	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return nil, fmt.Errorf("no sheets found in statement file")
	}

	rows, err := f.GetRows(sheetList[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data in sheet")
	}

	cols := detectColumns(rows[0])
	if cols["amount"] < 0 || cols["memo"] < 0 {
		return nil, fmt.Errorf("statement needs amount and memo columns, got headers %v", rows[0])
	}

	var txs []models.BankTransaction
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 {
			continue
		}

		amount, err := parseAmount(extractField(row, cols["amount"]))
		if err != nil {
			// totals and notes rows in bank exports carry no amount
			continue
		}

		tx := models.BankTransaction{
			ID:     extractField(row, cols["id"]),
			Amount: amount,
			Memo:   extractField(row, cols["memo"]),
			Sender: extractField(row, cols["sender"]),
			Status: parseStatus(extractField(row, cols["status"])),
		}
		if tx.ID == "" {
			tx.ID = fmt.Sprintf("row-%d", i+1)
		}
		if ts, ok := models.ParseFlexibleTime(extractField(row, cols["timestamp"])); ok {
			tx.Timestamp = ts
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// detectColumns finds column indices by matching header names
func detectColumns(headers []string) map[string]int {
	indices := map[string]int{
		"id":        -1,
		"amount":    -1,
		"memo":      -1,
		"timestamp": -1,
		"sender":    -1,
		"status":    -1,
	}

	for i, header := range headers {
		lower := strings.ToLower(strings.TrimSpace(header))

		switch lower {
		case "id", "transaction id", "transaction_id", "reference id":
			indices["id"] = i
		case "amount", "credit", "amount (usd)":
			indices["amount"] = i
		case "memo", "description", "narration", "details", "reference":
			indices["memo"] = i
		case "date", "timestamp", "posted", "transaction date":
			indices["timestamp"] = i
		case "sender", "from", "payer", "counterparty":
			indices["sender"] = i
		case "status", "state":
			indices["status"] = i
		}
	}
	return indices
}

// extractField safely extracts a field from a row
func extractField(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

func parseAmount(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	return strconv.ParseFloat(s, 64)
}

// parseStatus treats a blank status as completed, the common case for
// posted statement lines.
func parseStatus(s string) models.TransactionStatus {
	switch strings.ToLower(s) {
	case "", "completed", "complete", "posted", "cleared", "settled":
		return models.TransactionCompleted
	default:
		return models.TransactionPending
	}
}

var exportHeaders = []string{
	"ID", "Student Name", "Student Email", "Amount", "Confirmation Number",
	"Status", "Created At", "Verified At", "Booking",
}

// ExportVerifications writes the claims as an xlsx workbook, one row per claim.
func ExportVerifications(w io.Writer, vs []*models.PaymentVerification, now time.Time, window time.Duration) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Verifications"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]interface{}, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, v := range vs {
		verifiedAt := ""
		if v.VerifiedAt != nil {
			verifiedAt = v.VerifiedAt.Format(time.RFC3339)
		}
		row := []interface{}{
			v.ID,
			v.StudentName,
			v.StudentEmail,
			v.Amount,
			v.ConfirmationNumber,
			string(v.EffectiveStatus(now, window)),
			v.CreatedAt.Format(time.RFC3339),
			verifiedAt,
			bookingSummary(v),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	return f.Write(w)
}

func bookingSummary(v *models.PaymentVerification) string {
	switch {
	case v.ClassDetails != nil:
		return fmt.Sprintf("Class: %s (%s)", v.ClassDetails.ClassName, models.FormatDateTime(v.ClassDetails.StartsAt))
	case v.PackageDetails != nil:
		return fmt.Sprintf("Package: %s (%d sessions)", v.PackageDetails.PackageName, v.PackageDetails.Sessions)
	default:
		return ""
	}
}
