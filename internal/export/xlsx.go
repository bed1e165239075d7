// Package export renders a user's transactions as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

const SheetName = "Transactions"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{"Date", "Circle", "Name", "Category", "Total", "Paid by", "My share", "My status", "Outstanding to me"}

// Filename returns the download name for an export made at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("paypals_transactions_%s.xlsx", t.Format("20060102"))
}

// WriteTransactions writes one row per transaction from userID's point of view.
func WriteTransactions(w io.Writer, userID string, txns []*models.Transaction, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(SheetName, cell, h)
	}

	for idx, t := range txns {
		row := idx + 2

		myShare, myStatus := "", ""
		if m, ok := t.MemberFor(userID); ok {
			myShare = m.AmountOwed.StringFixed(2)
			myStatus = m.PaymentStatus
		}

		outstanding := ""
		if t.CreatedBy == userID {
			outstanding = outstandingFor(t, userID)
		}

		values := []interface{}{
			time.Unix(t.CreatedAt, 0).In(loc).Format("2006-01-02"),
			t.CircleName,
			t.Name,
			t.Category,
			t.TotalAmount.StringFixed(2),
			t.Creator.Username,
			myShare,
			myStatus,
			outstanding,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(SheetName, cell, v)
		}
	}

	f.SetColWidth(SheetName, "A", "A", 12)
	f.SetColWidth(SheetName, "B", "C", 24)
	f.SetColWidth(SheetName, "D", "D", 14)
	f.SetColWidth(SheetName, "E", "I", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// outstandingFor sums the unpaid shares of everyone but the creator.
func outstandingFor(t *models.Transaction, creatorID string) string {
	total := decimal.Zero
	for _, m := range t.Members {
		if m.UserID == creatorID || m.IsPaid() {
			continue
		}
		total = total.Add(m.AmountOwed)
	}
	return total.StringFixed(2)
}
