package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

func TestWriteTransactions(t *testing.T) {
	created := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC).Unix()
	txns := []*models.Transaction{
		{
			ID:          "t1",
			CreatedBy:   "alice",
			Name:        "Groceries",
			Category:    models.CategoryFood,
			CircleName:  "Flat",
			TotalAmount: decimal.RequireFromString("30"),
			CreatedAt:   created,
			Creator:     models.UserSummary{ID: "alice", Username: "alice"},
			Members: []models.TransactionMember{
				{UserID: "alice", AmountOwed: decimal.RequireFromString("10"), PaymentStatus: models.PaymentPaid},
				{UserID: "bob", AmountOwed: decimal.RequireFromString("10"), PaymentStatus: models.PaymentPending},
				{ExternalEmail: "c@example.com", AmountOwed: decimal.RequireFromString("10"), PaymentStatus: models.PaymentPaid},
			},
		},
	}

	tests := []struct {
		name   string
		userID string
		cells  map[string]string
	}{
		{
			name:   "creator view",
			userID: "alice",
			cells:  map[string]string{"A2": "2025-03-14", "B2": "Flat", "E2": "30.00", "G2": "10.00", "H2": "paid", "I2": "10.00"},
		},
		{
			name:   "participant view",
			userID: "bob",
			cells:  map[string]string{"F2": "alice", "G2": "10.00", "H2": "pending", "I2": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteTransactions(&buf, tt.userID, txns, time.UTC); err != nil {
				t.Fatalf("WriteTransactions failed: %v", err)
			}

			f, err := excelize.OpenReader(&buf)
			if err != nil {
				t.Fatalf("OpenReader failed: %v", err)
			}
			defer f.Close()

			if got, _ := f.GetCellValue(SheetName, "A1"); got != "Date" {
				t.Errorf("A1 = %q, want header", got)
			}
			for cell, want := range tt.cells {
				got, err := f.GetCellValue(SheetName, cell)
				if err != nil {
					t.Fatalf("GetCellValue(%s) failed: %v", cell, err)
				}
				if got != want {
					t.Errorf("%s = %q, want %q", cell, got, want)
				}
			}
		})
	}
}

func TestFilename(t *testing.T) {
	got := Filename(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	if got != "paypals_transactions_20250102.xlsx" {
		t.Errorf("Filename = %q", got)
	}
}
