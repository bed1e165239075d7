package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateTransaction_Validation(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	outsider := env.createUser(t, "outsider")
	circle := env.createCircle(t, alice, bob)

	valid := func() TransactionInput {
		return TransactionInput{
			Name:         "Dinner",
			TotalAmount:  decimal.RequireFromString("30"),
			Participants: []ParticipantInput{{UserID: alice.ID}, {UserID: bob.ID}},
		}
	}

	tests := []struct {
		name   string
		mutate func(in *TransactionInput)
		want   connect.Code
	}{
		{"missing name", func(in *TransactionInput) { in.Name = " " }, connect.CodeInvalidArgument},
		{"zero total", func(in *TransactionInput) { in.TotalAmount = decimal.Zero }, connect.CodeInvalidArgument},
		{"total far beyond the cap", func(in *TransactionInput) {
			in.TotalAmount = decimal.RequireFromString("100000000000000000")
		}, connect.CodeInvalidArgument},
		{"total at the cap", func(in *TransactionInput) { in.TotalAmount = decimal.NewFromInt(10_000_000) }, connect.CodeInvalidArgument},
		{"sub-cent total", func(in *TransactionInput) { in.TotalAmount = decimal.RequireFromString("10.005") }, connect.CodeInvalidArgument},
		{"unknown category", func(in *TransactionInput) { in.Category = "gambling" }, connect.CodeInvalidArgument},
		{"unknown split", func(in *TransactionInput) { in.SplitType = "weighted" }, connect.CodeInvalidArgument},
		{"no participants", func(in *TransactionInput) { in.Participants = nil }, connect.CodeInvalidArgument},
		{"non-member participant", func(in *TransactionInput) {
			in.Participants = append(in.Participants, ParticipantInput{UserID: outsider.ID})
		}, connect.CodeInvalidArgument},
		{"duplicate participant", func(in *TransactionInput) {
			in.Participants = append(in.Participants, ParticipantInput{Email: "BOB@example.com"})
		}, connect.CodeInvalidArgument},
		{"bad external email", func(in *TransactionInput) {
			in.Participants = append(in.Participants, ParticipantInput{Email: "nope"})
		}, connect.CodeInvalidArgument},
		{"custom split missing amount", func(in *TransactionInput) { in.SplitType = SplitCustom }, connect.CodeInvalidArgument},
		{"custom split does not sum", func(in *TransactionInput) {
			in.SplitType = SplitCustom
			in.Participants[0].Amount = amount("10")
			in.Participants[1].Amount = amount("10")
		}, connect.CodeInvalidArgument},
		{"bad location", func(in *TransactionInput) { in.Location = &models.Location{Lat: 91} }, connect.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, in)
			assertCode(t, err, tt.want)
		})
	}

	_, err := env.transactions.CreateTransaction(ctxFor(outsider), circle.ID, valid())
	assertCode(t, err, connect.CodePermissionDenied)
	_, err = env.transactions.CreateTransaction(ctxFor(alice), "missing", valid())
	assertCode(t, err, connect.CodeNotFound)
}

func TestCreateTransaction_EqualSplitWithExternal(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	circle := env.createCircle(t, alice, bob)

	txn, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:        "Groceries",
		Category:    models.CategoryFood,
		TotalAmount: decimal.RequireFromString("100"),
		Participants: []ParticipantInput{
			{UserID: alice.ID},
			{UserID: bob.ID},
			{Email: "Dave@Example.com", Name: "Dave"},
		},
		Location: &models.Location{Lat: 1.3, Lng: 103.8, PlaceName: "FairPrice"},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	if len(txn.Members) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(txn.Members))
	}
	sum := decimal.Zero
	for _, m := range txn.Members {
		sum = sum.Add(m.AmountOwed)
	}
	if !sum.Equal(txn.TotalAmount) {
		t.Fatalf("shares sum to %s, want %s", sum, txn.TotalAmount)
	}
	if !txn.Members[0].AmountOwed.Equal(decimal.RequireFromString("33.34")) {
		t.Errorf("expected the remainder cent on the first share, got %s", txn.Members[0].AmountOwed)
	}

	own, _ := txn.MemberFor(alice.ID)
	if !own.IsPaid() {
		t.Error("the creator's own share should be settled")
	}
	dave := txn.Members[2]
	if !dave.IsExternal() || dave.ExternalEmail != "dave@example.com" || dave.AccessToken == "" {
		t.Fatalf("unexpected external share: %+v", dave)
	}

	sent := env.mail.Sent()
	if len(sent) != 1 || sent[0].To != "dave@example.com" || !strings.Contains(sent[0].Body, "/external/"+dave.AccessToken) {
		t.Fatalf("expected an access link email to dave, got %+v", sent)
	}

	notes, err := env.notifications.List(ctxFor(bob), false, 0)
	if err != nil {
		t.Fatalf("List notifications failed: %v", err)
	}
	types := map[string]bool{}
	for _, n := range notes {
		types[n.Type] = true
	}
	if len(notes) != 2 || !types[models.NotificationTransactionCreated] || !types[models.NotificationPaymentDue] {
		t.Fatalf("expected transaction_created and payment_due for bob, got %+v", notes)
	}
	aliceNotes, _ := env.notifications.List(ctxFor(alice), false, 0)
	if len(aliceNotes) != 0 {
		t.Errorf("creator should not be notified, got %d", len(aliceNotes))
	}
}

func TestCreateTransaction_LargeTotalSumsExactly(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	circle := env.createCircle(t, alice, bob)

	total := decimal.RequireFromString("9999999.99")
	txn, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:         "Condo deposit",
		TotalAmount:  total,
		Participants: []ParticipantInput{{UserID: alice.ID}, {UserID: bob.ID}},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	sum := decimal.Zero
	for _, m := range txn.Members {
		if m.AmountOwed.IsNegative() {
			t.Fatalf("negative share stored: %s", m.AmountOwed)
		}
		sum = sum.Add(m.AmountOwed)
	}
	if !sum.Equal(total) {
		t.Fatalf("shares sum to %s, want %s", sum, total)
	}
}

func TestCreateTransaction_EmailOfMemberBecomesMember(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	circle := env.createCircle(t, alice, bob)

	txn, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:         "Taxi",
		TotalAmount:  decimal.RequireFromString("12.50"),
		SplitType:    SplitCustom,
		Participants: []ParticipantInput{{Email: "bob@example.com", Amount: amount("12.50")}},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	if txn.Members[0].UserID != bob.ID {
		t.Fatalf("expected bob's email to resolve to his account, got %+v", txn.Members[0])
	}
	if len(env.mail.Sent()) != 0 {
		t.Error("members should not be emailed an access link")
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")
	circle := env.createCircle(t, alice, bob, carol)

	txn, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:         "Utilities",
		TotalAmount:  decimal.RequireFromString("90"),
		Participants: []ParticipantInput{{UserID: alice.ID}, {UserID: bob.ID}, {UserID: carol.ID}},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	bobShare, _ := txn.MemberFor(bob.ID)
	carolShare, _ := txn.MemberFor(carol.ID)

	_, err = env.transactions.UpdatePaymentStatus(ctxFor(bob), txn.ID, bobShare.ID, "refunded")
	assertCode(t, err, connect.CodeInvalidArgument)
	_, err = env.transactions.UpdatePaymentStatus(ctxFor(bob), txn.ID, carolShare.ID, models.PaymentPaid)
	assertCode(t, err, connect.CodePermissionDenied)
	_, err = env.transactions.UpdatePaymentStatus(ctxFor(bob), txn.ID, "missing", models.PaymentPaid)
	assertCode(t, err, connect.CodeNotFound)

	updated, err := env.transactions.UpdatePaymentStatus(ctxFor(bob), txn.ID, bobShare.ID, models.PaymentPaid)
	if err != nil {
		t.Fatalf("UpdatePaymentStatus failed: %v", err)
	}
	share, _ := updated.MemberFor(bob.ID)
	if !share.IsPaid() || share.PaidAt == 0 {
		t.Fatalf("expected bob's share paid, got %+v", share)
	}

	notes, err := env.notifications.List(ctxFor(alice), true, 0)
	if err != nil {
		t.Fatalf("List notifications failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Type != models.NotificationPaymentReceived {
		t.Fatalf("expected payment_received for the creator, got %+v", notes)
	}

	// Repeating the confirmation, directly or through PayNow, changes nothing.
	if _, err := env.transactions.UpdatePaymentStatus(ctxFor(bob), txn.ID, bobShare.ID, models.PaymentPaid); err != nil {
		t.Fatalf("repeated UpdatePaymentStatus failed: %v", err)
	}
	if _, err := env.paynow.ConfirmPayment(ctxFor(bob), txn.ID); err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if count, _ := env.notifications.UnreadCount(ctxFor(alice)); count != 1 {
		t.Fatalf("expected a single payment_received notification, got %d", count)
	}

	// Only the creator may reopen a share.
	_, err = env.transactions.UpdatePaymentStatus(ctxFor(bob), txn.ID, bobShare.ID, models.PaymentPending)
	assertCode(t, err, connect.CodePermissionDenied)
	reopened, err := env.transactions.UpdatePaymentStatus(ctxFor(alice), txn.ID, bobShare.ID, models.PaymentPending)
	if err != nil {
		t.Fatalf("creator UpdatePaymentStatus failed: %v", err)
	}
	if share, _ := reopened.MemberFor(bob.ID); share.IsPaid() || share.PaidAt != 0 {
		t.Fatalf("expected bob's share pending again, got %+v", share)
	}
}

func TestTransactionCRUD(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	outsider := env.createUser(t, "outsider")
	circle := env.createCircle(t, alice, bob)

	txn, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:         "Movie night",
		Category:     models.CategoryEntertainment,
		TotalAmount:  decimal.RequireFromString("24"),
		Participants: []ParticipantInput{{UserID: alice.ID}, {UserID: bob.ID}},
		Location:     &models.Location{Lat: 1.29, Lng: 103.85, PlaceName: "Cathay"},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	if _, err := env.transactions.GetTransaction(ctxFor(bob), txn.ID); err != nil {
		t.Fatalf("participant GetTransaction failed: %v", err)
	}
	_, err = env.transactions.GetTransaction(ctxFor(outsider), txn.ID)
	assertCode(t, err, connect.CodePermissionDenied)
	_, err = env.transactions.ListCircleTransactions(ctxFor(outsider), circle.ID)
	assertCode(t, err, connect.CodePermissionDenied)

	name := "Movie + popcorn"
	_, err = env.transactions.UpdateTransaction(ctxFor(bob), txn.ID, TransactionUpdate{Name: &name})
	assertCode(t, err, connect.CodePermissionDenied)

	updated, err := env.transactions.UpdateTransaction(ctxFor(alice), txn.ID, TransactionUpdate{Name: &name, ClearLocation: true})
	if err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}
	if updated.Name != name || updated.Location != nil {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	list, err := env.transactions.ListUserTransactions(ctxFor(bob), models.TransactionFilter{Search: "popcorn"})
	if err != nil {
		t.Fatalf("ListUserTransactions failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(list))
	}
	_, err = env.transactions.ListUserTransactions(ctxFor(bob), models.TransactionFilter{Status: "overdue"})
	assertCode(t, err, connect.CodeInvalidArgument)

	assertCode(t, env.transactions.DeleteTransaction(ctxFor(bob), txn.ID), connect.CodePermissionDenied)
	if err := env.transactions.DeleteTransaction(ctxFor(alice), txn.ID); err != nil {
		t.Fatalf("DeleteTransaction failed: %v", err)
	}
	_, err = env.transactions.GetTransaction(ctxFor(alice), txn.ID)
	assertCode(t, err, connect.CodeNotFound)
}

func TestDashboardSummary(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	circle := env.createCircle(t, alice, bob)

	create := func(creator *models.User, total string) {
		t.Helper()
		_, err := env.transactions.CreateTransaction(ctxFor(creator), circle.ID, TransactionInput{
			Name:         "Split",
			TotalAmount:  decimal.RequireFromString(total),
			Participants: []ParticipantInput{{UserID: alice.ID}, {UserID: bob.ID}},
		})
		if err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
	}
	create(alice, "40") // bob owes alice 20
	create(bob, "10")   // alice owes bob 5

	dash, err := env.transactions.DashboardSummary(ctxFor(alice))
	if err != nil {
		t.Fatalf("DashboardSummary failed: %v", err)
	}
	if !dash.OwedToMe.Equal(decimal.NewFromInt(20)) || !dash.IOwe.Equal(decimal.NewFromInt(5)) || !dash.Net.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected totals: owed to me %s, I owe %s, net %s", dash.OwedToMe, dash.IOwe, dash.Net)
	}
	if len(dash.Circles) != 1 || dash.Circles[0].Name != "Flat 4B" {
		t.Fatalf("unexpected circle rows: %+v", dash.Circles)
	}
	if len(dash.Counterparties) != 1 || dash.Counterparties[0].Name != "bob" {
		t.Fatalf("unexpected counterparty rows: %+v", dash.Counterparties)
	}
	if len(dash.Recent) != 2 {
		t.Errorf("expected 2 recent transactions, got %d", len(dash.Recent))
	}

	balances, err := env.circles.CircleBalances(ctxFor(bob), circle.ID)
	if err != nil {
		t.Fatalf("CircleBalances failed: %v", err)
	}
	if len(balances.Debts) != 1 || balances.Debts[0].FromName != "bob" || !balances.Debts[0].Amount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected bob to owe alice 15, got %+v", balances.Debts)
	}
}

func TestExportXLSX(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	circle := env.createCircle(t, alice, bob)

	_, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:         "Rent",
		TotalAmount:  decimal.RequireFromString("2000"),
		Participants: []ParticipantInput{{UserID: alice.ID}, {UserID: bob.ID}},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	var buf bytes.Buffer
	if err := env.transactions.ExportXLSX(ctxFor(bob), &buf, models.TransactionFilter{}, time.UTC); err != nil {
		t.Fatalf("ExportXLSX failed: %v", err)
	}
	// XLSX files are zip archives.
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatal("expected a zip archive")
	}
}

func TestExternalShare(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	circle := env.createCircle(t, alice)

	txn, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:         "Concert tickets",
		TotalAmount:  decimal.RequireFromString("150"),
		SplitType:    SplitCustom,
		Participants: []ParticipantInput{{UserID: alice.ID, Amount: amount("75")}, {Email: "eve@example.com", Amount: amount("75")}},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	token := txn.Members[1].AccessToken

	_, err = env.transactions.GetExternalShare(context.Background(), "not-a-token")
	assertCode(t, err, connect.CodeNotFound)

	view, err := env.transactions.GetExternalShare(context.Background(), token)
	if err != nil {
		t.Fatalf("GetExternalShare failed: %v", err)
	}
	if view.Name != "Concert tickets" || !view.Share.AmountOwed.Equal(decimal.NewFromInt(75)) || view.PayNowAvailable {
		t.Fatalf("unexpected external view: %+v", view)
	}

	confirmed, err := env.transactions.ConfirmExternalPayment(context.Background(), token)
	if err != nil {
		t.Fatalf("ConfirmExternalPayment failed: %v", err)
	}
	if !confirmed.Share.IsPaid() {
		t.Fatal("expected share to be paid")
	}
	// Confirming again neither fails nor notifies twice.
	if _, err := env.transactions.ConfirmExternalPayment(context.Background(), token); err != nil {
		t.Fatalf("second ConfirmExternalPayment failed: %v", err)
	}
	count, err := env.notifications.UnreadCount(ctxFor(alice))
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 payment_received notification, got %d", count)
	}
}

func TestPayNowService(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	circle := env.createCircle(t, alice, bob)

	txn, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:         "Hotpot",
		TotalAmount:  decimal.RequireFromString("88.80"),
		Participants: []ParticipantInput{{UserID: alice.ID}, {UserID: bob.ID}, {Email: "eve@example.com"}},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	_, err = env.paynow.QRForTransaction(ctxFor(bob), txn.ID)
	assertCode(t, err, connect.CodeFailedPrecondition) // alice has no PayNow yet
	_, err = env.paynow.QRForTransaction(ctxFor(alice), txn.ID)
	assertCode(t, err, connect.CodeFailedPrecondition) // creator has nothing to pay

	phone, enabled := "81234567", true
	if _, err := env.auth.UpdatePaymentSettings(ctxFor(alice), PaymentSettingsInput{PayNowPhone: &phone, PayNowEnabled: &enabled}); err != nil {
		t.Fatalf("UpdatePaymentSettings failed: %v", err)
	}

	qr, err := env.paynow.QRForTransaction(ctxFor(bob), txn.ID)
	if err != nil {
		t.Fatalf("QRForTransaction failed: %v", err)
	}
	if !strings.HasPrefix(qr.Payload, "000201") || !strings.Contains(qr.Payload, "+6581234567") || !strings.Contains(qr.Payload, "540529.60") {
		t.Fatalf("unexpected payload: %s", qr.Payload)
	}
	if !bytes.HasPrefix(qr.PNG, []byte("\x89PNG")) {
		t.Fatal("expected PNG bytes")
	}
	if !strings.HasPrefix(qr.DataURL(), "data:image/png;base64,") {
		t.Fatalf("unexpected data URL prefix: %.30s", qr.DataURL())
	}

	extQR, err := env.paynow.QRForExternal(context.Background(), txn.Members[2].AccessToken)
	if err != nil {
		t.Fatalf("QRForExternal failed: %v", err)
	}
	if extQR.MemberID != txn.Members[2].ID {
		t.Errorf("expected QR for the external share, got %s", extQR.MemberID)
	}

	if _, err := env.paynow.ConfirmPayment(ctxFor(bob), txn.ID); err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	_, err = env.paynow.QRForTransaction(ctxFor(bob), txn.ID)
	assertCode(t, err, connect.CodeFailedPrecondition) // already paid
}

func TestPayNowService_NonASCIIName(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	circle := env.createCircle(t, alice, bob)

	phone, enabled := "81234567", true
	if _, err := env.auth.UpdatePaymentSettings(ctxFor(alice), PaymentSettingsInput{PayNowPhone: &phone, PayNowEnabled: &enabled}); err != nil {
		t.Fatalf("UpdatePaymentSettings failed: %v", err)
	}
	txn, err := env.transactions.CreateTransaction(ctxFor(alice), circle.ID, TransactionInput{
		Name:         "晚餐聚会 Dinner 和朋友们一起吃饭",
		TotalAmount:  decimal.RequireFromString("40"),
		Participants: []ParticipantInput{{UserID: alice.ID}, {UserID: bob.ID}},
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	qr, err := env.paynow.QRForTransaction(ctxFor(bob), txn.ID)
	if err != nil {
		t.Fatalf("QRForTransaction failed: %v", err)
	}
	if qr.Reference != "PayPals Dinner" {
		t.Errorf("reference = %q, want %q", qr.Reference, "PayPals Dinner")
	}
	if !utf8.ValidString(qr.Payload) || !strings.Contains(qr.Payload, "62180114PayPals Dinner") {
		t.Errorf("unexpected payload: %s", qr.Payload)
	}
}
