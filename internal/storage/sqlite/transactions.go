package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karysgoh/paypals-project-sub000/internal/models"
)

const txnSelect = `
	SELECT t.id, t.circle_id, t.created_by, t.name, t.description, t.category, t.total_amount,
	       t.location_lat, t.location_lng, t.place_name, t.created_at, t.updated_at,
	       c.name, u.username, u.email
	FROM transactions t
	JOIN circles c ON c.id = t.circle_id
	JOIN users u ON u.id = t.created_by`

const memberColumns = `tm.id, tm.transaction_id, tm.user_id, tm.external_email, tm.external_name,
	       tm.access_token, tm.amount_owed, tm.payment_status, tm.paid_at, u.username, u.email`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	t := &models.Transaction{}
	var (
		description, placeName sql.NullString
		lat, lng               sql.NullFloat64
	)
	err := row.Scan(&t.ID, &t.CircleID, &t.CreatedBy, &t.Name, &description, &t.Category, &t.TotalAmount,
		&lat, &lng, &placeName, &t.CreatedAt, &t.UpdatedAt,
		&t.CircleName, &t.Creator.Username, &t.Creator.Email)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Creator.ID = t.CreatedBy
	if lat.Valid && lng.Valid {
		t.Location = &models.Location{Lat: lat.Float64, Lng: lng.Float64, PlaceName: placeName.String}
	}
	return t, nil
}

func scanTransactionMember(row rowScanner) (models.TransactionMember, error) {
	var (
		m                          models.TransactionMember
		userID, email, name, token sql.NullString
		paidAt                     sql.NullInt64
		username, userEmail        sql.NullString
	)
	err := row.Scan(&m.ID, &m.TransactionID, &userID, &email, &name, &token,
		&m.AmountOwed, &m.PaymentStatus, &paidAt, &username, &userEmail)
	if err != nil {
		return m, err
	}
	m.UserID = userID.String
	m.ExternalEmail = email.String
	m.ExternalName = name.String
	m.AccessToken = token.String
	m.PaidAt = paidAt.Int64
	if m.UserID != "" {
		m.User = &models.UserSummary{ID: m.UserID, Username: username.String, Email: userEmail.String}
	}
	return m, nil
}

// CreateTransaction persists a new transaction and its participant shares.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	// Generate IDs if not set
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt == 0 {
		txn.CreatedAt = time.Now().Unix()
	}
	txn.UpdatedAt = txn.CreatedAt

	var lat, lng, place interface{}
	if txn.Location != nil {
		lat, lng, place = txn.Location.Lat, txn.Location.Lng, nullString(txn.Location.PlaceName)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, circle_id, created_by, name, description, category, total_amount,
		                          location_lat, location_lng, place_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.CircleID, txn.CreatedBy, txn.Name, nullString(txn.Description), txn.Category,
		txn.TotalAmount.StringFixed(2), lat, lng, place, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	// Insert participant shares
	for i := range txn.Members {
		m := &txn.Members[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.TransactionID = txn.ID
		if m.PaymentStatus == "" {
			m.PaymentStatus = models.PaymentPending
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO transaction_members (id, transaction_id, user_id, external_email, external_name,
			                                 access_token, amount_owed, payment_status, paid_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.TransactionID, nullString(m.UserID), nullString(m.ExternalEmail), nullString(m.ExternalName),
			nullString(m.AccessToken), m.AmountOwed.StringFixed(2), m.PaymentStatus, nullInt(m.PaidAt),
		)
		if err != nil {
			return classify(err, "insert transaction member")
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTransaction retrieves a transaction by ID, including its members.
func (s *SQLiteStore) GetTransaction(ctx context.Context, txnID string) (*models.Transaction, error) {
	txns, err := s.queryTransactions(ctx, txnSelect+" WHERE t.id = ?", txnID)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, notFound("transaction", txnID)
	}
	return txns[0], nil
}

// ListTransactionsByUser retrieves transactions the user created or is a participant of.
func (s *SQLiteStore) ListTransactionsByUser(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error) {
	where := []string{`(t.created_by = ? OR EXISTS (
		SELECT 1 FROM transaction_members own WHERE own.transaction_id = t.id AND own.user_id = ?))`}
	args := []interface{}{userID, userID}

	if filter.CircleID != "" {
		where = append(where, "t.circle_id = ?")
		args = append(args, filter.CircleID)
	}
	if filter.Category != "" {
		where = append(where, "t.category = ?")
		args = append(args, filter.Category)
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		where = append(where, `(lower(t.name) LIKE ? ESCAPE '\'
			OR lower(coalesce(t.description, '')) LIKE ? ESCAPE '\'
			OR lower(coalesce(t.place_name, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	// A transaction is pending for the user while their own share is unpaid,
	// or, for transactions they created, while anyone else's share is unpaid.
	const pending = `EXISTS (
		SELECT 1 FROM transaction_members p
		WHERE p.transaction_id = t.id AND p.payment_status = 'pending'
		  AND (p.user_id = ? OR (t.created_by = ? AND (p.user_id IS NULL OR p.user_id <> ?))))`
	switch filter.Status {
	case models.PaymentPending:
		where = append(where, pending)
		args = append(args, userID, userID, userID)
	case models.PaymentPaid:
		where = append(where, "NOT "+pending)
		args = append(args, userID, userID, userID)
	}

	query := txnSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY t.created_at DESC, t.id"
	return s.queryTransactions(ctx, query, args...)
}

// ListTransactionsByCircle retrieves all transactions in a circle, newest first.
func (s *SQLiteStore) ListTransactionsByCircle(ctx context.Context, circleID string) ([]*models.Transaction, error) {
	return s.queryTransactions(ctx, txnSelect+" WHERE t.circle_id = ? ORDER BY t.created_at DESC, t.id", circleID)
}

// queryTransactions runs a txnSelect query and attaches members to every result.
func (s *SQLiteStore) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var (
		txns []*models.Transaction
		ids  []string
	)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	rows.Close()

	members, err := s.loadTransactionMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range txns {
		t.Members = members[t.ID]
	}
	return txns, nil
}

// loadTransactionMembers fetches members for many transactions in one query.
func (s *SQLiteStore) loadTransactionMembers(ctx context.Context, txnIDs []string) (map[string][]models.TransactionMember, error) {
	result := make(map[string][]models.TransactionMember, len(txnIDs))
	if len(txnIDs) == 0 {
		return result, nil
	}

	in, args := inClause(txnIDs)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM transaction_members tm
		LEFT JOIN users u ON u.id = tm.user_id
		WHERE tm.transaction_id IN `+in+`
		ORDER BY tm.rowid`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanTransactionMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction member: %w", err)
		}
		result[m.TransactionID] = append(result[m.TransactionID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction members: %w", err)
	}
	return result, nil
}

// UpdateTransaction updates the descriptive fields of a transaction.
func (s *SQLiteStore) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	txn.UpdatedAt = time.Now().Unix()

	var lat, lng, place interface{}
	if txn.Location != nil {
		lat, lng, place = txn.Location.Lat, txn.Location.Lng, nullString(txn.Location.PlaceName)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET name = ?, description = ?, category = ?, location_lat = ?, location_lng = ?, place_name = ?, updated_at = ?
		WHERE id = ?`,
		txn.Name, nullString(txn.Description), txn.Category, lat, lng, place, txn.UpdatedAt, txn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return requireAffected(res, "transaction", txn.ID)
}

// DeleteTransaction removes a transaction; its members cascade.
func (s *SQLiteStore) DeleteTransaction(ctx context.Context, txnID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", txnID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireAffected(res, "transaction", txnID)
}

// UpdatePaymentStatus sets the payment status of one share.
func (s *SQLiteStore) UpdatePaymentStatus(ctx context.Context, memberID, status string, paidAt int64) error {
	if status != models.PaymentPaid {
		paidAt = 0
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE transaction_members SET payment_status = ?, paid_at = ? WHERE id = ?",
		status, nullInt(paidAt), memberID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return requireAffected(res, "transaction member", memberID)
}

// GetTransactionMemberByToken retrieves an external share by its access token.
func (s *SQLiteStore) GetTransactionMemberByToken(ctx context.Context, token string) (*models.TransactionMember, error) {
	m, err := scanTransactionMember(s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM transaction_members tm
		LEFT JOIN users u ON u.id = tm.user_id
		WHERE tm.access_token = ?`,
		token,
	))
	if isNoRows(err) {
		return nil, notFound("transaction member", "by token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction member: %w", err)
	}
	return &m, nil
}
