package models

import "github.com/shopspring/decimal"

// Payment statuses for a participant's share.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// Transaction categories.
const (
	CategoryFood          = "food"
	CategoryTransport     = "transport"
	CategoryEntertainment = "entertainment"
	CategoryUtilities     = "utilities"
	CategoryShopping      = "shopping"
	CategoryTravel        = "travel"
	CategoryAccommodation = "accommodation"
	CategoryOther         = "other"
)

var categories = map[string]bool{
	CategoryFood:          true,
	CategoryTransport:     true,
	CategoryEntertainment: true,
	CategoryUtilities:     true,
	CategoryShopping:      true,
	CategoryTravel:        true,
	CategoryAccommodation: true,
	CategoryOther:         true,
}

// ValidCategory reports whether c is a known transaction category.
func ValidCategory(c string) bool {
	return categories[c]
}

// Location is an optional place attached to a transaction.
type Location struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	PlaceName string  `json:"place_name,omitempty"`
}

// Transaction is a shared expense recorded in a circle.
// The creator is the person who paid and is owed the participants' shares.
type Transaction struct {
	ID          string          `json:"id"`
	CircleID    string          `json:"circle_id"`
	CreatedBy   string          `json:"created_by"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	// Location is nil when the transaction has no place attached.
	Location *Location `json:"location,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	Members []TransactionMember `json:"members"`

	// Populated via JOIN for list views.
	CircleName string      `json:"circle_name,omitempty"`
	Creator    UserSummary `json:"creator"`
}

// TransactionMember is one participant's share of a transaction.
// Exactly one of UserID or ExternalEmail is set.
type TransactionMember struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id,omitempty"`

	ExternalEmail string `json:"external_email,omitempty"`
	ExternalName  string `json:"external_name,omitempty"`
	// AccessToken lets an external participant open their share without an account.
	AccessToken string `json:"-"`

	AmountOwed    decimal.Decimal `json:"amount_owed"`
	PaymentStatus string          `json:"payment_status"`
	PaidAt        int64           `json:"paid_at,omitempty"`

	User *UserSummary `json:"user,omitempty"`
}

// IsExternal reports whether the participant is not a registered user.
func (m TransactionMember) IsExternal() bool {
	return m.UserID == ""
}

// IsPaid reports whether the share has been paid.
func (m TransactionMember) IsPaid() bool {
	return m.PaymentStatus == PaymentPaid
}

// MemberFor returns the share belonging to userID, if any.
func (t *Transaction) MemberFor(userID string) (*TransactionMember, bool) {
	for i := range t.Members {
		if t.Members[i].UserID == userID && userID != "" {
			return &t.Members[i], true
		}
	}
	return nil, false
}

// TransactionFilter narrows ListUserTransactions.
type TransactionFilter struct {
	// Status filters on the user's own share status; empty means any.
	Status   string
	CircleID string
	Category string
	// Search matches name, description or place name, case-insensitively.
	Search string
}
