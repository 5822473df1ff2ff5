package domain

import "time"

// Account is a user's cash account. Balance never goes negative through
// trading operations.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Balance   float64   `json:"balance"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentStatus tracks a deposit notification through admin review.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// PaymentNotification is a user's claim that a bank transfer was sent.
// Approval credits Amount to the account.
type PaymentNotification struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Amount     float64       `json:"amount"`
	BankName   string        `json:"bank_name"`
	SenderName string        `json:"sender_name"`
	Reference  string        `json:"reference"`
	PaidAt     time.Time     `json:"paid_at"`
	Status     PaymentStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}
