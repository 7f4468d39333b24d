package models

import "time"

// TransactionType classifies a credit ledger entry.
type TransactionType string

const (
	TransactionRedeem          TransactionType = "redeem"
	TransactionPurchase        TransactionType = "purchase"
	TransactionGeneration      TransactionType = "generation"
	TransactionAdminAdjustment TransactionType = "admin_adjustment"
)

// PaymentStatus is the lifecycle state of a payment. pending is the only
// non-terminal state.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentProvider identifies which external processor owns a payment.
const (
	ProviderOxaPay = "oxapay"
	ProviderStripe = "stripe"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"-"`
	Credits      int       `json:"credits"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreditTransaction is one append-only ledger entry. Amount is signed:
// positive grants, negative debits.
type CreditTransaction struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"userId"`
	Amount    int             `json:"amount"`
	Type      TransactionType `json:"type"`
	KeyValue  string          `json:"keyValue,omitempty"`
	Details   string          `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// APIKey is a single-use redemption key. UsedBy is nil until the key is
// redeemed; the transition is one-way.
type APIKey struct {
	ID        int64      `json:"id"`
	KeyValue  string     `json:"key"`
	KeyType   string     `json:"keyType"`
	Credits   int        `json:"credits"`
	UsedBy    *string    `json:"usedBy,omitempty"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Payment struct {
	ID               int64         `json:"id"`
	UserID           string        `json:"userId"`
	Provider         string        `json:"provider"`
	ProviderTrackID  string        `json:"trackId"`
	OrderID          string        `json:"orderId"`
	AmountCents      int           `json:"amountCents"`
	CreditsPurchased int           `json:"credits"`
	Status           PaymentStatus `json:"status"`
	RawPayload       string        `json:"-"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

type Generation struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	Style       string    `json:"style"`
	TextContent string    `json:"text,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreditsUsed int       `json:"creditsUsed"`
	CreatedAt   time.Time `json:"createdAt"`
}
