package models

import "time"

// Role identifies which side of the care circle an account acts for.
type Role string

const (
	RoleSenior Role = "senior"
	RoleFamily Role = "family"
	RolePal    Role = "pal"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSenior, RoleFamily, RolePal:
		return true
	}
	return false
}

type DocumentStatus string

const (
	DocumentVerified DocumentStatus = "Verified"
	DocumentPending  DocumentStatus = "Pending"
	DocumentRejected DocumentStatus = "Rejected"
)

// Document types that must all be verified before a withdrawal.
const (
	DocIDProof      = "id_proof"
	DocAddressProof = "address_proof"
	DocBankDetails  = "bank_details"
)

// RequiredWithdrawalDocs lists the document types gating WithdrawFunds.
var RequiredWithdrawalDocs = []string{DocIDProof, DocAddressProof, DocBankDetails}

type VerificationDocument struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	FileRef    string         `json:"file_ref"`
	Status     DocumentStatus `json:"status"`
	UploadedAt time.Time      `json:"uploaded_at"`
	ReviewedAt *time.Time     `json:"reviewed_at,omitempty"`
}

type SupportTicket struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type TransactionType string

const (
	TxEarning    TransactionType = "earning"
	TxWithdrawal TransactionType = "withdrawal"
	TxTopUp      TransactionType = "topup"
	TxPayment    TransactionType = "payment"
	TxRefund     TransactionType = "refund"
)

type WalletTransaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	RelatedID   string          `json:"related_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Account is a registered senior, family member or pal together with its wallet.
type Account struct {
	ID               string                 `json:"id"`
	Role             Role                   `json:"role"`
	Name             string                 `json:"name"`
	Phone            string                 `json:"phone"`
	PasswordHash     string                 `json:"password_hash"`
	Email            string                 `json:"email,omitempty"`
	Address          string                 `json:"address,omitempty"`
	Avatar           string                 `json:"avatar,omitempty"`
	ProfileComplete  bool                   `json:"profile_complete"`
	WalletBalance    float64                `json:"wallet_balance"`
	TotalEarnings    float64                `json:"total_earnings"`
	TotalWithdrawals float64                `json:"total_withdrawals"`
	Documents        []VerificationDocument `json:"documents"`
	Tickets          []SupportTicket        `json:"tickets"`
	Transactions     []WalletTransaction    `json:"transactions"`
	DeviceToken      string                 `json:"device_token,omitempty"`
	SessionActive    bool                   `json:"session_active"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Document returns the verification document of the given type, if any.
func (a *Account) Document(docType string) (*VerificationDocument, bool) {
	for i := range a.Documents {
		if a.Documents[i].Type == docType {
			return &a.Documents[i], true
		}
	}
	return nil, false
}

// WithdrawalVerified reports whether every required withdrawal document is verified.
func (a *Account) WithdrawalVerified() bool {
	for _, t := range RequiredWithdrawalDocs {
		doc, ok := a.Document(t)
		if !ok || doc.Status != DocumentVerified {
			return false
		}
	}
	return true
}

// AccountPatch carries the fields a profile edit may change. Nil fields are left untouched.
type AccountPatch struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
	Avatar  *string `json:"avatar"`
	Role    *Role   `json:"role"`
}
