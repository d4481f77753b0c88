package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/carecircle/internal/metrics"
	"github.com/example/carecircle/internal/models"
)

const accountsKey = "accounts"

// SupportMailer forwards new support tickets to the support inbox.
type SupportMailer interface {
	SendSupportTicket(account models.Account, ticket models.SupportTicket) error
}

// AccountService owns identities, wallets, verification documents and support tickets.
type AccountService struct {
	mu       sync.Mutex
	store    StateStore
	log      logrus.FieldLogger
	notifier Notifier
	mailer   SupportMailer
	now      func() time.Time

	accounts map[string]*models.Account
	byPhone  map[string]string
}

type accountState struct {
	Accounts []*models.Account `json:"accounts"`
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Phone        string
	PasswordHash string
	Role         models.Role
	Name         string
}

// NewAccountService builds the ledger and rehydrates it from store.
func NewAccountService(ctx context.Context, store StateStore, logger logrus.FieldLogger) (*AccountService, error) {
	s := &AccountService{
		store:    store,
		log:      logger.WithField("component", "accounts"),
		now:      time.Now,
		accounts: make(map[string]*models.Account),
		byPhone:  make(map[string]string),
	}

	if store != nil {
		var state accountState
		if _, err := store.Load(ctx, accountsKey, &state); err != nil {
			return nil, fmt.Errorf("load accounts: %w", err)
		}
		for _, acct := range state.Accounts {
			if acct == nil {
				continue
			}
			s.accounts[acct.ID] = acct
			s.byPhone[acct.Phone] = acct.ID
		}
	}

	return s, nil
}

// SetNotifier wires the notification router once it exists.
func (s *AccountService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetMailer wires the support inbox mailer.
func (s *AccountService) SetMailer(m SupportMailer) {
	s.mailer = m
}

func (s *AccountService) snapshotLocked() accountState {
	state := accountState{Accounts: make([]*models.Account, 0, len(s.accounts))}
	for _, acct := range s.accounts {
		state.Accounts = append(state.Accounts, acct)
	}
	sort.Slice(state.Accounts, func(i, j int) bool {
		return state.Accounts[i].CreatedAt.Before(state.Accounts[j].CreatedAt)
	})
	return state
}

func (s *AccountService) saveLocked(ctx context.Context) {
	persist(ctx, s.store, s.log, accountsKey, s.snapshotLocked())
}

func (s *AccountService) lookupLocked(id string) (*models.Account, error) {
	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acct, nil
}

// Register creates a new account for phone.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (models.Account, error) {
	const op = "accounts.Register"

	phone := strings.TrimSpace(in.Phone)
	if phone == "" || in.PasswordHash == "" {
		return models.Account{}, ledgerErr(op, ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return models.Account{}, ledgerErr(op, ErrInvalidRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byPhone[phone]; exists {
		return models.Account{}, ledgerErr(op, ErrAlreadyExists)
	}

	now := s.now()
	acct := &models.Account{
		ID:            newID(),
		Role:          in.Role,
		Name:          strings.TrimSpace(in.Name),
		Phone:         phone,
		PasswordHash:  in.PasswordHash,
		Documents:     []models.VerificationDocument{},
		Tickets:       []models.SupportTicket{},
		Transactions:  []models.WalletTransaction{},
		SessionActive: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.accounts[acct.ID] = acct
	s.byPhone[phone] = acct.ID
	s.saveLocked(ctx)

	s.log.WithFields(logrus.Fields{"account_id": acct.ID, "role": acct.Role}).Info("account registered")
	return cloneAccount(acct), nil
}

// Get returns the account with id.
func (s *AccountService) Get(id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return models.Account{}, ledgerErr("accounts.Get", err)
	}
	return cloneAccount(acct), nil
}

// GetByPhone returns the account registered with phone.
func (s *AccountService) GetByPhone(phone string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPhone[strings.TrimSpace(phone)]
	if !ok {
		return models.Account{}, ledgerErr("accounts.GetByPhone", ErrNotFound)
	}
	return cloneAccount(s.accounts[id]), nil
}

// StartSession marks the account as signed in on a device.
func (s *AccountService) StartSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return ledgerErr("accounts.StartSession", err)
	}
	acct.SessionActive = true
	acct.UpdatedAt = s.now()
	s.saveLocked(ctx)
	return nil
}

// UpdateUser shallow-merges the non-nil fields of patch.
func (s *AccountService) UpdateUser(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return models.Account{}, ledgerErr("accounts.UpdateUser", err)
	}
	if err := applyPatch(acct, patch); err != nil {
		return models.Account{}, ledgerErr("accounts.UpdateUser", err)
	}
	acct.UpdatedAt = s.now()
	s.saveLocked(ctx)
	return cloneAccount(acct), nil
}

func applyPatch(acct *models.Account, patch models.AccountPatch) error {
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return ErrInvalidRole
		}
		acct.Role = *patch.Role
	}
	if patch.Name != nil {
		acct.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		acct.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Address != nil {
		acct.Address = *patch.Address
	}
	if patch.Avatar != nil {
		acct.Avatar = *patch.Avatar
	}
	return nil
}

// CompleteProfile merges patch and, for pals, seeds the wallet, earnings,
// verification documents and transactions the first time.
func (s *AccountService) CompleteProfile(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error) {
	const op = "accounts.CompleteProfile"

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return models.Account{}, ledgerErr(op, err)
	}
	if err := applyPatch(acct, patch); err != nil {
		return models.Account{}, ledgerErr(op, err)
	}

	now := s.now()
	acct.ProfileComplete = true
	acct.UpdatedAt = now
	if acct.Role == models.RolePal {
		seedPalAccount(acct, now)
	}
	s.saveLocked(ctx)
	return cloneAccount(acct), nil
}

func seedPalAccount(acct *models.Account, now time.Time) {
	if len(acct.Transactions) == 0 && acct.WalletBalance == 0 {
		acct.WalletBalance = 2500
		acct.TotalEarnings = 4500
		acct.TotalWithdrawals = 2000
		acct.Transactions = []models.WalletTransaction{
			{ID: newID(), Type: models.TxEarning, Amount: 4500, Status: "completed", Description: "Earnings from completed visits", CreatedAt: now.Add(-72 * time.Hour)},
			{ID: newID(), Type: models.TxWithdrawal, Amount: 2000, Status: "completed", Description: "Bank transfer", CreatedAt: now.Add(-24 * time.Hour)},
		}
	}
	if len(acct.Documents) == 0 {
		acct.Documents = []models.VerificationDocument{
			{ID: newID(), Type: models.DocIDProof, Status: models.DocumentVerified, UploadedAt: now},
			{ID: newID(), Type: models.DocAddressProof, Status: models.DocumentVerified, UploadedAt: now},
			{ID: newID(), Type: models.DocBankDetails, Status: models.DocumentPending, UploadedAt: now},
		}
	}
}

// WithdrawFunds moves amount out of the wallet. It requires every withdrawal
// document to be verified and a sufficient balance; otherwise nothing changes.
func (s *AccountService) WithdrawFunds(ctx context.Context, id string, amount float64) (models.WalletTransaction, error) {
	const op = "accounts.WithdrawFunds"

	if amount <= 0 {
		return models.WalletTransaction{}, ledgerErr(op, ErrInvalidAmount)
	}

	s.mu.Lock()
	acct, err := s.lookupLocked(id)
	if err != nil {
		s.mu.Unlock()
		return models.WalletTransaction{}, ledgerErr(op, err)
	}
	if !acct.WithdrawalVerified() {
		s.mu.Unlock()
		return models.WalletTransaction{}, ledgerErr(op, ErrVerificationIncomplete)
	}
	if acct.WalletBalance < amount {
		s.mu.Unlock()
		return models.WalletTransaction{}, ledgerErr(op, ErrInsufficientFunds)
	}

	acct.WalletBalance -= amount
	acct.TotalWithdrawals += amount
	tx := s.recordLocked(acct, models.TxWithdrawal, amount, "", "Withdrawal to bank account")
	role := acct.Role
	s.saveLocked(ctx)
	s.mu.Unlock()

	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "Withdrawal initiated",
		Message:      fmt.Sprintf("%s is on its way to your bank account.", formatAmount(amount)),
		Type:         models.NotifWallet,
		ReceiverRole: role,
		ReceiverID:   id,
		ActionRoute:  "/wallet",
		RelatedID:    tx.ID,
	})
	return tx, nil
}

func (s *AccountService) recordLocked(acct *models.Account, txType models.TransactionType, amount float64, relatedID, description string) models.WalletTransaction {
	now := s.now()
	tx := models.WalletTransaction{
		ID:          newID(),
		Type:        txType,
		Amount:      amount,
		Status:      "completed",
		Description: description,
		RelatedID:   relatedID,
		CreatedAt:   now,
	}
	acct.Transactions = append(acct.Transactions, tx)
	acct.UpdatedAt = now
	metrics.RecordWalletMovement(string(txType), amount)
	return tx
}

// Debit takes amount from the wallet as a payment.
func (s *AccountService) Debit(ctx context.Context, id string, amount float64, relatedID, description string) (models.WalletTransaction, error) {
	const op = "accounts.Debit"

	if amount <= 0 {
		return models.WalletTransaction{}, ledgerErr(op, ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return models.WalletTransaction{}, ledgerErr(op, err)
	}
	if acct.WalletBalance < amount {
		return models.WalletTransaction{}, ledgerErr(op, ErrInsufficientFunds)
	}

	acct.WalletBalance -= amount
	tx := s.recordLocked(acct, models.TxPayment, amount, relatedID, description)
	s.saveLocked(ctx)
	return tx, nil
}

// Credit adds amount to the wallet. Earnings also count towards TotalEarnings.
func (s *AccountService) Credit(ctx context.Context, id string, amount float64, txType models.TransactionType, relatedID, description string) (models.WalletTransaction, error) {
	const op = "accounts.Credit"

	if amount <= 0 {
		return models.WalletTransaction{}, ledgerErr(op, ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return models.WalletTransaction{}, ledgerErr(op, err)
	}

	acct.WalletBalance += amount
	if txType == models.TxEarning {
		acct.TotalEarnings += amount
	}
	tx := s.recordLocked(acct, txType, amount, relatedID, description)
	s.saveLocked(ctx)
	return tx, nil
}

// TopUp credits a completed external payment to the wallet.
func (s *AccountService) TopUp(ctx context.Context, id string, amount float64, reference string) (models.WalletTransaction, error) {
	tx, err := s.Credit(ctx, id, amount, models.TxTopUp, reference, "Wallet top-up")
	if err != nil {
		return tx, err
	}

	acct, err := s.Get(id)
	if err == nil {
		notify(ctx, s.notifier, s.log, NotificationInput{
			Title:        "Wallet topped up",
			Message:      fmt.Sprintf("%s was added to your wallet.", formatAmount(amount)),
			Type:         models.NotifWallet,
			ReceiverRole: acct.Role,
			ReceiverID:   id,
			ActionRoute:  "/wallet",
			RelatedID:    tx.ID,
		})
	}
	return tx, nil
}

// Transactions returns the wallet history, newest first.
func (s *AccountService) Transactions(id string) ([]models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return nil, ledgerErr("accounts.Transactions", err)
	}

	out := make([]models.WalletTransaction, len(acct.Transactions))
	copy(out, acct.Transactions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CreateSupportTicket files a ticket for the account.
func (s *AccountService) CreateSupportTicket(ctx context.Context, id, category, description string) (models.SupportTicket, error) {
	const op = "accounts.CreateSupportTicket"

	if strings.TrimSpace(category) == "" || strings.TrimSpace(description) == "" {
		return models.SupportTicket{}, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	acct, err := s.lookupLocked(id)
	if err != nil {
		s.mu.Unlock()
		return models.SupportTicket{}, ledgerErr(op, err)
	}

	ticket := models.SupportTicket{
		ID:          newID(),
		Category:    strings.TrimSpace(category),
		Description: strings.TrimSpace(description),
		Status:      "Open",
		CreatedAt:   s.now(),
	}
	acct.Tickets = append(acct.Tickets, ticket)
	acct.UpdatedAt = ticket.CreatedAt
	snapshot := cloneAccount(acct)
	s.saveLocked(ctx)
	s.mu.Unlock()

	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "Support ticket created",
		Message:      fmt.Sprintf("We received your %s request and will get back to you soon.", ticket.Category),
		Type:         models.NotifSupport,
		ReceiverRole: snapshot.Role,
		ReceiverID:   id,
		ActionRoute:  "/support",
		RelatedID:    ticket.ID,
	})

	if s.mailer != nil {
		go func() {
			if err := s.mailer.SendSupportTicket(snapshot, ticket); err != nil {
				s.log.WithError(err).WithField("ticket_id", ticket.ID).Warn("support email failed")
			}
		}()
	}

	return ticket, nil
}

// Tickets returns the account's support tickets.
func (s *AccountService) Tickets(id string) ([]models.SupportTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return nil, ledgerErr("accounts.Tickets", err)
	}
	out := make([]models.SupportTicket, len(acct.Tickets))
	copy(out, acct.Tickets)
	return out, nil
}

// UploadVerificationDoc records a document of docType as pending review,
// replacing an earlier upload of the same type.
func (s *AccountService) UploadVerificationDoc(ctx context.Context, id, docType, fileRef string) (models.VerificationDocument, error) {
	const op = "accounts.UploadVerificationDoc"

	docType = strings.TrimSpace(docType)
	if docType == "" {
		return models.VerificationDocument{}, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	acct, err := s.lookupLocked(id)
	if err != nil {
		s.mu.Unlock()
		return models.VerificationDocument{}, ledgerErr(op, err)
	}

	now := s.now()
	doc := models.VerificationDocument{
		ID:         newID(),
		Type:       docType,
		FileRef:    fileRef,
		Status:     models.DocumentPending,
		UploadedAt: now,
	}
	if existing, ok := acct.Document(docType); ok {
		doc.ID = existing.ID
		*existing = doc
	} else {
		acct.Documents = append(acct.Documents, doc)
	}
	acct.UpdatedAt = now
	role := acct.Role
	s.saveLocked(ctx)
	s.mu.Unlock()

	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "Document uploaded",
		Message:      fmt.Sprintf("Your %s is under review.", strings.ReplaceAll(docType, "_", " ")),
		Type:         models.NotifVerification,
		ReceiverRole: role,
		ReceiverID:   id,
		ActionRoute:  "/verification",
		RelatedID:    doc.ID,
	})
	return doc, nil
}

// ReviewVerificationDoc sets the review outcome of a document.
func (s *AccountService) ReviewVerificationDoc(ctx context.Context, id, docType string, status models.DocumentStatus) (models.VerificationDocument, error) {
	const op = "accounts.ReviewVerificationDoc"

	if status != models.DocumentVerified && status != models.DocumentRejected {
		return models.VerificationDocument{}, ledgerErr(op, ErrInvalidInput)
	}

	s.mu.Lock()
	acct, err := s.lookupLocked(id)
	if err != nil {
		s.mu.Unlock()
		return models.VerificationDocument{}, ledgerErr(op, err)
	}
	doc, ok := acct.Document(docType)
	if !ok {
		s.mu.Unlock()
		return models.VerificationDocument{}, ledgerErr(op, ErrNotFound)
	}

	now := s.now()
	doc.Status = status
	doc.ReviewedAt = &now
	acct.UpdatedAt = now
	reviewed := *doc
	role := acct.Role
	s.saveLocked(ctx)
	s.mu.Unlock()

	notify(ctx, s.notifier, s.log, NotificationInput{
		Title:        "Document " + strings.ToLower(string(status)),
		Message:      fmt.Sprintf("Your %s was %s.", strings.ReplaceAll(docType, "_", " "), strings.ToLower(string(status))),
		Type:         models.NotifVerification,
		ReceiverRole: role,
		ReceiverID:   id,
		ActionRoute:  "/verification",
		RelatedID:    reviewed.ID,
	})
	return reviewed, nil
}

// SetDeviceToken stores the push registration token of the signed-in device.
func (s *AccountService) SetDeviceToken(ctx context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return ledgerErr("accounts.SetDeviceToken", err)
	}
	acct.DeviceToken = strings.TrimSpace(token)
	acct.UpdatedAt = s.now()
	s.saveLocked(ctx)
	return nil
}

// Logout clears the session fields only. Wallet, documents and history stay.
func (s *AccountService) Logout(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.lookupLocked(id)
	if err != nil {
		return ledgerErr("accounts.Logout", err)
	}
	acct.SessionActive = false
	acct.DeviceToken = ""
	acct.UpdatedAt = s.now()
	s.saveLocked(ctx)
	return nil
}

// DeviceTokens returns push tokens of signed-in accounts with role. When
// receiverID is set only that account is considered.
func (s *AccountService) DeviceTokens(role models.Role, receiverID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []string
	for _, acct := range s.accounts {
		if acct.Role != role || !acct.SessionActive || acct.DeviceToken == "" {
			continue
		}
		if receiverID != "" && acct.ID != receiverID {
			continue
		}
		tokens = append(tokens, acct.DeviceToken)
	}
	sort.Strings(tokens)
	return tokens
}

func cloneAccount(a *models.Account) models.Account {
	out := *a
	out.Documents = append([]models.VerificationDocument(nil), a.Documents...)
	out.Tickets = append([]models.SupportTicket(nil), a.Tickets...)
	out.Transactions = append([]models.WalletTransaction(nil), a.Transactions...)
	return out
}
