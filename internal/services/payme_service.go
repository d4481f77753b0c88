package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/example/carecircle/internal/models"
)

// Payme transaction states. A freshly created checkout row has not been seen
// by Payme yet and sits in TransactionStateCreated.
const (
	TransactionStateCreated         = 0
	TransactionStatePaid            = 2
	TransactionStatePending         = 1
	TransactionStatePendingCanceled = -1
	TransactionStatePaidCanceled    = -2
)

// pendingTimeout is how long Payme may keep a transaction pending before it
// is cancelled with reason 4.
const pendingTimeout = 12 * time.Minute

const reasonTimeout = 4

// PaymeErrorInfo describes a Payme-compatible error.
type PaymeErrorInfo struct {
	Name    string
	Code    int
	Message map[string]string
}

var (
	PaymeErrorInvalidAmount = PaymeErrorInfo{
		Name: "InvalidAmount",
		Code: -31001,
		Message: map[string]string{
			"uz": "Noto'g'ri summa",
			"ru": "Недопустимая сумма",
			"en": "Invalid amount",
		},
	}
	PaymeErrorCantCancel = PaymeErrorInfo{
		Name: "CantCancel",
		Code: -31007,
		Message: map[string]string{
			"uz": "Tranzaksiyani bekor qilib bo'lmaydi",
			"ru": "Невозможно отменить транзакцию",
			"en": "Unable to cancel transaction",
		},
	}
	PaymeErrorCantDoOperation = PaymeErrorInfo{
		Name: "CantDoOperation",
		Code: -31008,
		Message: map[string]string{
			"uz": "Biz operatsiyani bajara olmaymiz",
			"ru": "Мы не можем сделать операцию",
			"en": "We can't do operation",
		},
	}
	PaymeErrorTransactionNotFound = PaymeErrorInfo{
		Name: "TransactionNotFound",
		Code: -31003,
		Message: map[string]string{
			"uz": "Tranzaktsiya topilmadi",
			"ru": "Транзакция не найдена",
			"en": "Transaction not found",
		},
	}
	PaymeErrorTopUpNotFound = PaymeErrorInfo{
		Name: "TopUpNotFound",
		Code: -31050,
		Message: map[string]string{
			"uz": "To'ldirish topilmadi",
			"ru": "Пополнение не найдено",
			"en": "Top-up not found",
		},
	}
	PaymeErrorAlreadyDone = PaymeErrorInfo{
		Name: "AlreadyDone",
		Code: -31060,
		Message: map[string]string{
			"uz": "To'lov allaqachon qilingan",
			"ru": "Уже оплачено",
			"en": "Already paid",
		},
	}
	PaymeErrorPending = PaymeErrorInfo{
		Name: "Pending",
		Code: -31050,
		Message: map[string]string{
			"uz": "To'lov kutilayapti",
			"ru": "Ожидается оплата",
			"en": "Payment is pending",
		},
	}
	PaymeErrorInvalidAuthorization = PaymeErrorInfo{
		Name: "InvalidAuthorization",
		Code: -32504,
		Message: map[string]string{
			"uz": "Avtorizatsiya yaroqsiz",
			"ru": "Авторизация недействительна",
			"en": "Authorization invalid",
		},
	}
)

// TransactionError is a structured Payme transaction error.
type TransactionError struct {
	Info PaymeErrorInfo
	ID   any
	Data any
}

func (e *TransactionError) Error() string {
	return e.Info.Name
}

// TopUpWallet is the account ledger operation a completed payment feeds.
type TopUpWallet interface {
	TopUp(ctx context.Context, id string, amount float64, reference string) (models.WalletTransaction, error)
	Debit(ctx context.Context, id string, amount float64, relatedID, description string) (models.WalletTransaction, error)
}

// PaymeService runs the Payme merchant API for wallet top-ups.
type PaymeService struct {
	db          *gorm.DB
	wallet      TopUpWallet
	telegram    *TelegramService
	log         logrus.FieldLogger
	merchantID  string
	checkoutURL string
	now         func() time.Time
}

// PaymeOptions carries the merchant settings.
type PaymeOptions struct {
	MerchantID  string
	CheckoutURL string
}

func NewPaymeService(db *gorm.DB, wallet TopUpWallet, telegram *TelegramService, logger logrus.FieldLogger, opts PaymeOptions) *PaymeService {
	return &PaymeService{
		db:          db,
		wallet:      wallet,
		telegram:    telegram,
		log:         logger.WithField("component", "payme"),
		merchantID:  opts.MerchantID,
		checkoutURL: strings.TrimRight(opts.CheckoutURL, "/"),
		now:         time.Now,
	}
}

type PaymeAccount struct {
	TopUpID string `json:"top_up_id"`
}

type CheckPerformParams struct {
	Amount  int64        `json:"amount"`
	Account PaymeAccount `json:"account"`
}

type CheckTransactionParams struct {
	ID any `json:"id"`
}

type CreateTransactionParams struct {
	Account PaymeAccount `json:"account"`
	Time    int64        `json:"time"`
	Amount  int64        `json:"amount"`
	ID      string       `json:"id"`
}

type PerformTransactionParams struct {
	ID string `json:"id"`
}

type CancelTransactionParams struct {
	ID     string `json:"id"`
	Reason int    `json:"reason"`
}

type StatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type CheckTransactionResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type PerformTransactionResult struct {
	PerformTime int64  `json:"perform_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type CancelTransactionResult struct {
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type StatementTransaction struct {
	TransactionID string       `json:"transaction_id"`
	Time          int64        `json:"time"`
	Amount        int64        `json:"amount"`
	Account       PaymeAccount `json:"account"`
	CreateTime    int64        `json:"create_time"`
	PerformTime   int64        `json:"perform_time"`
	CancelTime    int64        `json:"cancel_time"`
	Transaction   string       `json:"transaction"`
	State         int          `json:"state"`
	Reason        *int         `json:"reason"`
}

// Checkout is a created top-up with the URL the client opens to pay.
type Checkout struct {
	TopUp models.PaymeTopUp `json:"top_up"`
	URL   string            `json:"url"`
}

// CreateCheckout opens a wallet top-up of amount (whole rupees) for accountID.
func (s *PaymeService) CreateCheckout(ctx context.Context, accountID string, amount int64) (*Checkout, error) {
	if amount <= 0 {
		return nil, ledgerErr("payme.CreateCheckout", ErrInvalidAmount)
	}

	topUp := models.PaymeTopUp{
		AccountID:  accountID,
		Status:     TransactionStateCreated,
		Amount:     amount,
		CreateTime: s.now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&topUp).Error; err != nil {
		return nil, fmt.Errorf("create top-up: %w", err)
	}

	return &Checkout{TopUp: topUp, URL: s.checkoutLink(topUp)}, nil
}

func (s *PaymeService) checkoutLink(topUp models.PaymeTopUp) string {
	params := fmt.Sprintf("m=%s;ac.top_up_id=%s;a=%d", s.merchantID, topUp.ID, topUp.Amount*100)
	return s.checkoutURL + "/" + base64.StdEncoding.EncodeToString([]byte(params))
}

// CheckPerformTransaction validates that the top-up exists and that amount, in
// tiyin, is exactly the top-up amount.
func (s *PaymeService) CheckPerformTransaction(ctx context.Context, params CheckPerformParams, id any) error {
	topUp, err := s.findTopUp(ctx, params.Account.TopUpID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &TransactionError{Info: PaymeErrorTopUpNotFound, ID: id}
		}
		return err
	}

	if params.Amount != topUp.Amount*100 {
		return &TransactionError{Info: PaymeErrorInvalidAmount, ID: id}
	}

	return nil
}

func transactionLookupID(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatInt(int64(v), 10), true
	}
	return "", false
}

// CheckTransaction returns transaction state by transaction id.
func (s *PaymeService) CheckTransaction(ctx context.Context, params CheckTransactionParams, id any) (*CheckTransactionResult, error) {
	lookupID, ok := transactionLookupID(params.ID)
	if !ok {
		return nil, &TransactionError{Info: PaymeErrorTransactionNotFound, ID: id}
	}

	txn, err := s.findByTransaction(ctx, lookupID, id)
	if err != nil {
		return nil, err
	}

	var reason *int
	if txn.Reason != nil && *txn.Reason != 0 {
		reason = txn.Reason
	}

	return &CheckTransactionResult{
		CreateTime:  txn.CreateTime,
		PerformTime: txn.PerformTime,
		CancelTime:  txn.CancelTime,
		Transaction: txn.TransactionID,
		State:       txn.Status,
		Reason:      reason,
	}, nil
}

func (s *PaymeService) expired(createTime int64) bool {
	return s.now().UnixMilli()-createTime >= pendingTimeout.Milliseconds()
}

// CreateTransaction binds a Payme transaction to a top-up, or reports the one
// already bound.
func (s *PaymeService) CreateTransaction(ctx context.Context, params CreateTransactionParams, id any) (*CheckTransactionResult, error) {
	if err := s.CheckPerformTransaction(ctx, CheckPerformParams{
		Amount:  params.Amount,
		Account: params.Account,
	}, id); err != nil {
		return nil, err
	}

	var existing models.PaymeTopUp
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", params.ID).
		First(&existing).Error
	if err == nil {
		if existing.Status != TransactionStatePending {
			return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
		}

		if s.expired(existing.CreateTime) {
			if err := s.cancelExpired(ctx, params.ID); err != nil {
				return nil, err
			}
			return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
		}

		return &CheckTransactionResult{
			CreateTime:  existing.CreateTime,
			Transaction: params.ID,
			State:       TransactionStatePending,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	topUp, err := s.findTopUp(ctx, params.Account.TopUpID)
	if err != nil {
		return nil, err
	}
	switch topUp.Status {
	case TransactionStatePaid:
		return nil, &TransactionError{Info: PaymeErrorAlreadyDone, ID: id}
	case TransactionStatePending:
		return nil, &TransactionError{Info: PaymeErrorPending, ID: id}
	case TransactionStateCreated:
	default:
		return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
	}

	res := s.db.WithContext(ctx).
		Model(&models.PaymeTopUp{}).
		Where("id = ? AND status = ?", topUp.ID, TransactionStateCreated).
		Updates(map[string]any{
			"transaction_id": params.ID,
			"status":         TransactionStatePending,
			"create_time":    params.Time,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &TransactionError{Info: PaymeErrorPending, ID: id}
	}

	return &CheckTransactionResult{
		Transaction: params.ID,
		State:       TransactionStatePending,
		CreateTime:  params.Time,
	}, nil
}

func (s *PaymeService) cancelExpired(ctx context.Context, transactionID string) error {
	return s.db.WithContext(ctx).
		Model(&models.PaymeTopUp{}).
		Where("transaction_id = ? AND status = ?", transactionID, TransactionStatePending).
		Updates(map[string]any{
			"status":      TransactionStatePendingCanceled,
			"reason":      reasonTimeout,
			"cancel_time": s.now().UnixMilli(),
		}).Error
}

// PerformTransaction marks a pending transaction paid and credits the wallet.
// The wallet is credited at most once per top-up, however often Payme retries.
func (s *PaymeService) PerformTransaction(ctx context.Context, params PerformTransactionParams, id any) (*PerformTransactionResult, error) {
	txn, err := s.findByTransaction(ctx, params.ID, id)
	if err != nil {
		return nil, err
	}

	if txn.Status != TransactionStatePending {
		if txn.Status != TransactionStatePaid {
			return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
		}
		s.creditOnce(ctx, txn)
		return &PerformTransactionResult{
			PerformTime: txn.PerformTime,
			Transaction: txn.TransactionID,
			State:       TransactionStatePaid,
		}, nil
	}

	if s.expired(txn.CreateTime) {
		if err := s.cancelExpired(ctx, params.ID); err != nil {
			return nil, err
		}
		return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
	}

	performTime := s.now().UnixMilli()
	res := s.db.WithContext(ctx).
		Model(&models.PaymeTopUp{}).
		Where("transaction_id = ? AND status = ?", params.ID, TransactionStatePending).
		Updates(map[string]any{
			"status":       TransactionStatePaid,
			"perform_time": performTime,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
	}

	txn.Status = TransactionStatePaid
	txn.PerformTime = performTime
	s.creditOnce(ctx, txn)

	return &PerformTransactionResult{
		PerformTime: performTime,
		Transaction: txn.TransactionID,
		State:       TransactionStatePaid,
	}, nil
}

// creditOnce claims the credited flag and tops the wallet up. Losing the claim
// means another request already credited this top-up.
func (s *PaymeService) creditOnce(ctx context.Context, txn *models.PaymeTopUp) {
	if txn.Credited {
		return
	}

	claim := s.db.WithContext(ctx).
		Model(&models.PaymeTopUp{}).
		Where("id = ? AND credited = ?", txn.ID, false).
		Update("credited", true)
	if claim.Error != nil {
		s.log.WithError(claim.Error).WithField("top_up_id", txn.ID).Error("claim top-up credit")
		return
	}
	if claim.RowsAffected == 0 {
		return
	}

	entry := s.log.WithFields(logrus.Fields{"top_up_id": txn.ID, "account_id": txn.AccountID})
	if _, err := s.wallet.TopUp(ctx, txn.AccountID, float64(txn.Amount), txn.TransactionID); err != nil {
		entry.WithError(err).Error("wallet top-up failed")
		if err := s.db.WithContext(ctx).
			Model(&models.PaymeTopUp{}).
			Where("id = ?", txn.ID).
			Update("credited", false).Error; err != nil {
			entry.WithError(err).Error("release top-up credit claim")
		}
		return
	}
	txn.Credited = true
	entry.WithField("amount", txn.Amount).Info("wallet topped up")

	if s.telegram != nil {
		accountID, transactionID, amount := txn.AccountID, txn.TransactionID, float64(txn.Amount)
		go func() {
			if err := s.telegram.NotifyTopUp(accountID, transactionID, amount); err != nil {
				s.log.WithError(err).Warn("telegram top-up notification failed")
			}
		}()
	}
}

// CancelTransaction cancels an existing transaction. Cancelling a paid
// top-up takes the amount back out of the wallet.
func (s *PaymeService) CancelTransaction(ctx context.Context, params CancelTransactionParams, id any) (*CancelTransactionResult, error) {
	txn, err := s.findByTransaction(ctx, params.ID, id)
	if err != nil {
		return nil, err
	}

	currentTime := s.now().UnixMilli()

	if txn.Status > 0 {
		newState := -1 * intAbs(txn.Status)
		updates := map[string]any{
			"status":      newState,
			"reason":      params.Reason,
			"cancel_time": currentTime,
		}

		if txn.Status == TransactionStatePaid && txn.Credited {
			if _, err := s.wallet.Debit(ctx, txn.AccountID, float64(txn.Amount), txn.TransactionID, "Top-up reversal"); err != nil {
				s.log.WithError(err).WithField("top_up_id", txn.ID).Warn("cannot reverse top-up")
				return nil, &TransactionError{Info: PaymeErrorCantCancel, ID: id}
			}
			updates["credited"] = false
		}

		if err := s.db.WithContext(ctx).
			Model(&models.PaymeTopUp{}).
			Where("transaction_id = ?", params.ID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
		txn.Status = newState
		txn.CancelTime = currentTime
	}

	cancelTime := txn.CancelTime
	if cancelTime == 0 {
		cancelTime = currentTime
	}

	return &CancelTransactionResult{
		CancelTime:  cancelTime,
		Transaction: txn.TransactionID,
		State:       -1 * intAbs(txn.Status),
	}, nil
}

// GetStatement returns transactions in the given time range.
func (s *PaymeService) GetStatement(ctx context.Context, params StatementParams) ([]StatementTransaction, error) {
	var txns []models.PaymeTopUp
	if err := s.db.WithContext(ctx).
		Where("create_time >= ? AND create_time <= ? AND transaction_id <> ?", params.From, params.To, "").
		Find(&txns).Error; err != nil {
		return nil, err
	}

	result := make([]StatementTransaction, 0, len(txns))
	for _, t := range txns {
		result = append(result, StatementTransaction{
			TransactionID: t.TransactionID,
			Time:          t.CreateTime,
			Amount:        t.Amount * 100,
			Account:       PaymeAccount{TopUpID: t.ID.String()},
			CreateTime:    t.CreateTime,
			PerformTime:   t.PerformTime,
			CancelTime:    t.CancelTime,
			Transaction:   t.TransactionID,
			State:         t.Status,
			Reason:        t.Reason,
		})
	}

	return result, nil
}

// TopUps lists the Payme top-ups of one account, newest first.
func (s *PaymeService) TopUps(ctx context.Context, accountID string) ([]models.PaymeTopUp, error) {
	var out []models.PaymeTopUp
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *PaymeService) findTopUp(ctx context.Context, ref string) (*models.PaymeTopUp, error) {
	parsed, err := uuid.Parse(ref)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}

	var topUp models.PaymeTopUp
	if err := s.db.WithContext(ctx).Where("id = ?", parsed).First(&topUp).Error; err != nil {
		return nil, err
	}
	return &topUp, nil
}

func (s *PaymeService) findByTransaction(ctx context.Context, transactionID string, id any) (*models.PaymeTopUp, error) {
	var txn models.PaymeTopUp
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &TransactionError{Info: PaymeErrorTransactionNotFound, ID: id}
		}
		return nil, err
	}
	return &txn, nil
}

func intAbs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ExpirePending cancels every transaction pending for longer than the Payme
// timeout with reason 4 and returns how many were cancelled.
func (s *PaymeService) ExpirePending(ctx context.Context) (int64, error) {
	now := s.now().UnixMilli()
	res := s.db.WithContext(ctx).
		Model(&models.PaymeTopUp{}).
		Where("status = ? AND create_time <= ?", TransactionStatePending, now-pendingTimeout.Milliseconds()).
		Updates(map[string]any{
			"status":      TransactionStatePendingCanceled,
			"reason":      reasonTimeout,
			"cancel_time": now,
		})
	return res.RowsAffected, res.Error
}
