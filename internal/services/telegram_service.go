package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/carecircle/internal/models"
)

const telegramAPI = "https://api.telegram.org"

// TelegramService handles sending operator alerts to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
	log         logrus.FieldLogger
}

var _ OpsNotifier = (*TelegramService)(nil)

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, logger logrus.FieldLogger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     telegramAPI,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         logger.WithField("component", "telegram"),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		s.log.Debug("bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		s.log.WithError(err).Warn("failed to send message")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.WithField("status", resp.StatusCode).Warn("unexpected telegram status")
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		s.log.Debug("admin chat id not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// FormatPrice formats price with currency and thousand separators.
func FormatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = "INR"
	}
	str := fmt.Sprintf("%d", int64(amount))

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 && digit != '-' && str[i-1] != '-' {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return result.String() + " " + currency
}

// NotifyNewOrder tells operators about a new pharmacy or grocery order.
func (s *TelegramService) NotifyNewOrder(order models.Order) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			item.Name,
			item.Quantity,
			FormatPrice(item.Price, ""),
			FormatPrice(item.LineTotal(), ""),
		))
	}
	if order.PrescriptionRef != "" {
		itemsList.WriteString("📄 Prescription attached\n")
	}

	paidText := "⏳ Awaiting family review"
	if order.Paid {
		paidText = "✅ Paid from family wallet"
	}

	message := fmt.Sprintf(`<b>🛒 NEW %s ORDER</b>
<b>📋 Order:</b> %s
<b>👤 Senior:</b> %s
<b>🙋 Created by:</b> %s (%s)
<b>📦 Items:</b>
%s
<b>💰 Total:</b> %s
<b>💳 Payment:</b> %s
<b>📍 Status:</b> %s
━━━━━━━━━━━━━━━━━━`,
		strings.ToUpper(string(order.Kind)),
		shortID(order.ID),
		order.SeniorName,
		order.CreatorName,
		order.CreatorRole,
		itemsList.String(),
		FormatPrice(order.TotalAmount, ""),
		paidText,
		order.Status,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

// NotifyTopUp tells operators about a completed Payme wallet top-up.
func (s *TelegramService) NotifyTopUp(accountID, transactionID string, amount float64) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>✅ WALLET TOP-UP RECEIVED</b>
<b>👤 Account:</b> %s
<b>🧾 Payme transaction:</b> %s
<b>💰 Amount:</b> %s
━━━━━━━━━━━━━━━━━━
<i>CareCircle</i>`,
		shortID(accountID),
		transactionID,
		FormatPrice(amount, ""),
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
