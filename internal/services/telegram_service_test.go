package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carecircle/internal/models"
)

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1,234,567 INR", FormatPrice(1234567, ""))
	assert.Equal(t, "950 INR", FormatPrice(950, ""))
	assert.Equal(t, "12,000 UZS", FormatPrice(12000, "UZS"))
}

func TestNotifyNewOrderPostsToAdminChat(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewTelegramService("token", "42", quietLogger())
	svc.baseURL = srv.URL

	err := svc.NotifyNewOrder(models.Order{
		ID:          "0f7c2b1e-aaaa-bbbb-cccc-000000000000",
		Kind:        models.OrderPharmacy,
		SeniorName:  "Ravi",
		CreatorName: "Meera",
		CreatorRole: models.RoleFamily,
		Items:       []models.CartItem{{Name: "Insulin", Price: 500, Quantity: 2}},
		TotalAmount: 1000,
		Paid:        true,
		Status:      models.StatusProcessing,
	})
	require.NoError(t, err)

	assert.Equal(t, "/bottoken/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "NEW PHARMACY ORDER")
	assert.Contains(t, got.Text, "0f7c2b1e")
	assert.Contains(t, got.Text, "1,000 INR")
}

func TestTelegramWithoutConfigIsNoop(t *testing.T) {
	svc := NewTelegramService("", "", quietLogger())
	assert.NoError(t, svc.NotifyNewOrder(models.Order{}))
	assert.NoError(t, svc.SendMessage("1", "hi"))
}

func TestTelegramReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewTelegramService("token", "42", quietLogger())
	svc.baseURL = srv.URL
	assert.Error(t, svc.SendToAdmin("hello"))
}
