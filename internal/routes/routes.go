package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/example/carecircle/internal/config"
	"github.com/example/carecircle/internal/handlers"
	"github.com/example/carecircle/internal/middleware"
	"github.com/example/carecircle/internal/models"
	"github.com/example/carecircle/internal/services"
)

// Services are the ledgers the HTTP API serves. Payme is nil when no database
// is configured.
type Services struct {
	Accounts      *services.AccountService
	Notifications *services.NotificationService
	Chats         *services.ChatService
	Orders        *services.OrderService
	Bookings      *services.BookingService
	Payme         *services.PaymeService
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, svc Services, cfg *config.Config, chatLimiter *middleware.RateLimiter, logger logrus.FieldLogger) {
	authHandler := handlers.NewAuthHandler(svc.Accounts, cfg)
	profileHandler := handlers.NewProfileHandler(svc.Accounts)
	orderHandler := handlers.NewOrderHandler(svc.Orders, svc.Accounts)
	gigHandler := handlers.NewGigHandler(svc.Bookings, svc.Accounts)
	chatHandler := handlers.NewChatHandler(svc.Chats, svc.Accounts)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications)

	api := app.Group("/api")
	requireAuth := middleware.AuthMiddleware(cfg)
	palOnly := middleware.RequireRole(models.RolePal)
	familyOnly := middleware.RequireRole(models.RoleFamily)
	requesters := middleware.RequireRole(models.RoleSenior, models.RoleFamily)
	rejecters := middleware.RequireRole(models.RolePal, models.RoleFamily)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/logout", requireAuth, authHandler.Logout)

	// Operator routes
	ops := api.Group("/ops", middleware.OpsKeyMiddleware(cfg.OpsAPIKey))
	ops.Put("/accounts/:id/documents/:type", profileHandler.ReviewDocument)

	// Payme payment routes
	if svc.Payme != nil {
		paymeHandler := handlers.NewPaymeHandler(svc.Payme, logger)
		payme := api.Group("/payme")
		payme.Post("/pay", middleware.PaymeAuthMiddleware(cfg.PaymeMerchantKey), paymeHandler.Pay)
		payme.Post("/checkout", requireAuth, paymeHandler.Checkout)
		payme.Get("/top-ups", requireAuth, paymeHandler.ListTopUps)
	}

	// Protected routes
	protected := api.Group("", requireAuth)

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Post("/profile/complete", profileHandler.CompleteProfile)
	protected.Put("/profile/device-token", profileHandler.SetDeviceToken)
	protected.Post("/profile/documents", profileHandler.UploadDocument)
	protected.Get("/profile/tickets", profileHandler.ListTickets)
	protected.Post("/profile/tickets", profileHandler.CreateTicket)

	protected.Get("/wallet", profileHandler.Wallet)
	protected.Get("/wallet/transactions", profileHandler.Transactions)
	protected.Post("/wallet/withdraw", profileHandler.Withdraw)

	protected.Get("/cart/:kind", orderHandler.GetCart)
	protected.Post("/cart/:kind/items", orderHandler.AddCartItem)
	protected.Put("/cart/:kind/items/:itemId", orderHandler.UpdateCartItem)
	protected.Delete("/cart/:kind/items/:itemId", orderHandler.RemoveCartItem)
	protected.Delete("/cart/:kind", orderHandler.ClearCart)

	protected.Post("/orders", requesters, orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Post("/orders/:id/forward", familyOnly, orderHandler.ForwardOrder)
	protected.Post("/orders/:id/accept", palOnly, orderHandler.AcceptOrder)
	protected.Post("/orders/:id/reject", rejecters, orderHandler.RejectOrder)
	protected.Post("/orders/:id/cancel", requesters, orderHandler.CancelOrder)
	protected.Post("/orders/:id/complete", palOnly, orderHandler.CompleteOrder)

	protected.Get("/gigs", gigHandler.ListGigs)
	protected.Post("/gigs", gigHandler.CreateGig)
	protected.Post("/gigs/:id/accept", palOnly, gigHandler.AcceptGig)
	protected.Post("/gigs/:id/decline", palOnly, gigHandler.DeclineGig)
	protected.Post("/gigs/:id/complete", palOnly, gigHandler.CompleteGig)

	protected.Get("/conversations", chatHandler.ListConversations)
	protected.Post("/conversations", chatHandler.CreateConversation)
	protected.Get("/conversations/:id/messages", chatHandler.ListMessages)
	protected.Post("/conversations/:id/messages", chatLimiter.Handler(), chatHandler.SendMessage)
	protected.Post("/conversations/:id/read", chatHandler.MarkRead)
	protected.Post("/conversations/:id/call", chatHandler.StartCall)
	protected.Delete("/conversations/:id/call", chatHandler.EndCall)
	protected.Post("/blocks/:userId", chatHandler.ToggleBlock)
	protected.Get("/blocks/:userId", chatHandler.IsBlocked)

	protected.Get("/notifications", notificationHandler.ListNotifications)
	protected.Post("/notifications", notificationHandler.CreateNotification)
	protected.Post("/notifications/read-all", notificationHandler.MarkAllRead)
	protected.Post("/notifications/:id/read", notificationHandler.MarkRead)
}
