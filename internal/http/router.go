package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mypup/backend/internal/config"
	"github.com/mypup/backend/internal/http/handlers"
	"github.com/mypup/backend/internal/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	listingHandler *handlers.ListingHandler,
	transactionHandler *handlers.TransactionHandler,
	webhookHandler *handlers.WebhookHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// Payment provider webhook (signature-verified, no JWT)
	api.Post("/webhooks/payment", webhookHandler.PaymentWebhook)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Public catalog
	api.Get("/listings", listingHandler.ListListings)
	api.Get("/listings/:id", listingHandler.GetListing)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Post("/me/ping", userHandler.Ping)

	// Listings
	protected.Post("/listings", listingHandler.CreateListing)
	protected.Get("/me/listings", listingHandler.MyListings)
	protected.Delete("/listings/:id", listingHandler.RemoveListing)

	// Escrow transactions
	protected.Post("/transactions", transactionHandler.CreateTransaction)
	protected.Get("/transactions", transactionHandler.ListTransactions)
	protected.Get("/transactions/:id", transactionHandler.GetTransaction)
	protected.Post("/transactions/:id/confirm", transactionHandler.Confirm)
	protected.Post("/transactions/:id/dispute", transactionHandler.OpenDispute)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Get("/disputes", adminHandler.ListDisputes)
	admin.Post("/transactions/:id/resolve", adminHandler.ResolveDispute)
	admin.Get("/transactions/:id/audit", adminHandler.GetAuditTrail)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
