package api

import (
	"time"

	"bookstore-api/internal/config"
	"bookstore-api/internal/database"
	"bookstore-api/internal/middleware"
	"bookstore-api/internal/services"

	"github.com/gin-gonic/gin"
)

// Shared service instances wired at startup
var (
	Orchestrator *services.PaymentOrchestrator
	Entitlements *services.EntitlementGuard
	AdminService *services.AdminOps
)

// InitServices wires the payment core over the database-backed stores
func InitServices() {
	store := database.NewTransactionStore()
	books := database.NewBookStore()

	signer := services.NewHMACSigner(config.AppConfig.GatewaySecret)
	gateway := services.NewGatewayClient(signer)

	Orchestrator = services.NewPaymentOrchestrator(store, books, gateway, services.OrchestratorConfig{
		GatewayName:      config.AppConfig.GatewayName,
		MaxDownloads:     config.AppConfig.MaxDownloads,
		DownloadValidity: time.Duration(config.AppConfig.DownloadExpireDays) * 24 * time.Hour,
	})
	Orchestrator.Replay = services.NewReplayProtection()
	Orchestrator.Cache = services.NewGatewayStatusCache()
	Orchestrator.Mailer = services.NewReceiptMailer()

	Entitlements = services.NewEntitlementGuard(store, books)
	AdminService = services.NewAdminOps(store)
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine) {
	InitServices()

	// API route group
	api := r.Group("/api")
	{
		payments := api.Group("/payments")

		// Gateway webhook (external-facing, checksum is the auth)
		payments.POST("/webhook", GatewayWebhook)

		// User-facing payment routes (require bearer token)
		authed := payments.Group("")
		authed.Use(middleware.AuthMiddleware(config.AppConfig.JWTSecret))
		{
			authed.POST("/initiate", InitiatePayment)
			authed.POST("/downloadfree/:bookId", FreeDownload)
			authed.GET("/status/:orderId", GetPaymentStatus)
			authed.GET("/my-purchases", MyPurchases)
			authed.GET("/download/:downloadToken", RedeemDownload)
		}

		// Admin routes (bearer token + admin flag)
		admin := payments.Group("/admin")
		admin.Use(middleware.AuthMiddleware(config.AppConfig.JWTSecret), middleware.RequireAdmin())
		{
			admin.DELETE("/transactions/cleanup", CleanupFailedTransactions)
			admin.DELETE("/transactions/:id", DeleteTransaction)
			admin.POST("/transactions/bulk-delete", BulkDeleteTransactions)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "bookstore-payment-service",
		})
	})
}
