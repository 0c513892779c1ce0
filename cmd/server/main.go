package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/user/marfanet-crm/internal/config"
	"github.com/user/marfanet-crm/internal/handlers"
	"github.com/user/marfanet-crm/internal/middleware"
	"github.com/user/marfanet-crm/internal/repository"
	"github.com/user/marfanet-crm/internal/services/ai"
	"github.com/user/marfanet-crm/internal/services/auth"
	"github.com/user/marfanet-crm/internal/services/commission"
	"github.com/user/marfanet-crm/internal/services/importer"
	"github.com/user/marfanet-crm/internal/services/invoice"
	"github.com/user/marfanet-crm/internal/services/ledger"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Load configuration: %v", err)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT secret is not configured (set auth.jwt_secret or JWT_SECRET)")
	}
	auth.SetSecret(cfg.Auth.JWTSecret)

	db, err := repository.NewPostgresDB(cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}

	repo := repository.NewRepository(db)

	// Services
	authService := auth.NewService(repo)
	engine := commission.NewEngine(repo)
	payoutTracker := commission.NewPayoutTracker(repo)
	invoiceService := invoice.NewService(repo, engine)
	ledgerService := ledger.NewService(repo)
	parser := importer.NewParser(repo)
	pdfGenerator := invoice.NewPDFGenerator(os.Getenv("FONTS_DIR"))

	aiService := ai.NewService(repo)
	if err := aiService.Initialize(); err != nil {
		log.Printf("[AI] Warning: initialization failed: %v", err)
	}

	// First-run admin account; rotate the password after logging in
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "changeme"
	}
	if err := authService.EnsureDefaultAdmin("admin", adminPassword); err != nil {
		log.Printf("[Auth] Seed default admin: %v", err)
	}

	// Cron jobs
	c := cron.New(cron.WithLocation(time.UTC))

	// Overdue marking, daily at 02:00 UTC (05:30 Tehran)
	_, err = c.AddFunc("0 2 * * *", func() {
		marked, err := invoiceService.MarkOverdue()
		if err != nil {
			log.Printf("[Cron] Mark overdue invoices: %v", err)
			return
		}
		if marked > 0 {
			log.Printf("[Cron] Marked %d invoices overdue", marked)
		}
	})
	if err != nil {
		log.Fatalf("Add overdue cron job: %v", err)
	}

	// Insight refresh, hourly; no-op when AI is disabled
	_, err = c.AddFunc("30 * * * *", func() {
		if err := aiService.RefreshInsights(context.Background()); err != nil {
			log.Printf("[Cron] Refresh insights: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Add insight cron job: %v", err)
	}

	// Catch up on overdue invoices at startup
	go func() {
		if marked, err := invoiceService.MarkOverdue(); err != nil {
			log.Printf("[Start] Mark overdue invoices: %v", err)
		} else if marked > 0 {
			log.Printf("[Start] Marked %d invoices overdue", marked)
		}
	}()

	c.Start()
	defer c.Stop()

	// HTTP server
	router := gin.Default()
	router.Use(middleware.CORS())

	h := handlers.NewHandler(repo, authService, parser, invoiceService,
		ledgerService, engine, payoutTracker, aiService, pdfGenerator)

	api := router.Group("/api")
	{
		// Auth (no middleware on login)
		api.POST("/auth/login", h.Login)
		api.GET("/auth/me", middleware.Auth(), h.Me)

		// Representatives
		reps := api.Group("/representatives")
		reps.Use(middleware.Auth())
		{
			reps.GET("", h.GetRepresentatives)
			reps.GET("/:id", h.GetRepresentative)
			reps.GET("/:id/prices", h.GetRepresentativePrices)
			reps.GET("/:id/ledger", h.GetRepresentativeLedger)
			reps.GET("/:id/ledger/verify", h.VerifyLedger)
			reps.GET("/:id/insights", h.GetRepresentativeInsights)

			repsAdmin := reps.Group("")
			repsAdmin.Use(middleware.RequireAdmin())
			{
				repsAdmin.POST("", h.CreateRepresentative)
				repsAdmin.PUT("/:id", h.UpdateRepresentative)
				repsAdmin.DELETE("/:id", h.DeleteRepresentative)
				repsAdmin.PUT("/:id/prices", h.UpdateRepresentativePrices)
				repsAdmin.POST("/:id/payments", h.RecordPayment)
			}
		}

		// Collaborators
		collabs := api.Group("/collaborators")
		collabs.Use(middleware.Auth())
		{
			collabs.GET("", h.GetCollaborators)
			collabs.GET("/:id", h.GetCollaborator)
			collabs.GET("/:id/payouts", h.GetPayouts)

			collabsAdmin := collabs.Group("")
			collabsAdmin.Use(middleware.RequireAdmin())
			{
				collabsAdmin.POST("", h.CreateCollaborator)
				collabsAdmin.PUT("/:id", h.UpdateCollaborator)
				collabsAdmin.POST("/:id/payouts", h.CreatePayout)
			}
		}

		// Usage import (admin only)
		api.POST("/import", middleware.Auth(), middleware.RequireAdmin(), h.ImportUsage)

		// Invoices
		invoices := api.Group("/invoices")
		invoices.Use(middleware.Auth())
		{
			invoices.GET("", h.GetInvoices)
			invoices.GET("/:id", h.GetInvoice)
			invoices.GET("/:id/pdf", h.DownloadInvoicePDF)

			invoicesAdmin := invoices.Group("")
			invoicesAdmin.Use(middleware.RequireAdmin())
			{
				invoicesAdmin.PUT("/:id/status", h.UpdateInvoiceStatus)
				invoicesAdmin.PUT("/:id/telegram", h.SetInvoiceTelegramFlag)
			}
		}

		// Batches
		api.GET("/batches", middleware.Auth(), h.GetBatches)
		api.GET("/batches/:id", middleware.Auth(), h.GetBatch)

		// Dashboard
		api.GET("/dashboard", middleware.Auth(), h.GetDashboard)

		// AI assistant
		aiRoutes := api.Group("/ai")
		aiRoutes.Use(middleware.Auth())
		{
			aiRoutes.GET("/insights", h.GetInsights)
			aiRoutes.POST("/voice-summary", h.SummarizeVoiceNote)
			aiRoutes.POST("/communication", h.SuggestCommunication)

			aiAdmin := aiRoutes.Group("")
			aiAdmin.Use(middleware.RequireAdmin())
			{
				aiAdmin.GET("/settings", h.GetAISettings)
				aiAdmin.PUT("/settings", h.UpdateAISettings)
				aiAdmin.GET("/usage", h.GetAIUsage)
			}
		}
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	log.Printf("Server listening on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Start server: %v", err)
	}
}
