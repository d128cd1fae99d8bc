package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/busline/ticketing-backend/internal/cache"
	"github.com/busline/ticketing-backend/internal/config"
	"github.com/busline/ticketing-backend/internal/database"
	"github.com/busline/ticketing-backend/internal/events"
	"github.com/busline/ticketing-backend/internal/handlers"
	"github.com/busline/ticketing-backend/internal/middleware"
	"github.com/busline/ticketing-backend/internal/models"
	"github.com/busline/ticketing-backend/internal/services"
	"github.com/busline/ticketing-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Busline Ticketing Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Repositories over the raw sqlx handle.
	// Type assertion needed: db is interface DB, but repositories need *sqlx.DB
	sqlxDB, ok := db.(*database.PostgresDB)
	if !ok {
		logger.Fatal("Failed to cast database connection to PostgresDB")
	}
	tripRepository := database.NewTripRepository(sqlxDB.DB)
	seatRepository := database.NewTripSeatRepository(sqlxDB.DB)
	bookingRepository := database.NewBookingRepository(sqlxDB.DB)
	promoRepository := database.NewPromoRepository(sqlxDB.DB)
	paymentRepository := database.NewPaymentRepository(sqlxDB.DB)
	paymentAuditRepository := database.NewPaymentAuditRepository(sqlxDB.DB, logger)
	userRepository := database.NewUserRepository(db)
	refreshTokenRepository := database.NewRefreshTokenRepository(db)

	// Optional Redis cache for seat holds and search results
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled() {
		logger.Info("Connecting to Redis...")
		redisCache, err = cache.NewRedisCache(cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		logger.Info("Redis connection established")
	} else {
		logger.Warn("Redis not configured, running without seat holds or search caching")
	}

	// Optional Kafka producer for booking and payment events
	var producer *events.Producer
	if cfg.Kafka.Enabled() {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.BookingEventsTopic, logger)
		defer producer.Close()
		logger.Infof("Kafka producer configured for topic %s", cfg.Kafka.BookingEventsTopic)
	} else {
		logger.Warn("Kafka not configured, booking events will not be published")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	auditService := services.NewAuditService(db)
	rateLimitService := services.NewRateLimitService(db, cfg.RateLimit)
	authService := services.NewAuthService(userRepository, refreshTokenRepository, jwtService, rateLimitService, auditService, &cfg.Security, logger)
	tripService := services.NewTripService(tripRepository, seatRepository, redisCache, logger)
	bookingService := services.NewBookingService(bookingRepository, tripRepository, seatRepository, promoRepository, userRepository, redisCache, rateLimitService, producer, logger)
	promoService := services.NewPromoService(promoRepository, bookingRepository, logger)
	gateway := services.NewDemoGateway(&cfg.Payment, logger)
	paymentService := services.NewPaymentService(paymentRepository, bookingRepository, paymentAuditRepository, gateway, producer, &cfg.Payment, logger)
	ticketService := services.NewTicketService(bookingRepository, tripRepository, cfg.Payment.Currency, logger)

	// Start scheduled maintenance
	cronService := services.NewCronService(paymentService, tripService, rateLimitService, auditService, refreshTokenRepository, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Cron service started")

	logger.Info("Services initialized")

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, logger)
	tripHandler := handlers.NewTripHandler(tripService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	promoHandler := handlers.NewPromoHandler(promoService, logger)
	ticketHandler := handlers.NewTicketHandler(ticketService, logger)
	adminHandler := handlers.NewAdminHandler(authService, auditService, cronService, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	authRequired := middleware.AuthMiddleware(jwtService)
	adminOnly := middleware.RequireRole(string(models.UserRoleAdmin))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Authentication routes (public)
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)

			// Protected routes (require JWT authentication)
			protected := auth.Group("")
			protected.Use(authRequired)
			{
				protected.POST("/logout", authHandler.Logout)
				protected.POST("/change-password", authHandler.ChangePassword)
				protected.GET("/sessions", authHandler.ListSessions)
			}
		}

		// User profile routes (protected)
		user := v1.Group("/user")
		user.Use(authRequired)
		{
			user.GET("/profile", authHandler.GetProfile)
			user.PUT("/profile", authHandler.UpdateProfile)
		}

		// Public trip catalog. Fare quotes work for anonymous shoppers too;
		// a token, when sent, adds the per-user promo checks.
		trips := v1.Group("/trips")
		{
			trips.GET("/search", tripHandler.Search)
			trips.GET("/cities", tripHandler.Cities)
			trips.POST("/fare/quote", middleware.OptionalAuthMiddleware(jwtService), bookingHandler.QuoteFare)
			trips.GET("/:id", tripHandler.GetTrip)
			trips.GET("/:id/seats", tripHandler.GetSeats)
			trips.GET("/:id/seat-summary", tripHandler.SeatSummary)
		}

		// Promo codes: browsing is public, validation picks up the caller
		// identity when present so per-user limits apply
		promos := v1.Group("/promos")
		{
			promos.GET("/active", promoHandler.ListActive)

			promosProtected := promos.Group("")
			promosProtected.Use(authRequired)
			{
				promosProtected.POST("/validate", promoHandler.Validate)
			}
		}

		// Booking routes (all protected)
		bookings := v1.Group("/bookings")
		bookings.Use(authRequired)
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/reference/:reference", bookingHandler.GetBookingByReference)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:id/reactivate", bookingHandler.ReactivateBooking)
			bookings.PATCH("/:id/payment-status", bookingHandler.SetPaymentStatus)
			bookings.GET("/:id/payments", paymentHandler.BookingPayments)
			bookings.GET("/:id/ticket/qr", ticketHandler.QRCode)
			bookings.GET("/:id/ticket/boarding-pass", ticketHandler.BoardingPass)
		}

		// Payment routes (all protected)
		payments := v1.Group("/payments")
		payments.Use(authRequired)
		{
			payments.POST("", paymentHandler.InitiatePayment)
			payments.GET("", paymentHandler.History)
			payments.GET("/:id", paymentHandler.GetPayment)
			payments.POST("/:id/process", paymentHandler.ProcessPayment)
			payments.POST("/:id/refund", paymentHandler.RefundPayment)
			payments.GET("/:id/audit", paymentHandler.AuditTrail)
		}

		// Admin routes (require the admin role)
		admin := v1.Group("/admin")
		admin.Use(authRequired, adminOnly)
		{
			admin.POST("/trips", tripHandler.CreateTrip)
			admin.GET("/trips", tripHandler.ListTrips)
			admin.GET("/trips/seat-counters", tripHandler.VerifySeatCounters)
			admin.PUT("/trips/:id", tripHandler.UpdateTrip)
			admin.PATCH("/trips/:id/status", tripHandler.UpdateTripStatus)
			admin.DELETE("/trips/:id", tripHandler.DeleteTrip)
			admin.POST("/trips/:id/seats", tripHandler.CreateSeats)
			admin.POST("/trips/:id/seats/block", tripHandler.BlockSeats)
			admin.POST("/trips/:id/seats/unblock", tripHandler.UnblockSeats)
			admin.PUT("/trips/:id/seats/:seatId", tripHandler.UpdateSeat)
			admin.DELETE("/trips/:id/seats/:seatId", tripHandler.DeleteSeat)

			admin.GET("/bookings", bookingHandler.AdminListBookings)
			admin.GET("/bookings/:id", bookingHandler.AdminGetBooking)
			admin.PATCH("/bookings/:id/status", bookingHandler.AdminUpdateStatus)
			admin.PATCH("/bookings/:id/payment-status", bookingHandler.AdminSetPaymentStatus)

			admin.GET("/payments/transaction/:transactionId", paymentHandler.GetByTransactionID)

			admin.POST("/promos", promoHandler.CreatePromo)
			admin.GET("/promos", promoHandler.ListPromos)
			admin.GET("/promos/:id", promoHandler.GetPromo)
			admin.PUT("/promos/:id", promoHandler.UpdatePromo)
			admin.PATCH("/promos/:id/toggle", promoHandler.TogglePromo)
			admin.DELETE("/promos/:id", promoHandler.DeletePromo)

			admin.GET("/users", adminHandler.ListUsers)
			admin.PATCH("/users/:id/active", adminHandler.SetUserActive)
			admin.GET("/users/:id/audit", adminHandler.UserAuditTrail)

			admin.GET("/maintenance/status", adminHandler.MaintenanceStatus)
			admin.POST("/maintenance/run", adminHandler.RunMaintenance)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
		}

		entry := logger.WithFields(fields)

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
