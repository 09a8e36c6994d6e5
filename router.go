package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/safariworks/tourbooking/cache/redis"
	"github.com/safariworks/tourbooking/config"
	"github.com/safariworks/tourbooking/ledger"
	"github.com/safariworks/tourbooking/repository/postgres"
	"github.com/safariworks/tourbooking/service"
	httpservice "github.com/safariworks/tourbooking/service/http"
)

func SetupRouter(cfg *config.Config) *gin.Engine {
	// Initialize repository
	repo, err := postgres.NewBookingRepository(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize repository:", err)
	}

	// Initialize cache
	cacheRepo, err := redis.NewRedisCacheRepository(cfg.Redis.GetRedisURL(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to initialize cache:", err)
	}

	// Initialize collaborator clients with connection pooling
	tourCatalog := httpservice.NewHTTPTourCatalog(&cfg.TourCatalog, cfg.JWTSecret)
	identity := httpservice.NewHTTPIdentityService(&cfg.Identity, cfg.JWTSecret)

	// Initialize domain services
	availability := ledger.NewAvailabilityManager(repo, cacheRepo)
	bookings := ledger.NewBookingLedger(repo, tourCatalog, identity, cacheRepo)
	payments := ledger.NewPaymentStateMachine(repo)

	// Initialize JWT service
	jwtService := NewJWTService(cfg.JWTSecret)

	// Initialize handlers
	handler := NewBookingHandler(availability, bookings, payments, repo, cacheRepo,
		service.RoleBasedCapability(identity))

	return buildRoutes(handler, jwtService)
}

// buildRoutes attaches middleware and the route table to a fresh engine.
func buildRoutes(handler *BookingHandler, jwtService *JWTService) *gin.Engine {
	r := gin.Default()

	// Add middleware
	r.Use(CORSMiddleware())

	// Health check endpoint (no auth required)
	r.GET("/health", handler.HealthCheck)

	// API routes
	api := r.Group("/api")

	// Public availability endpoints
	api.GET("/availability", handler.ListAvailability)
	api.GET("/availability/check", handler.CheckAvailability)
	api.GET("/availability/:slotId", handler.GetAvailability)

	// Gateway webhook (authenticated by gateway signature upstream, not JWT)
	api.POST("/payments/webhook", handler.PaymentWebhook)

	// Protected endpoints (require authentication)
	protected := api.Group("")
	protected.Use(AuthMiddleware(jwtService))

	// Booking endpoints
	protected.POST("/bookings", handler.SubmitBooking)
	protected.GET("/bookings", handler.ListUserBookings)
	protected.GET("/bookings/:bookingId", handler.GetBooking)
	protected.POST("/bookings/:bookingId/cancel", handler.CancelBooking)
	protected.POST("/bookings/:bookingId/payments", handler.InitiatePayment)

	// Mock gateway endpoints
	protected.POST("/payments/:paymentId/complete", handler.CompletePayment)
	protected.POST("/payments/:paymentId/fail", handler.FailPayment)

	// Operator endpoints (capability-checked in handlers)
	protected.POST("/availability", handler.CreateSlot)
	protected.PUT("/availability/:slotId/capacity", handler.ReconfigureSlot)
	protected.DELETE("/availability/:slotId", handler.DeleteSlot)

	return r
}
