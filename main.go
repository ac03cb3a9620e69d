package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ladder-challenge-system/handlers"
	"ladder-challenge-system/middleware"
	"ladder-challenge-system/models"
	"ladder-challenge-system/services"
	"ladder-challenge-system/utils"
	"ladder-challenge-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitArchive(); err != nil {
		log.Fatal("failed to initialize archive storage client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Ladder{},
		&models.Player{},
		&models.Challenge{},
		&models.Match{},
		&models.DeclineEvent{},
		&models.ImmunityGrant{},
		&models.MembershipMirror{},
		&models.EngineEvent{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	clock := loadPhaseClock()

	membershipURL := os.Getenv("MEMBERSHIP_SERVICE_URL")
	if membershipURL == "" {
		log.Fatal("MEMBERSHIP_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("LADDER_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("LADDER_SERVICE_TOKEN environment variable not set")
	}

	store := services.NewGormStorage(db)
	membershipClient := services.NewMembershipServiceClient(membershipURL, serviceToken)
	gate := services.NewMembershipGate(membershipClient, store)
	ladderService := services.NewLadderService(db, store, clock, gate)

	syncClient := workers.NewMembershipSyncClient(db)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go workers.PollMemberships(ctx, syncClient, 60*time.Second)

	ladderService.StartExpiryScheduler()
	ladderService.StartArchiveScheduler(func(ladderID string) error {
		snapshot, err := ladderService.BuildAuditSnapshot(ladderID, time.Now())
		if err != nil {
			return err
		}
		key, err := utils.UploadAuditSnapshot(ladderID, snapshot)
		if err != nil {
			return err
		}
		log.Printf("✅ Archived audit snapshot for ladder %s at %s", ladderID, key)
		return nil
	})

	handlers.SetupLadderRoutes(app, ladderService)
	handlers.SetupEventRoutes(app, db)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Membership polling running (every 60s)")
	log.Println("✅ Challenge expiry scheduler running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}

// loadPhaseClock reads the membership phase boundaries and fees from the
// environment. The phase table defaults to free testing, discounted trial,
// full fee.
func loadPhaseClock() *services.PhaseClock {
	trialStart := mustParseTime("PHASE_TRIAL_START")
	fullStart := mustParseTime("PHASE_FULL_START")
	if !trialStart.Before(fullStart) {
		log.Fatal("PHASE_TRIAL_START must be before PHASE_FULL_START")
	}

	return services.NewPhaseClock(
		trialStart,
		fullStart,
		0, // testing phase is free
		parseFee("PHASE_TRIAL_FEE", 25),
		parseFee("PHASE_FULL_FEE", 100),
	)
}

func mustParseTime(envVar string) time.Time {
	raw := os.Getenv(envVar)
	if raw == "" {
		log.Fatalf("%s environment variable not set", envVar)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		log.Fatalf("%s must be RFC3339: %v", envVar, err)
	}
	return t
}

func parseFee(envVar string, fallback float64) float64 {
	raw := os.Getenv(envVar)
	if raw == "" {
		return fallback
	}
	var fee float64
	if _, err := fmt.Sscanf(raw, "%f", &fee); err != nil {
		log.Fatalf("%s must be a number: %v", envVar, err)
	}
	return fee
}
