package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"backend-miletrack/internal/auth"
	"backend-miletrack/internal/checkpoint"
	"backend-miletrack/internal/config"
	"backend-miletrack/internal/detection"
	"backend-miletrack/internal/position"
	"backend-miletrack/internal/stream"
	"backend-miletrack/internal/tracking"
	"backend-miletrack/internal/trip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App         *fiber.App
	Cfg         config.Config
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Stream      *stream.Hub
	Manager     *tracking.Manager
	Checkpoints *checkpoint.Store
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	feeds := position.NewRegistry()
	checkpoints := checkpoint.NewStore(redisClient)
	trips := trip.NewService(db, redisClient)

	mgr := tracking.NewManager(managerConfig(cfg), feeds, checkpoints, trips,
		func(userID string, st tracking.State) {
			broadcastEvent(hub, userID, "state", st)
		},
		func(userID string) {
			broadcastEvent(hub, userID, "driving_detected", nil)
		})

	s := &Server{
		App:         app,
		Cfg:         cfg,
		DB:          db,
		Redis:       redisClient,
		Stream:      hub,
		Manager:     mgr,
		Checkpoints: checkpoints,
	}

	registerRoutes(s, trips, feeds)
	return s
}

func registerRoutes(s *Server, trips *trip.Service, feeds *position.Registry) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	trip.RegisterRoutes(s.App.Group("/trips"), trips, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Manager, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, s.Manager, feeds, jwtMiddleware)
}

// RecoverCheckpoints rebuilds paused engines for every user that left an
// open trip behind. Called once before the server starts listening.
func (s *Server) RecoverCheckpoints(ctx context.Context) {
	users, err := s.Checkpoints.Users(ctx)
	if err != nil {
		log.Printf("checkpoint scan failed: %v", err)
		return
	}
	for _, userID := range users {
		if _, err := s.Manager.Recover(ctx, userID); err != nil {
			log.Printf("trip recovery failed for %s: %v", userID, err)
		}
	}
}

func managerConfig(cfg config.Config) tracking.ManagerConfig {
	return tracking.ManagerConfig{
		Tracker: tracking.Config{
			UpdateInterval:   time.Duration(cfg.UpdateIntervalMs) * time.Millisecond,
			MinimumAccuracyM: cfg.MinimumAccuracyM,
			MinimumDistanceM: cfg.MinimumDistanceM,
			AutoStop:         time.Duration(cfg.AutoStopMinutes) * time.Minute,
			SyncInterval:     time.Duration(cfg.SyncIntervalSec) * time.Second,
			FixTimeout:       time.Duration(cfg.FixTimeoutSec) * time.Second,
		},
		EnableDrivingDetection: cfg.EnableDrivingDetection,
		Detection: detection.Config{
			SpeedThresholdMps: cfg.DrivingDetectionSpeedMps,
			Window:            time.Duration(cfg.DrivingDetectionTimeMs) * time.Millisecond,
		},
	}
}

func broadcastEvent(hub *stream.Hub, userID, event string, payload any) {
	msg, err := json.Marshal(fiber.Map{"event": event, "data": payload})
	if err != nil {
		log.Printf("event marshal failed: %v", err)
		return
	}
	hub.Broadcast(userID, msg)
}
