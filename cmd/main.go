package main

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/teledrop/teledrop/internal/apikey"
	"github.com/teledrop/teledrop/internal/config"
	"github.com/teledrop/teledrop/internal/coordinator"
	"github.com/teledrop/teledrop/internal/db"
	"github.com/teledrop/teledrop/internal/handlers"
	"github.com/teledrop/teledrop/internal/middleware"
	"github.com/teledrop/teledrop/internal/storage"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	entry := log.WithField("service", "teledrop")

	cfg := config.Load()

	blob, err := storage.New(cfg, entry)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize blob store")
	}

	// Reclaim stale .tmp files left behind by an interrupted upload
	// before accepting traffic.
	if local, ok := blob.(*storage.Local); ok {
		removed, err := local.Sweep(context.Background(), 24*time.Hour)
		if err != nil {
			entry.WithError(err).Warn("startup sweep encountered an error")
		} else if removed > 0 {
			entry.WithField("removed", removed).Info("startup sweep removed stale temp blobs")
		}
	}

	mongoClient, err := db.Connect(cfg.MongoURI, entry)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}

	meta := db.NewMetadataStore(mongoClient, cfg.MongoDatabase, entry)
	if err := meta.EnsureIndexes(context.Background()); err != nil {
		log.WithError(err).Fatal("failed to create indexes")
	}

	keys := apikey.NewStore(mongoClient, cfg.MongoDatabase)
	if err := keys.EnsureIndexes(context.Background()); err != nil {
		log.WithError(err).Fatal("failed to create api key indexes")
	}

	coord := coordinator.New(meta, blob, cfg, entry)

	app := fiber.New(fiber.Config{
		StreamRequestBody: true,
	})
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(middleware.Identify(cfg, keys))

	authHandler := handlers.NewAuthHandler(cfg)
	app.Post("/auth/login", authHandler.Login)

	apiKeyHandler := handlers.NewAPIKeyHandler(keys)
	apiKeys := app.Group("/api/keys", middleware.RequireAuth)
	apiKeys.Post("/", apiKeyHandler.Create)
	apiKeys.Get("/", apiKeyHandler.List)
	apiKeys.Delete("/:id", apiKeyHandler.Revoke)

	dropHandler := handlers.NewDropHandler(coord)
	content := app.Group("/api/content")
	content.Post("/", dropHandler.Create)
	content.Get("/", middleware.RequireAuth, dropHandler.List)
	content.Get("/keycheck/:slug", dropHandler.KeyCheck)
	content.Get("/:slug/preview", dropHandler.Preview)
	content.Get("/:slug", dropHandler.Download)
	content.Patch("/:slug/detail", middleware.RequireAuth, dropHandler.UpdateDetail)
	content.Patch("/:slug/permission", middleware.RequireAuth, dropHandler.UpdatePermission)
	content.Patch("/:slug/favorite", middleware.RequireAuth, dropHandler.UpdateFavorite)
	content.Patch("/:slug/password", middleware.RequireAuth, dropHandler.UpdatePassword)
	content.Patch("/:slug/reset", middleware.RequireAuth, dropHandler.ResetPassword)
	content.Delete("/:slug", middleware.RequireAuth, dropHandler.Delete)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}
	log.WithField("port", port).Info("starting teledrop")
	log.Fatal(app.Listen(":" + port))
}
