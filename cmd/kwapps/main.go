package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/binsaleem99/kwapps-sub001/app/models"
	"github.com/binsaleem99/kwapps-sub001/app/repository"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/cache"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/database"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/env"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/jobqueue"
	"github.com/binsaleem99/kwapps-sub001/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Start background workers (job queue, counter flush, bonus sweep)
	manager := jobqueue.GetManager()
	manager.Start()

	// Graceful shutdown: stop taking requests, then drain workers
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	manager.Stop()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	if err := models.LoadSettings(db); err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
	}

	// Find the correct base path
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/kwapps to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "KwApps Billing API",
		BodyLimit: 1048576, // 1 MiB, webhook and JSON bodies only
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}
