package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/pepocero/gestioneducativa-sub000/db"
	"github.com/pepocero/gestioneducativa-sub000/handlers"
	"github.com/pepocero/gestioneducativa-sub000/middleware"
	"github.com/pepocero/gestioneducativa-sub000/models"
	"github.com/pepocero/gestioneducativa-sub000/security"
	"github.com/pepocero/gestioneducativa-sub000/services"
)

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func main() {
	config, err := services.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := db.Connect(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	institutionRepo := models.NewInstitutionRepository(db.DB)
	userRepo := models.NewUserRepository(db.DB)
	studentRepo := models.NewStudentRepository(db.DB)
	professorRepo := models.NewProfessorRepository(db.DB)
	cycleRepo := models.NewCycleRepository(db.DB)
	subjectRepo := models.NewSubjectRepository(db.DB)
	enrollmentRepo := models.NewEnrollmentRepository(db.DB)

	// Security pipeline. The limiter and logger own background
	// goroutines (entry sweep, batch flush) stopped on shutdown.
	var sink security.Sink
	if s, err := services.NewS3EventSink(config.EventSink); err == nil {
		sink = s
		log.Printf("Security events: archiving flushed batches to s3://%s", config.EventSink.Bucket)
	} else {
		log.Printf("Security events: no S3 sink configured (%v), console only", err)
	}

	logCfg, err := config.LoggerConfig()
	if err != nil {
		log.Fatalf("Bad security log config: %v", err)
	}

	limiter := security.NewMemoryLimiter()
	eventLogger := security.NewBufferedLogger(logCfg, sink)
	policies := config.Policies()
	processor := security.NewFormProcessor(limiter, eventLogger, policies)
	guard := middleware.NewGuard(limiter, eventLogger, policies)

	authHandler := handlers.NewAuthHandler(userRepo, institutionRepo, processor, eventLogger)
	studentHandler := handlers.NewStudentHandler(studentRepo, processor)
	catalogHandler := handlers.NewCatalogHandler(professorRepo, cycleRepo, subjectRepo, processor)
	enrollmentHandler := handlers.NewEnrollmentHandler(enrollmentRepo, studentRepo, subjectRepo, cycleRepo)
	securityHandler := handlers.NewSecurityHandler(eventLogger)

	app := fiber.New(fiber.Config{
		BodyLimit:    config.Server.BodyLimit,
		ErrorHandler: customErrorHandler,
	})

	app.Use(logger.New())
	app.Use(compress.New())
	app.Use(cors.New())
	app.Use(services.NewSecurityHeaders(nil).Middleware())

	api := app.Group("/api")

	// Auth endpoints carry only the generic flood guard here; the strict
	// login/register budgets are enforced inside the form processor so a
	// submission is counted exactly once.
	post := middleware.GuardOptions{Methods: []string{fiber.MethodPost}}
	api.Post("/register", guard.Protect(security.ClassAPI, post), authHandler.Register)
	api.Post("/login", guard.Protect(security.ClassAPI, post), authHandler.Login)
	api.Get("/me", middleware.Protected(), authHandler.Me)

	crud := guard.Protect(security.ClassAPI, middleware.GuardOptions{RequireIdentity: true})

	api.Post("/students", middleware.Protected(), crud, studentHandler.Create)
	api.Get("/students", middleware.Protected(), crud, studentHandler.List)
	api.Get("/students/:id", middleware.Protected(), crud, studentHandler.Get)
	api.Patch("/students/:id", middleware.Protected(), crud, studentHandler.Update)
	api.Delete("/students/:id", middleware.Protected(), crud, studentHandler.Delete)
	api.Get("/students/:id/enrollments", middleware.Protected(), crud, enrollmentHandler.ListByStudent)

	api.Post("/professors", middleware.Protected(), crud, catalogHandler.CreateProfessor)
	api.Get("/professors", middleware.Protected(), crud, catalogHandler.ListProfessors)
	api.Delete("/professors/:id", middleware.Protected(), crud, catalogHandler.DeleteProfessor)

	api.Post("/cycles", middleware.Protected(), crud, catalogHandler.CreateCycle)
	api.Get("/cycles", middleware.Protected(), crud, catalogHandler.ListCycles)
	api.Delete("/cycles/:id", middleware.Protected(), crud, catalogHandler.DeleteCycle)

	api.Post("/subjects", middleware.Protected(), crud, catalogHandler.CreateSubject)
	api.Get("/subjects", middleware.Protected(), crud, catalogHandler.ListSubjects)
	api.Get("/subjects/:id", middleware.Protected(), crud, catalogHandler.GetSubject)
	api.Delete("/subjects/:id", middleware.Protected(), crud, catalogHandler.DeleteSubject)
	api.Get("/subjects/:id/enrollments", middleware.Protected(), crud, enrollmentHandler.ListBySubject)

	// Enrollment bodies are not re-sanitized by their handler, so the
	// guard scrubs them before parsing.
	crudBody := guard.Protect(security.ClassAPI, middleware.GuardOptions{RequireIdentity: true, SanitizeBody: true})
	api.Post("/enrollments", middleware.Protected(), crudBody, enrollmentHandler.Create)
	api.Patch("/enrollments/:id", middleware.Protected(), crudBody, enrollmentHandler.Update)
	api.Delete("/enrollments/:id", middleware.Protected(), crud, enrollmentHandler.Delete)

	admin := api.Group("/admin", middleware.Protected(), middleware.RequireRole(models.RoleAdmin))
	admin.Get("/security/stats", securityHandler.Stats)
	admin.Get("/security/events", securityHandler.Events)
	admin.Post("/security/cleanup", securityHandler.Cleanup)

	app.Use(func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/api") {
			return fiber.ErrNotFound
		}
		return c.SendStatus(fiber.StatusNotFound)
	})

	// Graceful shutdown: stop taking requests, then stop the sweep and
	// flush goroutines so the final event batch reaches the sink.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Printf("Shutting down")
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", config.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("Server stopped: %v", err)
	}

	limiter.Stop()
	eventLogger.Stop()
}
