package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/eduka-ec/certflow/app/controllers"
	"github.com/eduka-ec/certflow/app/repository"
	"github.com/eduka-ec/certflow/internal/pkg/cache"
	"github.com/eduka-ec/certflow/internal/pkg/certgen"
	"github.com/eduka-ec/certflow/internal/pkg/certimport"
	"github.com/eduka-ec/certflow/internal/pkg/database"
	"github.com/eduka-ec/certflow/internal/pkg/env"
	"github.com/eduka-ec/certflow/internal/pkg/invoicing"
	"github.com/eduka-ec/certflow/internal/pkg/mail"
	"github.com/eduka-ec/certflow/internal/pkg/pdfoverlay"
	"github.com/eduka-ec/certflow/internal/pkg/reconcile"
	"github.com/eduka-ec/certflow/internal/pkg/router"
	"github.com/eduka-ec/certflow/internal/pkg/s3backup"
	"github.com/eduka-ec/certflow/internal/pkg/signing"
)

const (
	defaultUnsignedDir = "./uploads/certificados"
	defaultFinalDir    = "./uploads/certificados_firmados"
	defaultTemplateDir = "./templates"

	unsignedPublicPrefix = "/uploads/certificados"
	finalPublicPrefix    = "/uploads/certificados_firmados"
)

// smtpMailer adapts the shared SMTP helper to the reconciler's Mailer.
type smtpMailer struct{}

func (smtpMailer) SendMail(to, subject, body string) error {
	return mail.SendMail(to, subject, body)
}

func main() {
	app, manager := NewApplication()

	manager.Start()

	// shut the scheduler down before the listener so an in-flight pass
	// finishes cleanly
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		fiberlog.Info("[Main] Shutting down")
		manager.Stop()
		if err := app.Shutdown(); err != nil {
			fiberlog.Errorf("[Main] Shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		fiberlog.Fatalf("[Main] Listener error: %v", err)
	}
}

// NewApplication wires storage, external clients, services and routes.
func NewApplication() (*fiber.App, *reconcile.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	unsignedDir := env.GetEnv("CERT_UNSIGNED_DIR", defaultUnsignedDir)
	finalDir := env.GetEnv("CERT_FINAL_DIR", defaultFinalDir)
	templateDir := env.GetEnv("CERT_TEMPLATE_DIR", defaultTemplateDir)

	var signer signing.Service
	if env.GetEnv("SIGN_ENDPOINT", "") != "" {
		signer = signing.NewClientFromEnv()
	}

	generator := &certgen.Generator{
		Persons:      repos.Person,
		Enrollments:  repos.Enrollment,
		Payments:     repos.Payment,
		Courses:      repos.Course,
		Certificates: repos.Certificate,
		Resolver:     &certgen.TemplateResolver{Dir: templateDir},
		Overlay:      pdfoverlay.NewEngine(),
		Signer:       signer,
		OutputRoot:   unsignedDir,
		PublicPrefix: unsignedPublicPrefix,
	}

	importer := &certimport.Importer{
		Persons:      repos.Person,
		Enrollments:  repos.Enrollment,
		Certificates: repos.Certificate,
		UnsignedRoot: unsignedDir,
		FinalRoot:    finalDir,
		PublicPrefix: finalPublicPrefix,
	}

	if cfg, err := s3backup.LoadConfig(); err != nil {
		fiberlog.Warnf("[Main] S3 backup misconfigured, disabled: %v", err)
	} else if cfg.IsEnabled() {
		backup, err := s3backup.NewClient(cfg)
		if err != nil {
			fiberlog.Warnf("[Main] S3 backup client unavailable, disabled: %v", err)
		} else {
			importer.Backup = backup
		}
	}

	invoiceClient := invoicing.NewClientFromEnv()

	controllers.SetupCertificateServices(importer, generator)
	controllers.SetupPaymentServices(invoiceClient)

	reconciler := &reconcile.Reconciler{
		Payments:    repos.Payment,
		Enrollments: repos.Enrollment,
		Persons:     repos.Person,
		Courses:     repos.Course,
		Invoices:    invoiceClient,
		Mailer:      smtpMailer{},
		Cache:       reconcile.NewRedisCache(),
	}

	intervalMinutes, err := strconv.Atoi(env.GetEnv("RECONCILE_INTERVAL_MINUTES", "2"))
	if err != nil || intervalMinutes <= 0 {
		intervalMinutes = 2
	}
	manager := reconcile.NewManager(reconciler, time.Duration(intervalMinutes)*time.Minute)

	app := fiber.New(fiber.Config{
		BodyLimit: 200 * 1024 * 1024, // bulk ZIP uploads
	})

	app.Use(recover.New(), logger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// generated and finalized certificates are served directly
	app.Static("/uploads", "./uploads", fiber.Static{
		CacheDuration: 10 * time.Second,
		MaxAge:        604800, // 7 days
	})

	router.InstallRouter(app)

	return app, manager
}
