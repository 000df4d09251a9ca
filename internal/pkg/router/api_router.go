package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/eduka-ec/certflow/app/controllers"
	"github.com/eduka-ec/certflow/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	v1.Post("/institute/certificates/:course/upload", controllers.HandleCertificateUpload)
	v1.Get("/certificates/report/:course", controllers.HandleCertificateReport)
	v1.Post("/certificates/generate/:paymentID", controllers.HandleCertificateGenerate)

	v1.Get("/payments/:paymentID", controllers.HandleGetPayment)
	v1.Post("/payments/:paymentID/invoice", controllers.HandleIssueInvoice)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
