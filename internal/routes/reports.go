package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/reports"
)

// RegisterReportRoutes wires the admin-only weekly report endpoints.
func RegisterReportRoutes(r fiber.Router, admin fiber.Handler, h *reports.Handler) {
	group := r.Group("/reports/weekly", admin)
	group.Get("/json", h.JSON)
	group.Get("/excel", h.Excel)
	group.Get("/status/:taskId", h.Status)
}
