package reports

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes the weekly report.
type Handler struct {
	service *Service
}

// NewHandler constructs a report handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// JSON serves the cached report or queues a generation.
func (h *Handler) JSON(c *fiber.Ctx) error {
	raw, ok, err := h.service.JSON(c.UserContext())
	if err != nil {
		return err
	}
	if !ok {
		return h.enqueue(c)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(wrapReport(raw))
}

// Excel serves the cached workbook or queues a generation.
func (h *Handler) Excel(c *fiber.Ctx) error {
	raw, ok, err := h.service.Excel(c.UserContext())
	if err != nil {
		return err
	}
	if !ok {
		return h.enqueue(c)
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="weekly_report.xlsx"`)
	return c.Send(raw)
}

// Status reports the state of a queued generation.
func (h *Handler) Status(c *fiber.Ctx) error {
	id := c.Params("taskId")
	state, ok, err := h.service.Status(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !ok {
		return fiber.NewError(http.StatusNotFound, "unknown task")
	}

	switch state {
	case TaskSuccess:
		raw, found, err := h.service.JSON(c.UserContext())
		if err != nil {
			return err
		}
		body := fiber.Map{"task_id": id, "status": "completed", "report": nil}
		if found {
			body["report"] = rawJSON(raw)
		}
		return c.JSON(body)
	case TaskFailure:
		return fiber.NewError(http.StatusInternalServerError, "report generation failed")
	default:
		return c.JSON(fiber.Map{"task_id": id, "status": strings.ToLower(string(state))})
	}
}

func (h *Handler) enqueue(c *fiber.Ctx) error {
	id, err := h.service.Enqueue(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusServiceUnavailable, "failed to enqueue report generation")
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"task_id": id, "status": "processing"})
}

type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }

func wrapReport(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+12)
	out = append(out, `{"report":`...)
	out = append(out, raw...)
	return append(out, '}')
}
