package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/screenpost/internal/service"
)

type CaptureHandler struct {
	s service.CaptureService
}

func NewCaptureHandler(service service.CaptureService) *CaptureHandler {
	return &CaptureHandler{s: service}
}

// ListExhausted lists captures that used up their processing attempts for
// the kind given in the query string.
func (h *CaptureHandler) ListExhausted(c *fiber.Ctx) error {
	userID := GetUserID(c)

	captures, err := h.s.ListExhausted(c.Context(), userID, c.Query("kind", "thumbnail"))
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"captures": captures})
}
