package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/screenpost/internal/models"
)

func GetUserID(c *fiber.Ctx) int64 {
	raw, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(raw, 10, 64)
	return userID
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// errorStatus maps a service error to the HTTP status for non-streaming routes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInvalidKind), errors.Is(err, models.ErrInvalidPost):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyPublished), errors.Is(err, models.ErrPublishInProgress), errors.Is(err, models.ErrThreadBusy):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
