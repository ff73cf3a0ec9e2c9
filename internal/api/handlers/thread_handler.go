package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/progress"
	"github.com/maheshrc27/screenpost/internal/queue"
	"github.com/maheshrc27/screenpost/internal/service"
	"github.com/maheshrc27/screenpost/internal/transfer"
)

type ThreadHandler struct {
	s           service.ThreadService
	AsynqClient queue.Enqueuer
}

func NewThreadHandler(service service.ThreadService, asynqClient queue.Enqueuer) *ThreadHandler {
	return &ThreadHandler{s: service, AsynqClient: asynqClient}
}

func (h *ThreadHandler) Publish(c *fiber.Ctx) error {
	userID := GetUserID(c)
	threadID, err := paramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return streamProgress(c, func(ctx context.Context, em progress.Emitter) {
		h.s.PublishThread(ctx, userID, threadID, em)
	})
}

func (h *ThreadHandler) Retry(c *fiber.Ctx) error {
	userID := GetUserID(c)
	threadID, err := paramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return streamProgress(c, func(ctx context.Context, em progress.Emitter) {
		h.s.RetryThread(ctx, userID, threadID, em)
	})
}

func (h *ThreadHandler) Schedule(c *fiber.Ctx) error {
	userID := GetUserID(c)
	threadID, err := paramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil || req.PublishAt.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "publish_at is required"})
	}

	thread, _, err := h.s.Status(c.Context(), userID, threadID)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if thread.Status == models.ThreadStatusPosted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": models.ErrAlreadyPublished.Error()})
	}

	delay := max(time.Until(req.PublishAt), 0)
	info, err := queue.EnqueueThread(h.AsynqClient, queue.PublishThreadPayload{UserID: userID, ThreadID: threadID}, delay)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error scheduling thread"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Thread scheduled successfully",
		"task_id": info.ID,
	})
}

func (h *ThreadHandler) Status(c *fiber.Ctx) error {
	userID := GetUserID(c)
	threadID, err := paramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	thread, members, err := h.s.Status(c.Context(), userID, threadID)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	status := transfer.ThreadStatus{Thread: thread, Members: make([]transfer.PostStatus, 0, len(members))}
	for _, p := range members {
		status.Members = append(status.Members, transfer.NewPostStatus(p))
	}
	return c.Status(fiber.StatusOK).JSON(status)
}
