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

type TweetHandler struct {
	s           service.PublishService
	AsynqClient queue.Enqueuer
}

func NewTweetHandler(service service.PublishService, asynqClient queue.Enqueuer) *TweetHandler {
	return &TweetHandler{s: service, AsynqClient: asynqClient}
}

func (h *TweetHandler) Publish(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := paramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return streamProgress(c, func(ctx context.Context, em progress.Emitter) {
		h.s.Publish(ctx, userID, postID, em)
	})
}

func (h *TweetHandler) Retry(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := paramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return streamProgress(c, func(ctx context.Context, em progress.Emitter) {
		h.s.Retry(ctx, userID, postID, em)
	})
}

func (h *TweetHandler) Schedule(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := paramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil || req.PublishAt.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "publish_at is required"})
	}

	post, err := h.s.Status(c.Context(), userID, postID)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if post.IsPosted() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": models.ErrAlreadyPublished.Error()})
	}
	if post.ThreadID != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "post belongs to a thread, schedule the thread instead"})
	}

	delay := max(time.Until(req.PublishAt), 0)
	info, err := queue.EnqueuePost(h.AsynqClient, queue.PublishPostPayload{UserID: userID, PostID: postID}, delay)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error scheduling post"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Post scheduled successfully",
		"task_id": info.ID,
	})
}

func (h *TweetHandler) Status(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := paramID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	post, err := h.s.Status(c.Context(), userID, postID)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostStatus(post))
}
