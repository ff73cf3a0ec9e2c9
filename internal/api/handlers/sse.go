package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/screenpost/internal/progress"
)

const streamBuffer = 16

// streamProgress starts run in the background and relays its events to the
// client as server-sent events. The operation is detached from the request:
// a client that disconnects stops receiving events but does not cancel it.
func streamProgress(c *fiber.Ctx, run func(ctx context.Context, em progress.Emitter)) error {
	stream := progress.NewStream(streamBuffer)
	ctx := context.WithoutCancel(c.UserContext())
	go run(ctx, stream)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stream.Detach()

		for e := range stream.Events() {
			payload, err := json.Marshal(e)
			if err != nil {
				slog.Info(err.Error())
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				slog.Info("progress consumer gone", "stream", stream.ID(), "error", err)
				return
			}
			if err := w.Flush(); err != nil {
				slog.Info("progress consumer gone", "stream", stream.ID(), "error", err)
				return
			}
		}
	})
	return nil
}
