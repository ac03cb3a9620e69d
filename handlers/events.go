package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ladder-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupEventRoutes exposes the engine's event outbox as an SSE stream. The
// engine only appends rows; delivery transport lives out here.
func SetupEventRoutes(app *fiber.App, db *gorm.DB) {
	app.Get("/s/events/stream", streamEngineEventsSSE(db))
}

// streamEngineEventsSSE tails the engine_events table and pushes new rows to
// the client. Optional ?ladder_id= narrows the stream to one ladder.
func streamEngineEventsSSE(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ladderID := c.Query("ladder_id")

		// SSE headers
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		done := c.Context().Done()

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			var cursor time.Time

			// Initialize cursor
			query := db.Order("created_at DESC")
			if ladderID != "" {
				query = query.Where("ladder_id = ?", ladderID)
			}
			var latest models.EngineEvent
			if err := query.First(&latest).Error; err == nil {
				cursor = latest.CreatedAt
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("SSE init error (ladder %q): %v", ladderID, err)
			}

			// Initial keepalive (comment event)
			w.WriteString(":\n\n")
			w.Flush()

			fetch := func(after time.Time) ([]models.EngineEvent, error) {
				var events []models.EngineEvent
				q := db.Where("created_at > ?", after).Order("created_at ASC")
				if ladderID != "" {
					q = q.Where("ladder_id = ?", ladderID)
				}
				if err := q.Find(&events).Error; err != nil {
					log.Printf("SSE query error (ladder %q): %v", ladderID, err)
					return nil, err
				}
				return events, nil
			}

			tailEvents(done, w, 2*time.Second, cursor, fetch)
		})

		return nil
	}
}

// tailEvents polls fetch on each tick and writes new rows as SSE frames,
// advancing the cursor past what it delivered. It returns when the client
// disconnects (done closes) or a flush fails; fetch errors are retried on the
// next tick.
func tailEvents(done <-chan struct{}, w *bufio.Writer, interval time.Duration, cursor time.Time, fetch func(after time.Time) ([]models.EngineEvent, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			events, err := fetch(cursor)
			if err != nil || len(events) == 0 {
				continue
			}

			cursor = events[len(events)-1].CreatedAt

			for _, ev := range events {
				payload, _ := json.Marshal(ev)
				fmt.Fprintf(w,
					"event: %s\ndata: %s\n\n",
					ev.Type,
					payload,
				)
			}

			if err := w.Flush(); err != nil {
				// Client went away.
				return
			}
		}
	}
}
