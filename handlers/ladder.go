package handlers

import (
	"errors"
	"log"
	"time"

	"ladder-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupLadderRoutes wires the engine's operations behind the Gateway. The
// handlers are presentation only: they parse, invoke the engine, and shape
// responses. Denials come back as 200s with structured decisions; only
// storage and input faults are HTTP errors.
func SetupLadderRoutes(app *fiber.App, svc *services.LadderService) {
	app.Post("/s/ladders", createLadder(svc))
	app.Get("/s/ladders/:id/standings", getStandings(svc))
	app.Post("/s/ladders/:id/players", addPlayer(svc))
	app.Post("/s/ladders/:id/challenges", createChallenge(svc))
	app.Post("/s/challenges/:id/decline", declineChallenge(svc))
	app.Post("/s/challenges/:id/result", reportResult(svc))
	app.Get("/s/players/:id/declines", declineStanding(svc))
}

func createLadder(svc *services.LadderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		if req.Name == "" {
			return c.Status(400).JSON(fiber.Map{"error": "name is required"})
		}

		ladder, err := svc.CreateLadder(req.Name, req.Description)
		if err != nil {
			log.Printf("DB Error creating ladder: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to create ladder"})
		}
		return c.Status(201).JSON(ladder)
	}
}

func getStandings(svc *services.LadderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		players, err := svc.GetStandings(c.Params("id"))
		if err != nil {
			log.Printf("DB Error fetching standings for %s: %v", c.Params("id"), err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to fetch standings"})
		}
		return c.JSON(fiber.Map{
			"ladder_id": c.Params("id"),
			"standings": players,
			"count":     len(players),
		})
	}
}

func addPlayer(svc *services.LadderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		if req.Email == "" {
			return c.Status(400).JSON(fiber.Map{"error": "email is required"})
		}

		player, err := svc.AddPlayer(c.Params("id"), req.Email, req.Name)
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "ladder not found"})
		}
		if err != nil {
			log.Printf("DB Error adding player to ladder %s: %v", c.Params("id"), err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to add player"})
		}
		return c.Status(201).JSON(player)
	}
}

func createChallenge(svc *services.LadderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			ChallengerID string `json:"challenger_id"`
			DefenderID   string `json:"defender_id"`
			IsAdmin      bool   `json:"is_admin"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}

		outcome, err := svc.CreateChallenge(services.ChallengeRequest{
			ChallengerID: req.ChallengerID,
			DefenderID:   req.DefenderID,
			IsAdmin:      req.IsAdmin,
		}, time.Now())
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "player not found"})
		}
		if err != nil {
			log.Printf("Error classifying challenge %s -> %s: %v", req.ChallengerID, req.DefenderID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to classify challenge"})
		}

		status := 201
		if outcome.Decision.Denied {
			status = 200
		}
		return c.Status(status).JSON(outcome)
	}
}

func declineChallenge(svc *services.LadderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		outcome, err := svc.DeclineChallenge(c.Params("id"), time.Now())
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "challenge not found"})
		}
		if err != nil {
			log.Printf("Error declining challenge %s: %v", c.Params("id"), err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to decline challenge"})
		}

		if outcome.ForcedAcceptance {
			// Out of tokens: the decline did not happen and the challenge
			// must be answered.
			return c.Status(409).JSON(outcome)
		}
		return c.JSON(outcome)
	}
}

func reportResult(svc *services.LadderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			WinnerID    string     `json:"winner_id"`
			CompletedAt *time.Time `json:"completed_at,omitempty"`
			IsAdmin     bool       `json:"is_admin"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
		}
		completedAt := time.Now()
		if req.CompletedAt != nil {
			completedAt = *req.CompletedAt
		}

		outcome, err := svc.ReportResult(c.Params("id"), req.WinnerID, completedAt, req.IsAdmin)
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "challenge not found"})
		}
		if errors.Is(err, services.ErrConflict) {
			// Concurrent match resolution: the client re-runs the whole
			// classify-then-apply sequence, since eligibility may have
			// changed.
			return c.Status(409).JSON(fiber.Map{"error": "conflicting match resolution, retry the challenge", "retryable": true})
		}
		if err != nil {
			log.Printf("Error applying result for challenge %s: %v", c.Params("id"), err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to apply result"})
		}
		if !outcome.Gate.Allowed {
			return c.JSON(outcome)
		}

		return c.JSON(fiber.Map{
			"challenge_id": c.Params("id"),
			"gate":         outcome.Gate,
			"ladder_delta": outcome.Delta,
		})
	}
}

func declineStanding(svc *services.LadderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		available, next, err := svc.DeclineStanding(c.Params("id"), time.Now())
		if err != nil {
			log.Printf("DB Error fetching declines for %s: %v", c.Params("id"), err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to fetch decline standing"})
		}
		return c.JSON(fiber.Map{
			"player_id":          c.Params("id"),
			"available_declines": available,
			"next_reset":         next,
		})
	}
}
