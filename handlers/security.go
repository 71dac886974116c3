package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pepocero/gestioneducativa-sub000/security"
)

// SecurityHandler exposes the audit trail to administrators.
type SecurityHandler struct {
	logger security.EventLogger
}

func NewSecurityHandler(logger security.EventLogger) *SecurityHandler {
	return &SecurityHandler{logger: logger}
}

// Stats returns aggregate counts over a trailing window, default 24h.
func (h *SecurityHandler) Stats(c *fiber.Ctx) error {
	hours, err := strconv.Atoi(c.Query("hours", "24"))
	if err != nil || hours < 1 || hours > 24*30 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	return c.JSON(h.logger.SecurityStats(since))
}

// Events returns recent events newest-first, filtered by query params.
func (h *SecurityHandler) Events(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 100
	}

	filter := security.Filter{
		Type:   security.EventType(c.Query("type")),
		Level:  security.Level(c.Query("level")),
		UserID: c.Query("user_id"),
		Limit:  limit,
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid 'from' timestamp, want RFC3339"})
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid 'to' timestamp, want RFC3339"})
		}
		filter.To = t
	}

	events := h.logger.Events(filter)
	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}

// Cleanup drops events older than the given age from the audit buffer.
func (h *SecurityHandler) Cleanup(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil || days < 1 {
		days = 30
	}
	removed := h.logger.Cleanup(time.Duration(days) * 24 * time.Hour)
	return c.JSON(fiber.Map{"removed": removed})
}
