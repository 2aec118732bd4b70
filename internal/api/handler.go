package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/service"
	"github.com/fathima-sithara/history-service/internal/store"
)

type Handlers struct {
	writer    *service.Writer
	reader    *service.Reader
	compactor *service.Compactor
	cleaner   *service.Cleaner
	store     store.Store
}

func NewHandlers(w *service.Writer, r *service.Reader, c *service.Compactor, cl *service.Cleaner, st store.Store) *Handlers {
	return &Handlers{writer: w, reader: r, compactor: c, cleaner: cl, store: st}
}

func (h *Handlers) createConversation(c *fiber.Ctx) error {
	var req struct {
		ID           string                               `json:"id"`
		Participants []string                             `json:"participants"`
		Display      map[string]domain.ParticipantDisplay `json:"participantDisplay"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	if err := h.writer.EnsureConversation(ctx, req.ID, req.Participants, req.Display); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "id": req.ID})
}

func (h *Handlers) getConversation(c *fiber.Ctx) error {
	conv, err := h.store.GetConversation(c.Context(), c.Params("conv_id"))
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req struct {
		Text       string `json:"text"`
		SenderName string `json:"senderName"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	user := c.Locals("user_id").(string)
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	msg, err := h.writer.Append(ctx, c.Params("conv_id"), domain.Message{
		SenderID:   user,
		SenderName: req.SenderName,
		Text:       req.Text,
	})
	switch {
	case err == nil:
		return c.Status(201).JSON(fiber.Map{"status": "ok", "data": msg})
	case errors.Is(err, service.ErrEmptyMessage):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrConversationNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "conversation not found"})
	case errors.Is(err, service.ErrNotParticipant):
		return c.Status(403).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}

// listMessages drains up to ?pages= pages from a fresh cursor, newest
// first. The cursor itself is request-scoped; scrolling further means
// asking for more pages.
func (h *Handlers) listMessages(c *fiber.Ctx) error {
	pages, err := strconv.Atoi(c.Query("pages", "1"))
	if err != nil || pages < 1 {
		pages = 1
	}

	cur := h.reader.OpenCursor(c.Params("conv_id"))
	out := []domain.Message{}
	partial := false
	done := false
	for i := 0; i < pages && !done; i++ {
		page, err := cur.NextPage(c.Context())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		out = append(out, page.Messages...)
		partial = partial || page.Partial
		done = page.Done
	}
	return c.JSON(fiber.Map{"status": "ok", "data": out, "partial": partial, "done": done})
}

func (h *Handlers) markRead(c *fiber.Ctx) error {
	user := c.Locals("user_id").(string)
	if err := h.writer.MarkRead(c.Context(), c.Params("conv_id"), user); err != nil {
		if errors.Is(err, service.ErrNotParticipant) {
			return c.Status(403).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// compact is the authenticated on-demand trigger: only a participant of
// the conversation may force a compaction.
func (h *Handlers) compact(c *fiber.Ctx) error {
	user := c.Locals("user_id").(string)
	convID := c.Params("conv_id")

	conv, err := h.store.GetConversation(c.Context(), convID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if !conv.HasParticipant(user) {
		return c.Status(403).JSON(fiber.Map{"error": "not a participant"})
	}

	res, err := h.compactor.Compact(c.Context(), convID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "data": res})
}

func (h *Handlers) deleteConversation(c *fiber.Ctx) error {
	user := c.Locals("user_id").(string)
	convID := c.Params("conv_id")

	conv, err := h.store.GetConversation(c.Context(), convID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if !conv.HasParticipant(user) {
		return c.Status(403).JSON(fiber.Map{"error": "not a participant"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()
	if err := h.cleaner.DeleteConversation(ctx, convID); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
