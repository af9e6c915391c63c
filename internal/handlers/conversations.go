package handlers

import (
	"net/http"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ListConversationsHandler returns the authenticated user's conversations,
// newest activity first.
func ListConversationsHandler(chatService *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		conversations, err := chatService.ListConversations(c.Context(), userID)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch conversations"})
		}
		if conversations == nil {
			conversations = []models.Conversation{}
		}
		return c.JSON(conversations)
	}
}

// CreateConversationHandler creates a conversation and pushes it to the
// other participants who are online.
func CreateConversationHandler(chatService *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)

		var req models.CreateConversationRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if len(req.Participants) == 0 {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "participants required"})
		}

		conv, err := chatService.CreateConversation(c.Context(), userID, req)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		for _, participantID := range conv.Participants {
			if participantID == userID {
				continue
			}
			Hub.SendToUser(participantID, models.WSEvent{
				Event:          models.EventConversationCreated,
				ConversationID: conv.ID,
				Conversation:   conv,
				Timestamp:      time.Now().UnixMilli(),
			})
		}

		return c.Status(http.StatusCreated).JSON(conv)
	}
}

// RenameConversationHandler renames a conversation and fans the change out.
func RenameConversationHandler(chatService *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		conversationID := c.Params("id")

		var req models.RenameConversationRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}

		if status, err := requireParticipant(c, chatService, conversationID, userID); err != nil {
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}

		if err := chatService.RenameConversation(c.Context(), conversationID, req.Name); err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to rename conversation"})
		}

		participants, err := chatService.GetParticipants(c.Context(), conversationID)
		if err == nil {
			Hub.SendToUsers(participants, models.WSEvent{
				Event:          models.EventConversationUpdated,
				ConversationID: conversationID,
				Name:           req.Name,
				UserID:         userID,
				Timestamp:      time.Now().UnixMilli(),
			})
		}

		return c.JSON(fiber.Map{"id": conversationID, "name": req.Name})
	}
}

// DeleteConversationHandler deletes a conversation and its messages, then
// notifies every participant.
func DeleteConversationHandler(chatService *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		conversationID := c.Params("id")

		if status, err := requireParticipant(c, chatService, conversationID, userID); err != nil {
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}

		// Snapshot participants before the rows are gone.
		participants, err := chatService.GetParticipants(c.Context(), conversationID)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch participants"})
		}

		if err := chatService.DeleteConversation(c.Context(), conversationID); err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete conversation"})
		}

		Hub.SendToUsers(participants, models.WSEvent{
			Event:          models.EventConversationDeleted,
			ConversationID: conversationID,
			UserID:         userID,
			Timestamp:      time.Now().UnixMilli(),
		})

		return c.SendStatus(http.StatusNoContent)
	}
}

// GetMessagesHandler returns one page of messages for a conversation.
func GetMessagesHandler(chatService *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		conversationID := c.Params("id")

		if status, err := requireParticipant(c, chatService, conversationID, userID); err != nil {
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}

		page := c.QueryInt("page", 0)
		pageSize := c.QueryInt("page_size", 50)
		if page < 0 {
			page = 0
		}
		if pageSize < 1 || pageSize > 200 {
			pageSize = 50
		}

		messages, err := chatService.GetMessagesPage(c.Context(), conversationID, page, pageSize)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch messages"})
		}
		if messages == nil {
			messages = []models.Message{}
		}

		return c.JSON(models.MessagesPage{Messages: messages, Page: page, PageSize: pageSize})
	}
}

// MarkReadHandler marks messages read up to a cutoff and broadcasts the
// read receipt to the other participants.
func MarkReadHandler(chatService *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		conversationID := c.Params("id")

		var req models.MarkReadRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if req.Before == 0 {
			req.Before = time.Now().UnixMilli()
		}

		if status, err := requireParticipant(c, chatService, conversationID, userID); err != nil {
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}

		updated, err := chatService.MarkMessagesRead(c.Context(), conversationID, userID, time.UnixMilli(req.Before))
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to mark messages read"})
		}

		participants, err := chatService.GetParticipants(c.Context(), conversationID)
		if err == nil {
			Hub.SendToUsers(participants, models.WSEvent{
				Event:          models.EventMessageRead,
				ConversationID: conversationID,
				UserID:         userID,
				Timestamp:      req.Before,
			})
		}

		return c.JSON(models.MarkReadResponse{Updated: updated})
	}
}

func requireParticipant(c *fiber.Ctx, chatService *services.ChatService, conversationID string, userID int) (int, error) {
	ok, err := chatService.IsParticipant(c.Context(), conversationID, userID)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	if !ok {
		return http.StatusForbidden, services.ErrNotParticipant
	}
	return 0, nil
}
