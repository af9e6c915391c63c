package handlers

import (
	"context"
	"log"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/services"
	"chat-sync/internal/utils"

	"github.com/gofiber/websocket/v2"
)

// HandleEvent dispatches one inbound websocket event.
func HandleEvent(c *websocket.Conn, msgType int, msg []byte, chatService *services.ChatService, userID int, username string, currentConversation *string, connID string) {
	if msgType != websocket.TextMessage {
		return
	}

	var ev models.WSEvent
	if err := utils.SafeJSONParse(msg, &ev); err != nil {
		utils.LogError(err, "JSON Parse")
		return
	}

	switch ev.Event {
	case models.EventJoin:
		handleJoin(c, &ev, userID, username, currentConversation, chatService, connID)
	case models.EventLeave:
		handleLeave(&ev, currentConversation, connID)
	case models.EventSendMessage:
		handleSendMessage(c, &ev, userID, chatService)
	case models.EventTypingStart, models.EventTypingStop:
		handleTyping(&ev, userID, username, currentConversation, connID)
	case models.EventConversationUpdated, models.EventConversationDeleted:
		// Client-initiated broadcast after a REST write; relay to the other
		// participants as-is.
		relayConversationEvent(&ev, userID, chatService, connID)
	default:
		log.Printf("Unknown event: %s", ev.Event)
	}
}

func handleJoin(c *websocket.Conn, ev *models.WSEvent, userID int, username string, currentConversation *string, chatService *services.ChatService, connID string) {
	if ev.ConversationID == "" {
		return
	}

	ok, err := chatService.IsParticipant(context.Background(), ev.ConversationID, userID)
	if err != nil {
		utils.LogError(err, "IsParticipant")
		return
	}
	if !ok {
		utils.SendJSON(c, models.WSEvent{
			Event:          models.EventError,
			ConversationID: ev.ConversationID,
			Error:          "not a participant of this conversation",
		})
		return
	}

	// Leave previous conversation if any
	if *currentConversation != "" {
		Hub.Leave(*currentConversation, connID)
	}

	*currentConversation = ev.ConversationID
	Hub.Join(*currentConversation, connID, c)

	Hub.Broadcast(*currentConversation, models.WSEvent{
		Event:          models.EventUserJoined,
		ConversationID: *currentConversation,
		UserID:         userID,
		Username:       username,
		Timestamp:      time.Now().UnixMilli(),
	}, connID)
}

func handleLeave(ev *models.WSEvent, currentConversation *string, connID string) {
	if *currentConversation != "" {
		Hub.Leave(*currentConversation, connID)
		*currentConversation = ""
	}
}

func handleSendMessage(c *websocket.Conn, ev *models.WSEvent, userID int, chatService *services.ChatService) {
	if ev.ConversationID == "" || ev.Content == "" {
		utils.SendJSON(c, models.WSEvent{
			Event:  models.EventError,
			TempID: ev.TempID,
			Error:  "message must have a conversation and content",
		})
		return
	}

	ok, err := chatService.IsParticipant(context.Background(), ev.ConversationID, userID)
	if err == nil && !ok {
		utils.SendJSON(c, models.WSEvent{
			Event:          models.EventError,
			ConversationID: ev.ConversationID,
			TempID:         ev.TempID,
			Error:          "not a participant of this conversation",
		})
		return
	}

	dbMsg := &models.Message{
		ConversationID: ev.ConversationID,
		SenderID:       userID,
		Content:        ev.Content,
	}
	if err := chatService.SaveMessage(context.Background(), dbMsg); err != nil {
		utils.LogError(err, "SaveMessage")
		utils.SendJSON(c, models.WSEvent{
			Event:          models.EventError,
			ConversationID: ev.ConversationID,
			TempID:         ev.TempID,
			Error:          "failed to store message",
		})
		return
	}

	// Acknowledge to the sender with the permanent id remap.
	utils.SendJSON(c, models.WSEvent{
		Event:          models.EventMessageSent,
		ConversationID: ev.ConversationID,
		TempID:         ev.TempID,
		MessageID:      dbMsg.ID,
		Timestamp:      dbMsg.CreatedAt.UnixMilli(),
	})

	// Push to every participant, in or out of the open conversation.
	participants, err := chatService.GetParticipants(context.Background(), ev.ConversationID)
	if err != nil {
		utils.LogError(err, "GetParticipants")
		return
	}
	Hub.SendToUsers(participants, models.WSEvent{
		Event:          models.EventNewMessage,
		ConversationID: ev.ConversationID,
		Message:        dbMsg,
		Timestamp:      dbMsg.CreatedAt.UnixMilli(),
	})
}

func handleTyping(ev *models.WSEvent, userID int, username string, currentConversation *string, connID string) {
	conversationID := ev.ConversationID
	if conversationID == "" {
		conversationID = *currentConversation
	}
	if conversationID == "" {
		return
	}

	Hub.Broadcast(conversationID, models.WSEvent{
		Event:          ev.Event,
		ConversationID: conversationID,
		UserID:         userID,
		Username:       username,
		Timestamp:      time.Now().UnixMilli(),
	}, connID)
}

func relayConversationEvent(ev *models.WSEvent, userID int, chatService *services.ChatService, connID string) {
	if ev.ConversationID == "" {
		return
	}
	ok, err := chatService.IsParticipant(context.Background(), ev.ConversationID, userID)
	if err != nil || !ok {
		// Deleted conversations have no participant rows left; the REST
		// handler already fanned the deletion out, so drop the relay.
		return
	}
	Hub.Broadcast(ev.ConversationID, models.WSEvent{
		Event:          ev.Event,
		ConversationID: ev.ConversationID,
		Name:           ev.Name,
		UserID:         userID,
		Timestamp:      time.Now().UnixMilli(),
	}, connID)
}
