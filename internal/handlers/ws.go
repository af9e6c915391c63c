package handlers

import (
	"log"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/services"
	"chat-sync/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// WebSocketHandler handles the websocket connection
func WebSocketHandler(chatService *services.ChatService) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		// Retrieve user info from locals (set by middleware)
		userID := c.Locals("user_id").(int)
		username, _ := c.Locals("username").(string)

		// Generate a unique ID for this connection
		connID := uuid.New().String()

		cameOnline := Hub.Register(connID, userID, username, c)
		if cameOnline {
			Hub.BroadcastToAll(models.WSEvent{
				Event:     models.EventUserOnline,
				UserID:    userID,
				Username:  username,
				Timestamp: time.Now().UnixMilli(),
			})
		}

		var currentConversation string

		defer func() {
			if currentConversation != "" {
				Hub.Leave(currentConversation, connID)
			}
			wentOffline := Hub.Unregister(connID)
			if wentOffline {
				Hub.BroadcastToAll(models.WSEvent{
					Event:     models.EventUserOffline,
					UserID:    userID,
					Username:  username,
					Timestamp: time.Now().UnixMilli(),
				})
			}
			c.Close()
		}()

		// Handshake acknowledgement
		utils.SendJSON(c, models.WSEvent{
			Event:     models.EventConnected,
			UserID:    userID,
			Timestamp: time.Now().UnixMilli(),
		})

		for {
			msgType, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Printf("error: %v", err)
				}
				break
			}

			HandleEvent(c, msgType, msg, chatService, userID, username, &currentConversation, connID)
		}
	})
}

// WSUpgradeMiddleware upgrades the connection to WebSocket
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the JWT token before upgrading
func AuthMiddleware(c *fiber.Ctx) error {
	// Get token from query param `access_token` or Authorization header
	token := c.Query("access_token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	// claims["user_id"] comes as float64 from JSON
	if uid, ok := claims["user_id"].(float64); ok {
		c.Locals("user_id", int(uid))
	} else {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}

	if u, ok := claims["username"].(string); ok {
		c.Locals("username", u)
	}

	return c.Next()
}
