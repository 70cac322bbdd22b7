package routes

import (
	"github.com/Kyria-Zaire/Roomshare-sub000/handlers"
	"github.com/Kyria-Zaire/Roomshare-sub000/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func MessagingRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	conversations := api.Group("/conversations", middleware.Protected())
	conversations.Get("", handlers.GetUserConversations)
	conversations.Post("", handlers.CreateOrGetConversation)
	// Registered before the param route so "unread" is never parsed as an id.
	conversations.Get("/unread/count", handlers.GetUnreadCount)
	conversations.Get("/:conversationId", handlers.GetConversation)

	messages := api.Group("/messages", middleware.Protected())
	messages.Post("", handlers.SendMessage)
	messages.Delete("/:messageId", handlers.DeleteMessage)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(handlers.ServeWs))
}
