package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/understories/p2pmentor/internal/config"
	"github.com/understories/p2pmentor/internal/handlers"
	"github.com/understories/p2pmentor/internal/middleware"
	"github.com/understories/p2pmentor/internal/notify"
	"github.com/understories/p2pmentor/internal/repository"
	"github.com/understories/p2pmentor/internal/services"
	"github.com/understories/p2pmentor/internal/store"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool, logger zerolog.Logger) {
	factStore := store.NewPostgresStore(db)
	factRepo := repository.NewFactRepository(factStore, cfg.Space)

	hub := notify.NewHub()
	go hub.Run()

	provisioner := services.NewMeetingProvisioner(factRepo, cfg.SessionBuffer, cfg.MeetBaseURL)
	sessionService := services.NewSessionService(factRepo, provisioner, hub, cfg.SessionBuffer, logger)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	notificationHandler := handlers.NewNotificationHandler(hub)

	api := app.Group("/api/v1")

	sessions := api.Group("/sessions", middleware.IdentityRequired())
	sessions.Post("/", sessionHandler.CreateSession)
	sessions.Get("/", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Post("/:id/confirm", sessionHandler.ConfirmSession)
	sessions.Post("/:id/reject", sessionHandler.RejectSession)
	sessions.Post("/:id/payment", sessionHandler.SubmitPayment)
	sessions.Post("/:id/payment/validate", sessionHandler.ValidatePayment)

	api.Get(
		"/notifications/ws",
		notificationHandler.WebSocketUpgrade,
		websocket.New(notificationHandler.HandleWebSocket),
	)
}
