// Package api exposes the session controller over HTTP: commands, the status
// snapshot, the transcript, a websocket event stream and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrsingh-rishi/live-voice/session"
)

// Controller is the part of session.Controller the API drives.
type Controller interface {
	Start() error
	Stop() error
	Toggle() error
	Snapshot() session.Snapshot
	Transcript() string
	Subscribe() (<-chan session.Event, func())
}

type Server struct {
	app    *fiber.App
	ctrl   Controller
	logger *log.Logger
}

type transcriptResponse struct {
	Transcript string `json:"transcript"`
}

// NewServer builds the routes. gatherer may be nil, in which case /metrics is not served.
func NewServer(ctrl Controller, gatherer prometheus.Gatherer, logger *log.Logger) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("controller is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			AppName:               "live-voice",
		}),
		ctrl:   ctrl,
		logger: logger,
	}
	s.app.Use(recover.New())

	s.app.Post("/start", s.command(ctrl.Start))
	s.app.Post("/stop", s.command(ctrl.Stop))
	s.app.Post("/toggle", s.command(ctrl.Toggle))

	s.app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(ctrl.Snapshot())
	})
	s.app.Get("/transcript", func(c *fiber.Ctx) error {
		return c.JSON(transcriptResponse{Transcript: ctrl.Transcript()})
	})
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	if gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Middleware to require WebSocket upgrade on /events
	s.app.Use("/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/events", websocket.New(s.events))

	return s, nil
}

func (s *Server) command(fn func() error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := fn(); err != nil {
			s.logger.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
			status := fiber.StatusInternalServerError
			if errors.Is(err, session.ErrClosed) {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(s.ctrl.Snapshot())
	}
}

// events pushes controller events until the client goes away or the
// controller closes the subscription.
func (s *Server) events(ws *websocket.Conn) {
	defer ws.Close()

	events, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()
	s.logger.Println("WebSocket /events connected")

	// reads only detect the client leaving
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.logger.Println("WebSocket /events disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				s.logger.Printf("❌ Event write error: %v", err)
				return
			}
		}
	}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Printf("Control API listening on %s", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
