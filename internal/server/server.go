// Package server exposes a Bridge over HTTP so functions can be compiled
// and invoked by other processes.
package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	edge "github.com/boomhut/goja-edge"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type compileRequest struct {
	Source string `json:"source"`
	Syntax string `json:"syntax"`
}

type invokeRequest struct {
	Input interface{} `json:"input"`
}

// Server serves the compile and invoke endpoints.
type Server struct {
	bridge    *edge.Bridge
	log       *zap.Logger
	app       *fiber.App
	metrics   *perfMetrics
	functions sync.Map
}

// New builds the fiber app around b.
func New(b *edge.Bridge, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		bridge:  b,
		log:     log,
		metrics: newPerfMetrics(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "edge",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          s.handleError,
	})
	s.app.Get("/healthz", s.health)
	s.app.Get("/metrics", s.metricsSnapshot)
	s.app.Post("/functions", s.compile)
	s.app.Post("/functions/:id/invoke", s.invoke)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops the HTTP server. The bridge is left to its owner.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) health(c *fiber.Ctx) error {
	state := s.bridge.State()
	status := fiber.StatusOK
	if state == edge.StateFailed || state == edge.StateClosed {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"state": state.String()})
}

func (s *Server) metricsSnapshot(c *fiber.Ctx) error {
	c.Set("Cache-Control", "no-store, max-age=0")
	return c.JSON(fiber.Map{"metrics": s.metrics.Snapshot()})
}

func (s *Server) compile(c *fiber.Ctx) error {
	var req compileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	syntax, err := edge.ParseSyntax(req.Syntax)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	start := time.Now()
	fn, err := s.bridge.CompileContext(c.UserContext(), req.Source, edge.WithSyntax(syntax))
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	s.metrics.RecordCompile(elapsed)

	s.functions.Store(fn.ID(), fn)
	s.log.Info("function compiled", zap.String("id", fn.ID()), zap.Duration("took", elapsed))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": fn.ID()})
}

func (s *Server) invoke(c *fiber.Ctx) error {
	id := c.Params("id")
	v, ok := s.functions.Load(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("function %s not found", id))
	}
	fn := v.(*edge.Function)

	var req invokeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	start := time.Now()
	result, err := fn.InvokeContext(c.UserContext(), req.Input)
	elapsed := time.Since(start)
	s.metrics.RecordInvoke(elapsed, err != nil)
	c.Set("Server-Timing", fmt.Sprintf("invoke;dur=%.2f", millis(elapsed)))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": result})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		status = fe.Code
	case errors.Is(err, edge.ErrRuntimeClosed), errors.Is(err, edge.ErrRuntimeInitFailed):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, edge.ErrCompilationFailed):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, edge.ErrExecutionFailed):
		status = fiber.StatusInternalServerError
	}

	if status >= fiber.StatusInternalServerError {
		s.log.Warn("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
