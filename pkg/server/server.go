// Package server exposes Egg evaluation over HTTP.
package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/oarkflow/json"
	"github.com/oarkflow/log"
	"github.com/oarkflow/xid"

	"egg/interpreter-go/pkg/interpreter"
	"egg/interpreter-go/pkg/langerr"
	"egg/interpreter-go/pkg/parser"
	"egg/interpreter-go/pkg/runtime"
	"egg/interpreter-go/pkg/store"
)

// DefaultTimeout bounds a single run when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Config wires the service's collaborators.
type Config struct {
	Timeout  time.Duration
	MaxSteps int
	MaxDepth int
	// Cache is shared by every run. Optional.
	Cache *parser.Cache
	// Store backs the /programs routes. Optional; without it those routes
	// answer 503.
	Store  *store.Store
	Logger *log.Logger
}

// Server is the HTTP evaluation service.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *log.Logger
}

type runRequest struct {
	Source    string   `json:"source"`
	Fragments []string `json:"fragments"`
}

type programRequest struct {
	Source string `json:"source"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

type runResponse struct {
	ID     string     `json:"id"`
	Value  string     `json:"value,omitempty"`
	Kind   string     `json:"kind,omitempty"`
	Output []string   `json:"output"`
	Error  *errorBody `json:"error,omitempty"`
}

// New builds the service and registers its routes.
func New(cfg Config) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &log.DefaultLogger
	}
	app := fiber.New(fiber.Config{
		AppName:               "egg",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           func(data []byte, v any) error { return json.Unmarshal(data, v) },
	})
	s := &Server{app: app, cfg: cfg, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.health)
	s.app.Post("/run", s.runSource)

	s.app.Get("/programs", s.listPrograms)
	s.app.Get("/programs/:name", s.getProgram)
	s.app.Put("/programs/:name", s.putProgram)
	s.app.Delete("/programs/:name", s.deleteProgram)
	s.app.Post("/programs/:name/run", s.runProgram)
}

// App exposes the fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("egg server listening")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) runSource(c *fiber.Ctx) error {
	var req runRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	fragments := req.Fragments
	if len(fragments) == 0 {
		if strings.TrimSpace(req.Source) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source or fragments required"})
		}
		fragments = []string{req.Source}
	}
	resp, err := s.execute(c.UserContext(), "", fragments)
	return s.respond(c, resp, err)
}

func (s *Server) runProgram(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return storeUnavailable(c)
	}
	name := c.Params("name")
	prog, err := s.cfg.Store.Get(name)
	if err != nil {
		return s.storeError(c, name, err)
	}
	resp, err := s.execute(c.UserContext(), name, []string{prog.Source})
	return s.respond(c, resp, err)
}

func (s *Server) listPrograms(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return storeUnavailable(c)
	}
	names, err := s.cfg.Store.List()
	if err != nil {
		return s.storeError(c, "", err)
	}
	return c.JSON(fiber.Map{"programs": names})
}

func (s *Server) getProgram(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return storeUnavailable(c)
	}
	name := c.Params("name")
	prog, err := s.cfg.Store.Get(name)
	if err != nil {
		return s.storeError(c, name, err)
	}
	return c.JSON(prog)
}

func (s *Server) putProgram(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return storeUnavailable(c)
	}
	name := c.Params("name")
	var req programRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if _, err := s.cfg.Cache.Parse(req.Source); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": toErrorBody(err)})
	}
	prog, err := s.cfg.Store.Put(name, req.Source)
	if err != nil {
		return s.storeError(c, name, err)
	}
	s.logger.Info().Str("program", name).Msg("program saved")
	return c.JSON(prog)
}

func (s *Server) deleteProgram(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return storeUnavailable(c)
	}
	name := c.Params("name")
	if err := s.cfg.Store.Delete(name); err != nil {
		return s.storeError(c, name, err)
	}
	s.logger.Info().Str("program", name).Msg("program deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// execute runs fragments with a fresh interpreter and a buffered printer.
func (s *Server) execute(parent context.Context, program string, fragments []string) (runResponse, error) {
	id := xid.New().String()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()

	printer := &runtime.BufferPrinter{}
	interp := interpreter.NewWithOptions(interpreter.Options{
		MaxDepth: s.cfg.MaxDepth,
		MaxSteps: s.cfg.MaxSteps,
		Printer:  printer,
		Cache:    s.cfg.Cache,
	})
	start := time.Now()
	val, err := interp.RunContext(ctx, fragments...)
	resp := runResponse{ID: id, Output: printer.Lines()}
	event := s.logger.Info()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.Str("id", id).Str("program", program).Str("elapsed", time.Since(start).String()).Msg("run finished")
	if err != nil {
		resp.Error = toErrorBody(err)
		return resp, err
	}
	resp.Value = runtime.FormatValue(val)
	resp.Kind = val.Kind().String()
	return resp, nil
}

func (s *Server) respond(c *fiber.Ctx, resp runResponse, err error) error {
	switch {
	case err == nil:
		return c.JSON(resp)
	case isLanguageError(err):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}
}

func (s *Server) storeError(c *fiber.Ctx, name string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "program not found", "name": name})
	}
	s.logger.Error().Err(err).Str("program", name).Msg("store failure")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func storeUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "program store not configured"})
}

func isLanguageError(err error) bool {
	_, ok := langerr.As(err)
	return ok
}

func toErrorBody(err error) *errorBody {
	if le, ok := langerr.As(err); ok {
		return &errorBody{
			Kind:    string(le.Kind),
			Message: le.Message,
			Line:    le.Pos.Line,
			Column:  le.Pos.Column,
		}
	}
	return &errorBody{Kind: "InternalError", Message: err.Error()}
}
