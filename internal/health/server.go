package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"

	"autoposter/internal/domain"
)

// AutomationCounter reports how many automations are currently due.
type AutomationCounter interface {
	CountDue(ctx context.Context, now time.Time) (int64, error)
}

// QueueCounter reports queue depth per content status.
type QueueCounter interface {
	CountByStatus(ctx context.Context) (map[domain.ContentStatus]int64, error)
}

// WorkerPool exposes the pool's live occupancy.
type WorkerPool interface {
	Busy() int64
	Size() int
}

// Server serves the operational endpoints: liveness plus a queue
// snapshot for dashboards.
type Server struct {
	app         *fiber.App
	db          *sqlx.DB
	automations AutomationCounter
	items       QueueCounter
	pool        WorkerPool
	logger      *slog.Logger
	addr        string
}

func NewServer(addr string, db *sqlx.DB, automations AutomationCounter, items QueueCounter, pool WorkerPool, logger *slog.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		db:          db,
		automations: automations,
		items:       items,
		pool:        pool,
		logger:      logger.With("component", "health"),
		addr:        addr,
	}

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/stats", s.handleStats)

	return s
}

func (s *Server) Start() error {
	s.logger.Info("health server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Error("database ping failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
		}
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	ctx := c.Context()

	dueAutomations, err := s.automations.CountDue(ctx, time.Now())
	if err != nil {
		s.logger.Error("count due automations failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "stats unavailable",
		})
	}

	byStatus, err := s.items.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("count queue depth failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "stats unavailable",
		})
	}

	depth := make(map[string]int64, len(byStatus))
	for status, n := range byStatus {
		depth[string(status)] = n
	}

	return c.JSON(domain.QueueStats{
		DueAutomations: dueAutomations,
		QueueDepth:     depth,
		BusyWorkers:    s.pool.Busy(),
		PoolSize:       s.pool.Size(),
	})
}
