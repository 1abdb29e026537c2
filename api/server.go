package api

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/fabfab/design-eval/eval"
	"github.com/fabfab/design-eval/rubric"
)

// Server owns the fiber app and its route table.
type Server struct {
	listenAddr string
	app        *fiber.App
	logger     *log.Logger
}

func NewServer(listenAddr string, service *eval.Service, rubrics *rubric.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
	})

	checkHandler := NewCheckHandler()
	evalHandler := NewEvalHandler(service, rubrics)

	check := app.Group("/check")
	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1 := app.Group("/api/v1")
	apiv1.Post("/uploads", evalHandler.HandleUpload)
	apiv1.Post("/analyze", evalHandler.HandleAnalyze)
	apiv1.Post("/chat", evalHandler.HandleChat)
	apiv1.Post("/search-guideline", evalHandler.HandleSearchGuideline)
	apiv1.Get("/rubrics/:award/:version", evalHandler.HandleRubric)
	apiv1.Post("/evaluate", evalHandler.HandleEvaluate)
	apiv1.Get("/report/:submission_id", evalHandler.HandleReport)
	apiv1.Get("/export/dataset", evalHandler.HandleExportDataset)
	apiv1.Post("/rag/refresh", evalHandler.HandleRagRefresh)
	apiv1.Post("/rag/query", evalHandler.HandleRagQuery)

	return &Server{
		listenAddr: listenAddr,
		app:        app,
		logger:     logger,
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	s.logger.Printf("listening on %s", s.listenAddr)
	return s.app.Listen(s.listenAddr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Printf("server stopping")
	return s.app.ShutdownWithContext(ctx)
}
