package http

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// RouterConfig carries the deployment details stamped on access logs
type RouterConfig struct {
	AllowedOrigins []string
	Env            string
	Version        string
	LogLevel       slog.Level
}

func NewRouter(cfg RouterConfig, employmentHandler EmploymentHandler, probationHandler ProbationHandler, payrollHandler PayrollHandler) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(cfg.Env != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "hrms-payroll-core"),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(chiMiddleware.RequestID)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {

		r.Route("/employments/{id}", func(r chi.Router) {
			r.Get("/", employmentHandler.Get)
			r.Get("/salary", employmentHandler.GetSalary)

			r.Route("/allocations", func(r chi.Router) {
				r.Get("/", employmentHandler.ListAllocations)
				r.Post("/", employmentHandler.CreateAllocations)
				r.Put("/", employmentHandler.ReplaceAllocations)
				r.Post("/validate", employmentHandler.ValidateAllocations)
			})

			r.Post("/termination", employmentHandler.RecordTermination)
			r.Post("/probation/extension", employmentHandler.ExtendProbation)
		})

		r.Route("/probation", func(r chi.Router) {
			r.Post("/transitions/run", probationHandler.RunTransitions)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Route("/batches", func(r chi.Router) {
				r.Post("/", payrollHandler.CreateBatch)
				r.Get("/{id}", payrollHandler.GetBatch)
				r.Post("/{id}/cancel", payrollHandler.CancelBatch)
			})
			r.Post("/lines/{id}/reverse", payrollHandler.ReverseLine)
		})
	})
	return r
}
