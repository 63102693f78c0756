package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
	"airflow-service/app/src/shared/constants"
)

// HeaderRequestID carries the correlation id of a request.
const HeaderRequestID = "X-Request-ID"

// Server exposes the HTTP transport for the airflow application.
type Server struct {
	handler http.Handler
}

// NewServer constructs an HTTP server that forwards requests to the application service
// and serves estimate history from history.
func NewServer(service domain.AirflowService, history domain.EstimateReader, logger *infra.Logger) *Server {
	router := chi.NewRouter()
	router.Use(correlationID)
	router.Use(infra.HTTPMiddleware)

	registerRoutes(router, &handler{service: service, history: history, logger: logger})

	return &Server{handler: router}
}

// Router returns the configured HTTP handler for reuse in tests or external HTTP servers.
func (s *Server) Router() http.Handler {
	return s.handler
}

// ServeHTTP allows Server to satisfy the http.Handler interface directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = constants.GenerateUUID()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(infra.WithCorrelationID(r.Context(), id)))
	})
}
