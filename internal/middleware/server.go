package middleware

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dreambot-go/internal/config"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Status is what the keep-alive page reports.
type Status struct {
	Online       bool
	TrackedUsers int
	StartedAt    time.Time
}

// StatusFunc reports the current bot status.
type StatusFunc func() Status

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>Dreambot Status</title></head>
<body>
  <h1>Dreambot</h1>
  <p>{{if .Online}}ONLINE{{else}}WAKING{{end}}</p>
  <p>Tracked dreamers: {{.TrackedUsers}}</p>
  <p>Awake since {{.StartedAt.Format "2006-01-02 15:04:05 MST"}}</p>
  <p>The wish-dragon stirs in the digital realm...</p>
</body>
</html>
`))

// Server is the keep-alive HTTP endpoint: status page, health check and metrics.
type Server struct {
	cfg    *config.MonitoringConfig
	status StatusFunc
	logger *logrus.Logger
	router *mux.Router
}

// NewServer builds the router. status may be nil.
func NewServer(cfg *config.MonitoringConfig, status StatusFunc, logger *logrus.Logger) *Server {
	if status == nil {
		started := time.Now()
		status = func() Status { return Status{Online: true, StartedAt: started} }
	}
	s := &Server{cfg: cfg, status: status, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/", s.handleStatus).Methods(http.MethodGet)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	s.router = router
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage.Execute(w, s.status()); err != nil {
		s.logger.WithError(err).Error("Failed to render status page")
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", server.Addr).Info("Keep-alive server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
