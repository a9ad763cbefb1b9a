package spacestatus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.logger.With("component", "http")))

	r.Get("/spaceapi.json", a.handleDocument)
	r.Get("/events", a.handleEvents)
	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.metrics.registry, promhttp.HandlerOpts{}))
	return r
}

func (a *App) startHTTP() error {
	a.httpServer = &http.Server{
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.HTTPAddr, err)
	}
	a.httpAddr = ln.Addr().String()

	srv := a.httpServer
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", "err", err)
		}
	}()
	return nil
}

func (a *App) handleDocument(w http.ResponseWriter, r *http.Request) {
	data, err := a.store.Document().MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

// handleEvents streams the document as server-sent events: once on connect
// and again after every applied event.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sub := a.watches.subscribe()
	defer a.watches.unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	for {
		if err := writeEvent(w, a.store.Document()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-sub.signal:
		case <-r.Context().Done():
			return
		case <-a.ctx.Done():
			return
		}
	}
}

func writeEvent(w io.Writer, doc Document) error {
	data, err := doc.MarshalJSON()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("event: spaceapi\ndata: ")
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	buf.WriteString("\n\n")
	_, err = w.Write(buf.Bytes())
	return err
}

type problemJSON struct {
	Stage    string    `json:"stage"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Error    string    `json:"error"`
	Since    time.Time `json:"since"`
	Count    int       `json:"count"`
}

type healthJSON struct {
	Status   string        `json:"status"`
	Problems []problemJSON `json:"problems"`
}

// handleHealth always answers 200 so that a broken broker or disk does not
// get the daemon restarted in a loop; the body says what is wrong.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthJSON{Status: "ok", Problems: []problemJSON{}}
	for _, p := range a.health.problems() {
		resp.Status = "degraded"
		resp.Problems = append(resp.Problems, problemJSON{
			Stage:    string(p.Stage),
			Severity: p.Severity.String(),
			Message:  p.Message,
			Error:    p.Err,
			Since:    p.Since,
			Count:    p.Count,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
