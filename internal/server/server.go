// Package server exposes the agent's HTTP surface: the fetch interception
// catch-all, the control endpoints, and the client WebSocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/client"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/httputil"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/notification"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/strategy"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/svc"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/syncq"
)

// New builds the chi router over the service context.
func New(svcCtx *svc.ServiceContext) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.OkJSON(w, map[string]string{"status": "ok"})
	})

	r.HandleFunc("/ws", client.Handler(svcCtx.Hub))

	r.Route("/agent", func(r chi.Router) {
		r.Get("/version", handleVersion(svcCtx))
		r.Post("/sync", handleSync(svcCtx))
		r.Post("/queue", handleEnqueue(svcCtx))
		r.Get("/queue/size", handleQueueSize(svcCtx))
		r.Post("/push", handlePush(svcCtx))
		r.Post("/notification/click", handleClick(svcCtx))
	})

	// Everything else is an intercepted fetch.
	r.NotFound(handleFetch(svcCtx))

	return r
}

func handleVersion(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.OkJSON(w, map[string]any{
			"version":   svcCtx.Agent.Version(),
			"build":     svcCtx.Version,
			"timestamp": time.Now().UnixMilli(),
		})
	}
}

func handleSync(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok := svcCtx.Agent.TriggerSync(r.Context())
		httputil.OkJSON(w, map[string]any{
			"success":   ok,
			"timestamp": time.Now().UnixMilli(),
		})
	}
}

func handleEnqueue(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil || len(payload) == 0 {
			httputil.Error(w, http.StatusBadRequest, "empty payload")
			return
		}
		if !json.Valid(payload) {
			httputil.Error(w, http.StatusBadRequest, "payload must be JSON")
			return
		}
		item := syncq.Item{
			ID:        uuid.New().String(),
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}
		if err := svcCtx.Agent.EnqueueWrite(r.Context(), item); err != nil {
			logging.Errorf("enqueue write: %v", err)
			httputil.Error(w, http.StatusInternalServerError, "enqueue failed")
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"id": item.ID})
	}
}

func handleQueueSize(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svcCtx.Agent.Sync.Size(r.Context())
		if err != nil {
			httputil.Error(w, http.StatusInternalServerError, "queue unavailable")
			return
		}
		httputil.OkJSON(w, map[string]int{"size": n})
	}
}

func handlePush(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
		svcCtx.Agent.HandlePush(raw)
		httputil.WriteJSON(w, http.StatusAccepted, nil)
	}
}

func handleClick(svcCtx *svc.ServiceContext) http.HandlerFunc {
	type clickRequest struct {
		Action string            `json:"action"`
		Data   notification.Data `json:"data"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req clickRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "malformed click")
			return
		}
		svcCtx.Agent.HandleClick(req.Action, req.Data)
		httputil.WriteJSON(w, http.StatusAccepted, nil)
	}
}

// handleFetch is the interception path: classify, dispatch to a strategy,
// and write the resulting snapshot. Failures degrade to the synthetic 503;
// nothing on this path may surface a raw error to the client.
func handleFetch(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
		}
		req := strategy.Request{
			Method: r.Method,
			URL:    r.URL.RequestURI(),
			Header: r.Header.Clone(),
			Body:   body,
		}

		snap, cat := svcCtx.Agent.HandleFetch(r.Context(), req, isNavigation(r))

		for k, vs := range snap.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("X-Fetch-Category", cat.String())
		w.WriteHeader(snap.Status)
		if _, err := w.Write(snap.Body); err != nil {
			logging.Debugf("write response for %s: %v", r.URL.Path, err)
		}
	}
}

// isNavigation mirrors the browser's navigation signal: an explicit
// Sec-Fetch-Mode, or a top-level GET asking for HTML.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	if r.Method != http.MethodGet {
		return false
	}
	return strings.HasPrefix(r.Header.Get("Accept"), "text/html")
}

// Run serves the handler until the context is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("agent listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
