// Package httpapi exposes the technician request list and actions over HTTP,
// with a websocket endpoint that pushes every live list update.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/ports"
	"crms/internal/usecase/requests"
)

const actorHeader = "X-Actor"

type Server struct {
	service  *requests.Service
	store    ports.DocumentStore
	upgrader websocket.Upgrader
}

func NewServer(service *requests.Service, store ports.DocumentStore) *Server {
	return &Server{
		service: service,
		store:   store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/technicians/{technicianID}/requests", s.listRequests)
		r.Get("/technicians/{technicianID}/requests/live", s.liveRequests)

		r.Route("/requests/{requestID}", func(r chi.Router) {
			r.Get("/", s.getRequest)
			r.Get("/history", s.getHistory)
			r.Post("/schedule", s.schedule)
			r.Post("/start", s.start)
			r.Post("/complete", s.complete)
			r.Post("/send-back", s.sendBack)
		})
	})
	return r
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	state, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return
	}
	items, err := s.service.ListProjected(r.Context(), chi.URLParam(r, "technicianID"), state)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListDTO(items, nil))
}

// getRequest loads the request the way an opened detail does, so an elapsed or
// pending schedule window moves the status before it is returned.
func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	detail := requests.NewDetail(s.service, chi.URLParam(r, "requestID"), actorFrom(r))
	defer detail.Close()

	err := detail.Load(r.Context())
	item, loaded := detail.Request()
	if !loaded {
		writeServiceError(w, r, err)
		return
	}
	if err != nil {
		logging.Warn(r.Context(), "auto status not applied on load",
			slog.String("request_id", detail.RequestID()),
			slog.Any("err", errs.Loggable(err)),
		)
	}
	writeJSON(w, http.StatusOK, toRequestDTO(item))
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.History(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTO(entries))
}

func (s *Server) schedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	err := s.service.Schedule(r.Context(), requests.ScheduleInput{
		RequestID: chi.URLParam(r, "requestID"),
		From:      body.From,
		To:        body.To,
		Actor:     actorFrom(r),
	})
	s.respondAfterAction(w, r, err)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	err := s.service.Start(r.Context(), requests.ActionInput{
		RequestID: chi.URLParam(r, "requestID"),
		Actor:     actorFrom(r),
	})
	s.respondAfterAction(w, r, err)
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	err := s.service.Complete(r.Context(), requests.ActionInput{
		RequestID: chi.URLParam(r, "requestID"),
		Actor:     actorFrom(r),
	})
	s.respondAfterAction(w, r, err)
}

func (s *Server) sendBack(w http.ResponseWriter, r *http.Request) {
	var body sendBackBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	err := s.service.SendBack(r.Context(), requests.SendBackInput{
		RequestID: chi.URLParam(r, "requestID"),
		Reason:    body.Reason,
		Actor:     actorFrom(r),
	})
	s.respondAfterAction(w, r, err)
}

// respondAfterAction reloads the request so the caller sees the stored state.
// The auto-status rule is left to the next load.
func (s *Server) respondAfterAction(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	item, err := s.service.GetProjected(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(item))
}

func parseFilter(r *http.Request) (request.FilterState, error) {
	query := r.URL.Query()
	state := request.FilterState{
		SearchText: query.Get("q"),
		Statuses:   request.NewStatusSet(),
	}
	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := request.ParseStatus(part)
			if err != nil {
				return request.FilterState{}, err
			}
			state.Statuses[status] = struct{}{}
		}
	}
	for _, item := range []struct {
		key string
		dst **time.Time
	}{
		{"from", &state.FromDate},
		{"to", &state.ToDate},
	} {
		raw := strings.TrimSpace(query.Get(item.key))
		if raw == "" {
			continue
		}
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return request.FilterState{}, errors.New("invalid " + item.key + " date: " + raw)
		}
		*item.dst = &parsed
	}
	return state, nil
}

func actorFrom(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get(actorHeader)); actor != "" {
		return actor
	}
	return "api"
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, request.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, request.ErrInvalidSchedule),
		errors.Is(err, request.ErrReasonRequired),
		errors.Is(err, request.ErrRequestIDRequired),
		errors.Is(err, request.ErrInvalidStatus):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error())
	case errors.Is(err, request.ErrConnectivity):
		logging.Warn(r.Context(), "store unavailable", slog.Any("err", errs.Loggable(err)))
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	default:
		logging.Error(r.Context(), "request failed", slog.Any("err", errs.Loggable(err)))
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ctx := logging.WithAttrs(r.Context(),
			slog.String("component", "httpapi"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.Info(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(started)),
		)
	})
}

// ListenAndServe serves until ctx ends, then drains in-flight requests for up
// to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info(ctx, "http server listening", slog.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(err, "shutdown http server")
	}
	return nil
}
