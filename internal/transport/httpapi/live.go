package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/usecase/requests"
)

const (
	liveWriteTimeout = 10 * time.Second
	livePingInterval = 30 * time.Second
)

// liveRequests streams the technician's filtered list. Each connection owns
// one coordinator; the lookup cache is shared.
func (s *Server) liveRequests(w http.ResponseWriter, r *http.Request) {
	state, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return
	}
	technicianID := chi.URLParam(r, "technicianID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(r.Context(), "websocket upgrade failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = logging.WithAttrs(ctx, slog.String("technician_id", technicianID))

	lookups := s.service.Lookups()
	if !lookups.Live() {
		if err := lookups.Refresh(ctx); err != nil {
			logging.Warn(ctx, "lookup refresh failed", slog.Any("err", errs.Loggable(err)))
		}
	}

	coordinator := requests.NewCoordinator(lookups, s.store)
	if err := coordinator.Start(ctx, technicianID); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(liveWriteTimeout))
		return
	}
	defer coordinator.Stop()

	// Reading is required for control frames; a read error means the peer left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		case update := <-coordinator.Updates():
			payload := toListDTO(request.Filter(update.Requests, state), update.Err)
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(payload); err != nil {
				logging.Warn(ctx, "websocket write failed", slog.Any("err", errs.Loggable(err)))
				return
			}
		}
	}
}
