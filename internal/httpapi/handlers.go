package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/connect4-sync/internal/session"
	"github.com/DoyleJ11/connect4-sync/internal/store"
)

type roomStatus struct {
	Code     string       `json:"code"`
	Joinable bool         `json:"joinable"`
	Status   store.Status `json:"status,omitempty"`
}

// RoomStatus reports whether a short code currently names a room that can be
// joined. It never changes the room.
func RoomStatus(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := session.NormalizeCode(chi.URLParam(r, "code"))
		if len(code) != session.CodeLength {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}

		hits, err := st.QueryByField(r.Context(), store.FieldShortCode, code)
		if err != nil {
			log.Warn("room lookup failed", zap.String("code", code), zap.Error(err))
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		if len(hits) == 0 {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		out := roomStatus{Code: code, Status: hits[0].Record.Status}
		for _, h := range hits {
			if h.Record.Status == store.StatusWaiting {
				out.Joinable = true
				out.Status = h.Record.Status
				break
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
