package kb

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	"github.com/frahmantamala/kb-management/internal/transport"
	"github.com/frahmantamala/kb-management/pkg/logger"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto CreateKBDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := internal.ActorIDFromContext(r.Context())
	kb, err := h.Service.Create(r.Context(), dto, actorID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, kb)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	kb, err := h.Service.Get(r.Context(), chi.URLParam(r, "kbID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, kb)
}

// List returns the kbs the caller can reach. min_level defaults to read.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorIDFromContext(r.Context())

	minLevel := accesscontrol.LevelRead
	if raw := r.URL.Query().Get("min_level"); raw != "" {
		parsed, err := accesscontrol.ParseLevel(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "min_level must be one of read, write, admin")
			return
		}
		minLevel = parsed
	}

	kbs, err := h.Service.ListAccessible(r.Context(), actorID, minLevel)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"knowledge_bases": kbs})
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var dto RenameKBDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kb, err := h.Service.Rename(r.Context(), chi.URLParam(r, "kbID"), dto)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, kb)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "kbID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TouchQA marks question answering activity; the query pipeline calls this
// after each answered question.
func (h *Handler) TouchQA(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.TouchQA(r.Context(), chi.URLParam(r, "kbID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TouchInsert marks document ingestion activity.
func (h *Handler) TouchInsert(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.TouchInsert(r.Context(), chi.URLParam(r, "kbID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		status, body := appErr.ToHTTPResponse()
		h.WriteJSON(w, status, body)
		return
	}
	if _, ok := err.(ValidationError); ok {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.Logger.Error("kb request failed", "error", err)
	h.WriteError(w, http.StatusInternalServerError, "internal server error")
}
