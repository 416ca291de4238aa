package accesscontrol

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/transport"
	"github.com/frahmantamala/kb-management/pkg/logger"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Engine *Engine
	Admin  *AdminService
}

func NewHandler(engine *Engine, admin *AdminService) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Engine:      engine,
		Admin:       admin,
	}
}

// ListGrants returns every explicit grant on the kb.
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")

	grants, err := h.Engine.ListGrants(r.Context(), kbID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"grants": grants})
}

// EffectiveAccess reports the given user's effective level on the kb with
// provenance. Display only; enforcement goes through the route guards.
func (h *Handler) EffectiveAccess(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = internal.ActorIDFromContext(r.Context())
	}

	decision, err := h.Engine.EffectiveAccess(r.Context(), userID, kbID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if decision.Denial == DenialKBNotFound {
		h.WriteError(w, http.StatusNotFound, "knowledge base not found")
		return
	}

	h.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	actorID := internal.ActorIDFromContext(r.Context())

	var dto GrantDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	prior, err := h.Admin.Grant(r.Context(), kbID, dto.Subject(), Level(dto.Level), actorID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"kb_id":            kbID,
		"subject_kind":     dto.SubjectKind,
		"subject_id":       dto.SubjectID,
		"permission_level": dto.Level,
		"prior_level":      prior,
	})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	actorID := internal.ActorIDFromContext(r.Context())

	var dto RevokeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.Admin.Revoke(r.Context(), kbID, dto.Subject(), actorID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) BatchSet(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	actorID := internal.ActorIDFromContext(r.Context())

	var dto BatchSetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]BatchSetItem, 0, len(dto.Items))
	for _, item := range dto.Items {
		items = append(items, BatchSetItem{Subject: item.Subject(), Level: Level(item.Level)})
	}

	result, err := h.Admin.BatchSet(r.Context(), kbID, items, actorID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "kbID")
	actorID := internal.ActorIDFromContext(r.Context())

	var dto TransferOwnershipDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Admin.TransferOwnership(r.Context(), kbID, dto.NewOwnerID, actorID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"kb_id":        kbID,
		"new_owner_id": dto.NewOwnerID,
	})
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
	h.Logger.Error("access control request failed", "error", err)
	h.WriteError(w, http.StatusInternalServerError, "internal server error")
}
