package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pickleit/internal/auth"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/service"
)

// ProgressHandler serves the per-user tables and RPCs: saved methods,
// completions, achievements, and points.
//
// Every route sits behind auth.RequireAuth; the user always comes from the
// session cookie, never from the request body.
type ProgressHandler struct {
	progress *service.ProgressService
	logger   *slog.Logger
}

func NewProgressHandler(progress *service.ProgressService, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, logger: logger}
}

func currentUser(r *http.Request) string {
	userID, _ := auth.UserIDFromContext(r.Context())
	return userID
}

// =========================================================================
// SAVED METHODS
// =========================================================================

// HandleListSaved returns {"methodIds": [...]}.
//
// HTTP: GET /api/saved
func (h *ProgressHandler) HandleListSaved(w http.ResponseWriter, r *http.Request) {
	ids, err := h.progress.SavedIDs(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int64{"methodIds": ids})
}

// HandleSave bookmarks a method. Saving twice is not an error.
//
// HTTP: PUT /api/saved/{methodID}
func (h *ProgressHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseMethodID(chi.URLParam(r, "methodID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.progress.Save(r.Context(), currentUser(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnsave removes a bookmark.
//
// HTTP: DELETE /api/saved/{methodID}
func (h *ProgressHandler) HandleUnsave(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseMethodID(chi.URLParam(r, "methodID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.progress.Unsave(r.Context(), currentUser(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// COMPLETIONS
// =========================================================================

// HTTP: GET /api/completed
func (h *ProgressHandler) HandleListCompleted(w http.ResponseWriter, r *http.Request) {
	list, err := h.progress.Completions(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HTTP: GET /api/completed/count
func (h *ProgressHandler) HandleCompletedCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.progress.CompletedCount(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// HTTP: GET /api/completed/{methodID}
func (h *ProgressHandler) HandleGetCompletion(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseMethodID(chi.URLParam(r, "methodID"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.progress.Completion(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type completeRequest struct {
	Notes  string `json:"notes"`
	Rating int    `json:"rating"`
}

// HandleComplete upserts a completion with optional notes and rating.
//
// HTTP: PUT /api/completed/{methodID}
// REQUEST BODY: {"notes": "...", "rating": 4} (both optional)
// RESPONSE: 201 with "created": true for the first completion, 200 afterwards
func (h *ProgressHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseMethodID(chi.URLParam(r, "methodID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req completeRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	c := &model.CompletedMethod{
		UserID:   currentUser(r),
		MethodID: id,
		Notes:    req.Notes,
		Rating:   req.Rating,
	}
	created, err := h.progress.Complete(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, completionResponse{CompletedMethod: c, Created: created})
}

// completionResponse is the completion plus whether this request created it.
// Only the creating request may credit the first-completion points.
type completionResponse struct {
	*model.CompletedMethod
	Created bool `json:"created"`
}

// HTTP: DELETE /api/completed/{methodID}
func (h *ProgressHandler) HandleUncomplete(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseMethodID(chi.URLParam(r, "methodID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.progress.Uncomplete(r.Context(), currentUser(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// ACHIEVEMENTS AND POINTS
// =========================================================================

// HTTP: GET /api/achievements
func (h *ProgressHandler) HandleListAchievements(w http.ResponseWriter, r *http.Request) {
	ids, err := h.progress.EarnedAchievements(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"achievementIds": ids})
}

type awardRequest struct {
	AchievementID string `json:"achievementId"`
}

// HandleAward stores an award. A duplicate is a 409 the client treats as
// "already awarded".
//
// HTTP: POST /api/achievements
// REQUEST BODY: {"achievementId": "first-save"}
func (h *ProgressHandler) HandleAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.progress.Award(r.Context(), currentUser(r), req.AchievementID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// HTTP: GET /api/achievements/overview
func (h *ProgressHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.progress.Overview(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// HTTP: GET /api/profile
func (h *ProgressHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.progress.Profile(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type addPointsRequest struct {
	Points int `json:"points"`
}

// HandleAddPoints is the atomic increment RPC.
//
// HTTP: POST /api/rpc/add_user_points
// REQUEST BODY: {"points": 25}
func (h *ProgressHandler) HandleAddPoints(w http.ResponseWriter, r *http.Request) {
	var req addPointsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.progress.AddPoints(r.Context(), currentUser(r), req.Points); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/rpc/get_completed_categories
func (h *ProgressHandler) HandleCompletedCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.progress.CompletedCategories(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": cats})
}

// HTTP: GET /api/rpc/get_learned_methods_count
func (h *ProgressHandler) HandleLearnedMethodsCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.progress.LearnedMethodsCount(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}
