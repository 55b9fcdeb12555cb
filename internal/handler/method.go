package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/service"
	"github.com/sakif/pickleit/internal/storage"
)

// MethodHandler serves the method catalog.
//
// Reads are public. Create, update and image replacement sit behind
// auth.RequireAdmin in the router; this handler does not check roles itself.
type MethodHandler struct {
	methods  *service.MethodService
	variants storage.Variants
	logger   *slog.Logger
}

func NewMethodHandler(methods *service.MethodService, variants storage.Variants, logger *slog.Logger) *MethodHandler {
	return &MethodHandler{methods: methods, variants: variants, logger: logger}
}

// methodResponse is a Method plus the image variants a list or detail view needs.
type methodResponse struct {
	model.Method
	ThumbnailURL string `json:"thumbnailUrl"`
	LQIPURL      string `json:"lqipUrl,omitempty"`
	FullImageURL string `json:"fullImageUrl"`
}

func (h *MethodHandler) present(m model.Method) methodResponse {
	return methodResponse{
		Method:       m,
		ThumbnailURL: h.variants.Thumbnail(m.ImageURL),
		LQIPURL:      h.variants.LQIP(m.ImageURL),
		FullImageURL: h.variants.FullSize(m.ImageURL, 0),
	}
}

// HandleList returns methods.
//
// HTTP: GET /api/methods?category=Pickling&limit=50&offset=0
func (h *MethodHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	methods, err := h.methods.List(r.Context(), q.Get("category"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]methodResponse, len(methods))
	for i, m := range methods {
		out[i] = h.present(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCount returns {"count": n}.
//
// HTTP: GET /api/methods/count
func (h *MethodHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.methods.Count(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// HandleGet returns one method.
//
// HTTP: GET /api/methods/{id}
func (h *MethodHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseMethodID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	m, err := h.methods.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(*m))
}

// HandleCreate adds a method.
//
// HTTP: POST /api/methods
// Auth: admin
func (h *MethodHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var m model.Method
	if !decodeJSON(w, r, &m) {
		return
	}

	created, err := h.methods.Create(r.Context(), &m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.present(*created))
}

// HandleUpdate replaces a method's content.
//
// HTTP: PUT /api/methods/{id}
// Auth: admin
func (h *MethodHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseMethodID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var m model.Method
	if !decodeJSON(w, r, &m) {
		return
	}

	updated, err := h.methods.Update(r.Context(), id, &m)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(*updated))
}

// HandleReplaceImage uploads a new image for a method.
//
// HTTP: PUT /api/methods/{id}/image
// Auth: admin
// REQUEST: multipart/form-data with the file in the "image" field
func (h *MethodHandler) HandleReplaceImage(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseMethodID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	// room for the multipart envelope on top of the image itself
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageBytes+(1<<20))
	if err := r.ParseMultipartForm(storage.MaxImageBytes); err != nil {
		writeError(w, apperror.ValidationFailed("image", "Image must be smaller than 5MB"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, apperror.ValidationFailed("image", "Please select an image file"))
		return
	}
	defer file.Close()

	updated, err := h.methods.ReplaceImage(r.Context(), id, service.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(*updated))
}
