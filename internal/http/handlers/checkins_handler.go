package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/havenboard/checkin/internal/domain"
	"github.com/havenboard/checkin/internal/http/response"
	"github.com/havenboard/checkin/internal/service"
)

const maxAnonymousIDLen = 100

type CheckInsHandler struct{ Service service.CheckInService }

func NewCheckInsHandler(svc service.CheckInService) *CheckInsHandler {
	return &CheckInsHandler{Service: svc}
}

func (h *CheckInsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/anonymous/{anonymousId}", h.getByAnonymousID)
	r.Patch("/{id}", h.patch)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/checkout", h.checkout)

	return r
}

func (h *CheckInsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.CheckInReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && err != io.EOF {
		response.BadRequest(w, "invalid json")
		return
	}
	// limit counts characters, not bytes
	if utf8.RuneCountInString(in.AnonymousID) > maxAnonymousIDLen {
		response.BadRequest(w, "anonymousId must be 1-100 characters")
		return
	}

	c, err := h.Service.Insert(r.Context(), &in)
	if err != nil {
		response.BadRequest(w, "Failed to create check-in")
		return
	}

	response.JSON(w, http.StatusCreated, c)
}

func (h *CheckInsHandler) list(w http.ResponseWriter, r *http.Request) {
	var (
		cs  []domain.CheckIn
		err error
	)

	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "active":
		cs, err = h.Service.GetActiveCheckIns(r.Context())
	case "all":
		cs, err = h.Service.GetAllCheckIns(r.Context())
	default:
		response.BadRequest(w, "scope must be 'active' or 'all'")
		return
	}

	if err != nil {
		response.BadRequest(w, "Failed to fetch check-ins")
		return
	}

	response.JSON(w, http.StatusOK, cs)
}

func (h *CheckInsHandler) getByAnonymousID(w http.ResponseWriter, r *http.Request) {
	anonymousID := chi.URLParam(r, "anonymousId")
	if anonymousID == "" || utf8.RuneCountInString(anonymousID) > maxAnonymousIDLen {
		response.BadRequest(w, "anonymousId must be 1-100 characters")
		return
	}

	switch scope := r.URL.Query().Get("scope"); scope {
	case "all":
		cs, err := h.Service.GetAllCheckInsByAnonymousID(r.Context(), anonymousID)
		if err != nil {
			response.BadRequest(w, "Failed to fetch check-ins")
			return
		}
		response.JSON(w, http.StatusOK, cs)
	case "active":
		h.writeSingle(w, r, anonymousID, true)
	case "", "latest":
		h.writeSingle(w, r, anonymousID, false)
	default:
		response.BadRequest(w, "scope must be 'latest', 'active' or 'all'")
	}
}

func (h *CheckInsHandler) writeSingle(w http.ResponseWriter, r *http.Request, anonymousID string, activeOnly bool) {
	var (
		c   *domain.CheckIn
		err error
	)
	if activeOnly {
		c, err = h.Service.GetActiveCheckInByAnonymousID(r.Context(), anonymousID)
	} else {
		c, err = h.Service.GetByAnonymousID(r.Context(), anonymousID)
	}
	if err != nil {
		response.BadRequest(w, "Failed to fetch check-in")
		return
	}
	if c == nil {
		response.NotFound(w, "Check-in not found")
		return
	}
	response.JSON(w, http.StatusOK, c)
}

type updateReq struct {
	Status       *string    `json:"status"`
	CheckOutTime *time.Time `json:"checkOutTime"`
}

func (h *CheckInsHandler) patch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in updateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	var patch domain.CheckInPatch
	if in.Status != nil {
		// closed enumeration; arbitrary strings are rejected here
		st, ok := domain.ParseStatus(*in.Status)
		if !ok {
			response.BadRequest(w, "status must be 'active' or 'checked-out'")
			return
		}
		patch.Status = &st
	}
	patch.CheckOutTime = in.CheckOutTime

	c, err := h.Service.Update(r.Context(), id, patch)
	if err != nil {
		response.BadRequest(w, "Failed to update check-in")
		return
	}

	response.JSON(w, http.StatusOK, c)
}

func (h *CheckInsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Service.Delete(r.Context(), id); err != nil {
		response.BadRequest(w, "Failed to delete check-in")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Check-in deleted successfully"})
}

func (h *CheckInsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in domain.CheckOutReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && err != io.EOF {
		response.BadRequest(w, "invalid json")
		return
	}

	c, err := h.Service.CheckOut(r.Context(), id, in.AnonymousID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "Check-in not found")
	case errors.Is(err, domain.ErrUnauthorized):
		response.Forbidden(w, "Unauthorized: Anonymous ID does not match")
	case err != nil:
		response.BadRequest(w, "Failed to check out")
	default:
		response.JSON(w, http.StatusOK, c)
	}
}
