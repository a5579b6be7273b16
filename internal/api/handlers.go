package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkpage/internal/checksum"
	"github.com/starford/linkpage/internal/linkservice"
	"github.com/starford/linkpage/internal/twofactor"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc       *linkservice.Service
	twoFactor *twofactor.Verifier
}

// NewHandler creates a new Handler. twoFactor may be nil when two-factor
// verification is disabled.
func NewHandler(svc *linkservice.Service, twoFactor *twofactor.Verifier) *Handler {
	return &Handler{svc: svc, twoFactor: twoFactor}
}

// decode reads a JSON body into v and runs its validation rules.
func decode(w http.ResponseWriter, r *http.Request, v interface{ Validate() error }) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

func quoteETag(sum string) string {
	return `"` + sum + `"`
}

// ListLinks handles GET /api/links.
//
//	@Summary		List the caller's links in order
//	@Tags			links
//	@Produce		json
//	@Param			If-None-Match	header		string	false	"ETag of a previous listing"
//	@Success		200				{object}	LinkListResponse
//	@Success		304				"Listing unchanged"
//	@Security		BearerAuth
//	@Router			/links [get]
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, sum, err := h.svc.ListChecksum(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, "list links", err)
		return
	}
	if links == nil {
		links = []Link{}
	}
	etag := quoteETag(sum)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, LinkListResponse{Links: links})
}

// GetLink handles GET /api/links/{id}.
//
//	@Summary		Get a single link
//	@Tags			links
//	@Produce		json
//	@Param			id	path		string	true	"Link id"
//	@Success		200	{object}	Link
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/{id} [get]
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Get(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get link", err)
		return
	}
	w.Header().Set("ETag", quoteETag(checksum.Sum(l.Attributes)))
	writeJSON(w, http.StatusOK, l)
}

// CreateLink handles POST /api/links.
//
//	@Summary		Append a new link
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LinkRequest	true	"Link attributes"
//	@Success		201		{object}	Link
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := h.svc.Create(r.Context(), ActorFromContext(r.Context()), req.Attributes)
	if err != nil {
		writeError(w, r, "create link", err)
		return
	}
	w.Header().Set("ETag", quoteETag(checksum.Sum(l.Attributes)))
	writeJSON(w, http.StatusCreated, l)
}

// UpdateLink handles PUT /api/links/{id}.
//
//	@Summary		Replace a link's attributes
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string		true	"Link id"
//	@Param			If-Match	header		string		false	"ETag of the attributes being replaced"
//	@Param			body		body		LinkRequest	true	"New attributes"
//	@Success		200			{object}	Link
//	@Failure		400			{object}	errResponse
//	@Failure		403			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/{id} [put]
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decode(w, r, &req) {
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	l, err := h.svc.UpdateAttributes(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "id"), req.Attributes, ifMatch)
	if err != nil {
		writeError(w, r, "update link", err)
		return
	}
	w.Header().Set("ETag", quoteETag(checksum.Sum(l.Attributes)))
	writeJSON(w, http.StatusOK, l)
}

// DeleteLink handles DELETE /api/links/{id}.
//
//	@Summary		Delete a link and close the gap in the ordering
//	@Tags			links
//	@Param			id	path	string	true	"Link id"
//	@Success		204	"Link deleted"
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/{id} [delete]
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SortLinks handles POST /api/links/sort.
//
//	@Summary		Reorder all of the caller's links
//	@Tags			links
//	@Accept			json
//	@Param			body	body	SortRequest	true	"Every link id in the new order"
//	@Success		204		"Links reordered"
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/sort [post]
func (h *Handler) SortLinks(w http.ResponseWriter, r *http.Request) {
	var req SortRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.svc.Reorder(r.Context(), ActorFromContext(r.Context()), req.IDs()); err != nil {
		writeError(w, r, "sort links", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartSession handles POST /api/session.
//
//	@Summary		Open a session pending two-factor verification
//	@Tags			session
//	@Produce		json
//	@Success		201	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/session [post]
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if !actor.Authenticated() {
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}
	id, err := h.twoFactor.Issue(r.Context(), actor.ID)
	if err != nil {
		slog.Error("issue two-factor code failed", slog.String("actor", actor.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{SessionID: id})
}

// VerifySession handles POST /api/session/verify.
//
//	@Summary		Submit a two-factor code
//	@Tags			session
//	@Accept			json
//	@Param			body	body	VerifyRequest	true	"Session and code"
//	@Success		204		"Session elevated"
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/verify [post]
func (h *Handler) VerifySession(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.twoFactor.Verify(r.Context(), req.SessionID, req.Code)
	if err != nil {
		slog.Error("verify two-factor code failed", slog.String("session_id", req.SessionID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if res != twofactor.Success {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("invalid code"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
