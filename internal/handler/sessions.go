package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"variant-sync/internal/model"
	"variant-sync/internal/pubsub"
	"variant-sync/internal/session"
	"variant-sync/internal/variant"
)

// optionsRequest is the body of POST /sessions/{id}/options.
type optionsRequest struct {
	SectionID      string     `json:"section_id,omitempty"`
	Selection      []string   `json:"selection,omitempty"`
	OptionValueIDs []string   `json:"option_value_ids,omitempty"`
	VariantID      variant.ID `json:"variant_id,omitempty"`
	ProductURL     string     `json:"product_url,omitempty"`
	TargetID       string     `json:"target_id,omitempty"`
}

func (r optionsRequest) change() pubsub.OptionChange {
	return pubsub.OptionChange{
		SectionID:      r.SectionID,
		Selection:      variant.NewSelection(r.Selection...),
		OptionValueIDs: r.OptionValueIDs,
		VariantID:      r.VariantID,
		ProductURL:     r.ProductURL,
		TargetID:       r.TargetID,
	}
}

// cartRequest is the body of POST /sessions/{id}/cart.
type cartRequest struct {
	Source    string     `json:"source,omitempty"`
	VariantID variant.ID `json:"variant_id,omitempty"`
}

type starResponse struct {
	Index int    `json:"index"`
	Color string `json:"color"`
}

// handleOpenSession loads a product page into a new session.
// POST /sessions
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req session.OpenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	sc, err := ParseStorefrontContext(r.Header.Get(StorefrontContextHeader))
	if err != nil {
		h.writeError(w, model.NewValidationError(StorefrontContextHeader, err.Error()))
		return
	}
	sc.Apply(&req)

	h.logger.InfoContext(ctx, "opening session",
		slog.String("product_url", req.ProductURL),
		slog.String("section_id", req.SectionID),
	)

	sess, err := h.sessions.Open(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, sess.View())
}

// handleGetSession returns a session's current state.
// GET /sessions/{id}
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sess.View())
}

// handleSessionHTML renders the live document.
// GET /sessions/{id}/html
func (h *Handler) handleSessionHTML(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sess.HTML()))
}

// handleSelectOptions applies an option change.
// POST /sessions/{id}/options
func (h *Handler) handleSelectOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req optionsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if len(req.Selection) == 0 && req.VariantID == "" {
		h.writeError(w, model.NewValidationError("selection", "selection or variant_id required"))
		return
	}

	h.logger.InfoContext(ctx, "selecting options",
		slog.String("session_id", sess.ID),
		slog.Any("selection", req.Selection),
		slog.String("variant_id", req.VariantID.String()),
	)

	if err := sess.SelectOptions(ctx, req.change()); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sess.View())
}

// handleCartUpdated tells the session the cart changed.
// POST /sessions/{id}/cart
func (h *Handler) handleCartUpdated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req cartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := sess.CartUpdated(ctx, pubsub.CartUpdated{Source: req.Source, VariantID: req.VariantID}); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sess.View())
}

// handleToggleStar flips one review star.
// POST /sessions/{id}/stars/{index}
func (h *Handler) handleToggleStar(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.writeError(w, model.NewValidationError("index", "must be an integer"))
		return
	}

	color, err := sess.ToggleStar(index)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, starResponse{Index: index, Color: color})
}

// handleCloseSession disposes of a session.
// DELETE /sessions/{id}
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.Close(id); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "session closed", slog.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}
