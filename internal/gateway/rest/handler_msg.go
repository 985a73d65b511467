package rest

import (
	"net/http"
	"strconv"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/wire"
)

// Response headers of a retrieved message
const (
	HeaderMessageID = "X-Message-ID"
	HeaderHasBlob   = "X-Has-Blob"
)

func (h *Handler) handlePostMsg(w http.ResponseWriter, r *http.Request) {
	sub, err := wire.Decode(r.Body, h.svc.FileStorageEnabled())
	if err != nil {
		h.writeServiceError(w, r, "Decode message", err)
		return
	}

	id, err := h.svc.Insert(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, r, "Insert message", err)
		return
	}
	writeJSON(w, http.StatusOK, PostMessageResponse{UUID: id})
}

func (h *Handler) handleGetMsg(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery[MessageQuery](r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, "Get message", err)
		return
	}
	sel, err := q.Selector()
	if err != nil {
		h.writeServiceError(w, r, "Get message", err)
		return
	}

	stream, err := h.svc.Retrieve(r.Context(), sel)
	if err != nil {
		h.writeServiceError(w, r, "Get message", err)
		return
	}
	if stream == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer stream.Close()

	contentType := "text/plain; charset=utf-8"
	if stream.HasBlob() {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(stream.Len(), 10))
	w.Header().Set(HeaderMessageID, stream.ID().String())
	w.Header().Set(HeaderHasBlob, strconv.FormatBool(stream.HasBlob()))
	w.WriteHeader(http.StatusOK)

	if _, err := stream.WriteTo(w); err != nil {
		// Headers are gone; the client sees a short body.
		h.logger.Warn("Failed to stream message", "id", stream.ID().String(), "error", err, "request_id", requestID(r))
	}
}

func (h *Handler) handleDeleteMsg(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery[DeleteMessageQuery](r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, "Delete message", err)
		return
	}
	id, err := msgid.Parse(q.UUID)
	if err != nil {
		h.writeServiceError(w, r, "Delete message", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "Delete message", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
