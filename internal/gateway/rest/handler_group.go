package rest

import (
	"net/http"
)

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery[GroupQuery](r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, "Get group", err)
		return
	}
	groups := h.svc.Groups(q.Priority, q.IncludeMsgData)
	if q.Priority == nil {
		writeJSON(w, http.StatusOK, groups)
		return
	}
	// A single priority yields one group or null.
	if len(groups) == 0 {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, groups[0])
}

func (h *Handler) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery[DeleteGroupQuery](r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, "Delete group", err)
		return
	}
	n, err := h.svc.DeleteGroup(r.Context(), *q.Priority)
	if err != nil {
		h.writeServiceError(w, r, "Delete group", err)
		return
	}
	h.logger.Info("Group deleted", "priority", *q.Priority, "deleted", n)
	writeJSON(w, http.StatusOK, GroupDeleteResponse{Deleted: n})
}

func (h *Handler) handleGetGroupDefaults(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery[GroupQuery](r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, "Get group defaults", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.GroupDefaults(q.Priority))
}

func (h *Handler) handlePostGroupDefaults(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[GroupDefaultRequest](r)
	if err != nil {
		h.writeServiceError(w, r, "Set group default", err)
		return
	}
	pruned, err := h.svc.SetGroupDefault(r.Context(), *req.Priority, *req.MaxByteSize)
	if err != nil {
		h.writeServiceError(w, r, "Set group default", err)
		return
	}
	h.logger.Info("Group default set", "priority", *req.Priority, "max_byte_size", *req.MaxByteSize, "pruned", pruned)
	writeJSON(w, http.StatusOK, PruneResponse{Pruned: pruned})
}

func (h *Handler) handleDeleteGroupDefaults(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery[DeleteGroupQuery](r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, "Delete group default", err)
		return
	}
	existed, err := h.svc.DeleteGroupDefault(r.Context(), *q.Priority)
	if err != nil {
		h.writeServiceError(w, r, "Delete group default", err)
		return
	}
	writeJSON(w, http.StatusOK, DeletedResponse{Deleted: existed})
}
