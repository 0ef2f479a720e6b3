package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercato/internal/vendorapp/models"
	id "mercato/pkg/domain"
)

// documentUpload carries an inline artifact; Content arrives base64-encoded
// per encoding/json's []byte convention.
type documentUpload struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

type submitApplicationRequest struct {
	AccountID string           `json:"account_id"`
	StoreName string           `json:"store_name,omitempty"`
	Documents []documentUpload `json:"documents"`
}

func (h *Handler) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req submitApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	accountID, err := id.ParseAccountID(req.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}

	docs, err := h.saveDocuments(r, accountID, req.Documents)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.vendor.Submit(r.Context(), accountID, req.StoreName, docs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) saveDocuments(r *http.Request, accountID id.AccountID, uploads []documentUpload) ([]models.DocumentRef, error) {
	docs := make([]models.DocumentRef, 0, len(uploads))
	for _, u := range uploads {
		ref, err := h.documents.Save(r.Context(), accountID, u.Filename, u.Content)
		if err != nil {
			return nil, err
		}
		docs = append(docs, ref)
	}
	return docs, nil
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, err)
		return
	}

	app, err := h.vendor.GetForAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, func(appID id.ApplicationID) (models.LifecycleResult, error) {
		return h.vendor.Approve(r.Context(), appID)
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.runTransition(w, r, func(appID id.ApplicationID) (models.LifecycleResult, error) {
		return h.vendor.Reject(r.Context(), appID, req.Reason)
	})
}

func (h *Handler) handleSuspensionPreview(w http.ResponseWriter, r *http.Request) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.vendor.SuspensionPreview(r.Context(), appID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type suspendRequest struct {
	AcknowledgedOrders []string `json:"acknowledged_orders"`
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	var req suspendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	acknowledged := make([]id.OrderID, 0, len(req.AcknowledgedOrders))
	for _, raw := range req.AcknowledgedOrders {
		orderID, err := id.ParseOrderID(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		acknowledged = append(acknowledged, orderID)
	}

	h.runTransition(w, r, func(appID id.ApplicationID) (models.LifecycleResult, error) {
		return h.vendor.Suspend(r.Context(), appID, acknowledged)
	})
}

type reapplyRequest struct {
	Documents []string `json:"documents"`
}

func (h *Handler) handleReapply(w http.ResponseWriter, r *http.Request) {
	var req reapplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.runTransition(w, r, func(appID id.ApplicationID) (models.LifecycleResult, error) {
		return h.vendor.Reapply(r.Context(), appID, toDocumentRefs(req.Documents))
	})
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	var req reapplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.runTransition(w, r, func(appID id.ApplicationID) (models.LifecycleResult, error) {
		return h.vendor.Resubmit(r.Context(), appID, toDocumentRefs(req.Documents))
	})
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.identity.DeleteAccount(r.Context(), accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOrphanSweep(w http.ResponseWriter, r *http.Request) {
	removed, err := h.vendor.CleanupOrphans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	ids := make([]string, 0, len(removed))
	for _, appID := range removed {
		ids = append(ids, appID.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": ids})
}

// runTransition factors the shared parse-then-transition shape of the admin
// lifecycle endpoints.
func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, run func(id.ApplicationID) (models.LifecycleResult, error)) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := run(appID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func toDocumentRefs(raw []string) []models.DocumentRef {
	docs := make([]models.DocumentRef, 0, len(raw))
	for _, d := range raw {
		docs = append(docs, models.DocumentRef(d))
	}
	return docs
}
