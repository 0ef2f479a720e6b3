package httptransport

import (
	"errors"
	"net/http"

	"mercato/internal/identity/models"
	dErrors "mercato/pkg/domain-errors"
	"mercato/pkg/platform/sentinel"
)

type accountResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Provider  string `json:"provider,omitempty"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:        a.ID.String(),
		Email:     a.Email,
		Username:  a.Username,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Provider:  a.Provider,
		Role:      string(a.Role),
		Status:    string(a.Status),
	}
}

type reconciliationResponse struct {
	Account accountResponse `json:"account"`
	Outcome string          `json:"outcome"`
}

func (h *Handler) handleFederatedStart(w http.ResponseWriter, r *http.Request) {
	state, err := h.loginState.Issue(r.Context())
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not issue login state"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

type federatedCallbackRequest struct {
	State     string `json:"state"`
	Assertion string `json:"assertion"`
	// RoleIntent hints whether the caller is heading into vendor
	// onboarding; only "vendor" is meaningful, anything else is customer.
	RoleIntent string `json:"role_intent,omitempty"`
}

func (h *Handler) handleFederatedCallback(w http.ResponseWriter, r *http.Request) {
	var req federatedCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.loginState.Redeem(r.Context(), req.State); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			writeError(w, dErrors.New(dErrors.CodeUnauthorized, "login state is invalid or already used"))
			return
		}
		writeError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not redeem login state"))
		return
	}

	assertion, err := parseAssertion(req.Assertion, h.assertionKey)
	if err != nil {
		writeError(w, err)
		return
	}

	roleIntent := models.RoleCustomer
	if req.RoleIntent == string(models.RoleVendor) {
		roleIntent = models.RoleVendor
	}

	result, err := h.identity.Reconcile(r.Context(), assertion, roleIntent)
	if err != nil {
		writeError(w, err)
		return
	}

	// A vendor-flavored login files (or re-acknowledges) the application
	// right away; the caller attaches store details later. Standing that
	// blocks submission, like an already approved or rejected application,
	// is not a login failure.
	if roleIntent == models.RoleVendor {
		if _, err := h.vendor.Submit(r.Context(), result.Account.ID, "", nil); err != nil &&
			!dErrors.HasCode(err, dErrors.CodePolicyRejection) {
			h.logger.WarnContext(r.Context(), "vendor application submission on login failed",
				"account_id", result.Account.ID.String(), "error", err)
		}
	}

	writeJSON(w, http.StatusOK, reconciliationResponse{
		Account: toAccountResponse(result.Account),
		Outcome: string(result.Outcome),
	})
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.identity.RegisterLocal(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reconciliationResponse{
		Account: toAccountResponse(result.Account),
		Outcome: string(result.Outcome),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.identity.AuthenticateLocal(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}
