package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"mercato/internal/auth/loginstate"
	identityservice "mercato/internal/identity/service"
	accountstore "mercato/internal/identity/store/account"
	vendormodels "mercato/internal/vendorapp/models"
	vendorservice "mercato/internal/vendorapp/service"
	applicationstore "mercato/internal/vendorapp/store/application"
	"mercato/internal/vendorapp/store/document"
	"mercato/internal/vendorapp/store/orders"
	id "mercato/pkg/domain"
	txcontext "mercato/pkg/platform/tx"
	"mercato/pkg/secrets"
	"mercato/pkg/testutil"
)

var (
	testAssertionKey = []byte("test-assertion-key")
	testAdminKey     = []byte("test-admin-key")
)

type HandlersSuite struct {
	suite.Suite
	accounts     *accountstore.InMemory
	applications *applicationstore.InMemory
	orders       *orders.InMemoryLister
	loginState   *loginstate.MemoryStore
	router       chi.Router
}

func (s *HandlersSuite) SetupTest() {
	s.accounts = accountstore.NewInMemory()
	s.applications = applicationstore.NewInMemory()
	s.orders = orders.NewInMemoryLister()
	s.loginState = loginstate.NewMemory(time.Minute)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	vendorSvc := vendorservice.New(s.applications, s.accounts, s.orders,
		vendorservice.WithLogger(log),
		vendorservice.WithTxRunner(txcontext.NewMemoryRunner(s.accounts, s.applications)))
	identitySvc := identityservice.New(s.accounts, secrets.NewHasher(),
		identityservice.WithLogger(log),
		identityservice.WithOrphanCleaner(vendorSvc))

	handler := NewHandler(identitySvc, vendorSvc, s.loginState,
		document.NewInMemoryStore(), testAssertionKey, testAdminKey, log)
	s.router = NewRouter(handler)
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) signAssertion(subjectID, emailAddr string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":         "google",
		"sub":         subjectID,
		"email":       emailAddr,
		"given_name":  "Jane",
		"family_name": "Doe",
		"exp":         time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString(testAssertionKey)
	s.Require().NoError(err)
	return signed
}

func (s *HandlersSuite) signAdminToken(role string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  id.NewAccountID().String(),
		"role": role,
		"exp":  time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString(testAdminKey)
	s.Require().NoError(err)
	return signed
}

func (s *HandlersSuite) issueState() string {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/start", nil))
	s.Require().Equal(http.StatusOK, rr.Code)
	body := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
	return (*body)["state"]
}

func (s *HandlersSuite) register(emailAddr, password string) accountResponse {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", registerRequest{
		Email: emailAddr, Password: password, FirstName: "Jane", LastName: "Doe",
	}))
	s.Require().Equal(http.StatusCreated, rr.Code)
	return testutil.UnmarshalResponse[reconciliationResponse](s.T(), rr).Account
}

func (s *HandlersSuite) getApplication(accountID string) vendormodels.VendorApplication {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
		"/vendor/accounts/"+accountID+"/application"))
	s.Require().Equal(http.StatusOK, rr.Code)
	return *testutil.UnmarshalResponse[vendormodels.VendorApplication](s.T(), rr)
}

func (s *HandlersSuite) TestHealthz() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	s.Equal(http.StatusOK, rr.Code)
}

func (s *HandlersSuite) TestFederatedLogin() {
	s.Run("callback with a valid state and assertion creates an account", func() {
		state := s.issueState()
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/callback",
			federatedCallbackRequest{State: state, Assertion: s.signAssertion("sub-1", "jane.doe@example.com")}))

		s.Require().Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[reconciliationResponse](s.T(), rr)
		s.Equal("created", resp.Outcome)
		s.Equal("jane_doe", resp.Account.Username)
	})

	s.Run("a state cannot be replayed", func() {
		state := s.issueState()
		req := federatedCallbackRequest{State: state, Assertion: s.signAssertion("sub-2", "replay@example.com")}

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/callback", req))
		s.Require().Equal(http.StatusOK, rr.Code)

		rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/callback", req))
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("a vendor-flavored login files a pending application", func() {
		state := s.issueState()
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/callback",
			federatedCallbackRequest{
				State:      state,
				Assertion:  s.signAssertion("sub-v1", "aspiring.vendor@example.com"),
				RoleIntent: "vendor",
			}))
		s.Require().Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[reconciliationResponse](s.T(), rr)
		s.Equal("customer", resp.Account.Role, "promotion waits for approval")

		get := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/vendor/accounts/"+resp.Account.ID+"/application"))
		s.Require().Equal(http.StatusOK, get.Code)
		app := testutil.UnmarshalResponse[vendormodels.VendorApplication](s.T(), get)
		s.True(app.IsPending())
	})

	s.Run("a repeated vendor-flavored login does not duplicate the application", func() {
		assertion := s.signAssertion("sub-v2", "returning.vendor@example.com")
		callback := func() reconciliationResponse {
			rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/callback",
				federatedCallbackRequest{State: s.issueState(), Assertion: assertion, RoleIntent: "vendor"}))
			s.Require().Equal(http.StatusOK, rr.Code)
			return *testutil.UnmarshalResponse[reconciliationResponse](s.T(), rr)
		}

		first := callback()
		firstApp := s.getApplication(first.Account.ID)

		second := callback()
		s.Equal("linked", second.Outcome)
		s.Equal(firstApp.ID, s.getApplication(second.Account.ID).ID, "same record on re-login")
	})

	s.Run("an approved vendor still logs in with vendor intent", func() {
		assertion := s.signAssertion("sub-v3", "approved.vendor@example.com")
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/callback",
			federatedCallbackRequest{State: s.issueState(), Assertion: assertion, RoleIntent: "vendor"}))
		s.Require().Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[reconciliationResponse](s.T(), rr)

		app := s.getApplication(resp.Account.ID)
		approve := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/applications/"+app.ID.String()+"/approve", nil)
		approve.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
		s.Require().Equal(http.StatusOK, testutil.DoRequest(s.router, approve).Code)

		rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/callback",
			federatedCallbackRequest{State: s.issueState(), Assertion: assertion, RoleIntent: "vendor"}))
		s.Require().Equal(http.StatusOK, rr.Code, "standing that blocks submission never blocks login")
		again := testutil.UnmarshalResponse[reconciliationResponse](s.T(), rr)
		s.Equal("vendor", again.Account.Role)
	})

	s.Run("a tampered assertion is refused", func() {
		state := s.issueState()
		forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": "google", "sub": "sub-3", "email": "forged@example.com",
		})
		signed, err := forged.SignedString([]byte("wrong-key"))
		s.Require().NoError(err)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/federated/callback",
			federatedCallbackRequest{State: state, Assertion: signed}))
		s.Equal(http.StatusUnauthorized, rr.Code)
	})
}

func (s *HandlersSuite) TestLocalRegisterAndLogin() {
	s.Run("register then login round-trips", func() {
		account := s.register("local@example.com", "password123")
		s.Equal("local", account.Username)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
			loginRequest{Email: "local@example.com", Password: "password123"}))
		s.Require().Equal(http.StatusOK, rr.Code)
	})

	s.Run("duplicate registration conflicts", func() {
		s.register("dup@example.com", "password123")
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
			registerRequest{Email: "dup@example.com", Password: "password456"}))
		s.Equal(http.StatusConflict, rr.Code)
	})

	s.Run("wrong password is unauthorized", func() {
		s.register("wrong@example.com", "password123")
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
			loginRequest{Email: "wrong@example.com", Password: "nope-nope-nope"}))
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("short password is a bad request", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
			registerRequest{Email: "short@example.com", Password: "tiny"}))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("malformed body is a bad request", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
			map[string]any{"email": "x@example.com", "password": "password123", "surprise": true}))
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *HandlersSuite) submitApplication(accountID string) vendormodels.VendorApplication {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/vendor/applications",
		submitApplicationRequest{
			AccountID: accountID,
			StoreName: "Drum Shop",
			Documents: []documentUpload{{Filename: "permit.pdf", Content: []byte("binary")}},
		}))
	s.Require().Equal(http.StatusCreated, rr.Code)
	result := testutil.UnmarshalResponse[vendormodels.LifecycleResult](s.T(), rr)
	return *result.Application
}

func (s *HandlersSuite) TestVendorApplicationFlow() {
	account := s.register("vendor@example.com", "password123")
	app := s.submitApplication(account.ID)
	s.Len(app.Documents, 1, "the uploaded artifact produced a reference")

	s.Run("the application is retrievable by account", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/vendor/accounts/"+account.ID+"/application"))
		s.Require().Equal(http.StatusOK, rr.Code)
	})

	s.Run("admin routes require a bearer token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/applications/"+app.ID.String()+"/approve", nil))
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("a non-admin token is forbidden", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/applications/"+app.ID.String()+"/approve", nil)
		req.Header.Set("Authorization", "Bearer "+s.signAdminToken("customer"))
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("approval promotes the account", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/applications/"+app.ID.String()+"/approve", nil)
		req.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
		rr := testutil.DoRequest(s.router, req)

		s.Require().Equal(http.StatusOK, rr.Code)
		result := testutil.UnmarshalResponse[vendormodels.LifecycleResult](s.T(), rr)
		s.Equal(vendormodels.StatusApproved, result.Application.Status)
		s.Equal("vendor", string(result.AccountRole))
	})

	s.Run("approving again maps the illegal transition to 409", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/applications/"+app.ID.String()+"/approve", nil)
		req.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusConflict, rr.Code)
	})
}

func (s *HandlersSuite) TestSuspensionAcknowledgment() {
	account := s.register("suspend@example.com", "password123")
	app := s.submitApplication(account.ID)

	approve := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/admin/applications/"+app.ID.String()+"/approve", nil)
	approve.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
	s.Require().Equal(http.StatusOK, testutil.DoRequest(s.router, approve).Code)

	accountID, err := id.ParseAccountID(account.ID)
	s.Require().NoError(err)
	inFlight := []vendormodels.OrderSummary{
		{ID: id.OrderID(id.NewApplicationID()), Status: "in_preparation", PlacedAt: time.Now()},
	}
	s.orders.Set(accountID, inFlight)

	s.Run("suspension without acknowledgment is declined with 422", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/applications/"+app.ID.String()+"/suspend", suspendRequest{})
		req.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusUnprocessableEntity, rr.Code)
	})

	s.Run("preview exposes the orders to acknowledge", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet,
			"/admin/applications/"+app.ID.String()+"/suspension-preview")
		req.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
		rr := testutil.DoRequest(s.router, req)

		s.Require().Equal(http.StatusOK, rr.Code)
		result := testutil.UnmarshalResponse[vendormodels.LifecycleResult](s.T(), rr)
		s.Require().Len(result.InFlightOrders, 1)
	})

	s.Run("acknowledged suspension succeeds", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/applications/"+app.ID.String()+"/suspend",
			suspendRequest{AcknowledgedOrders: []string{inFlight[0].ID.String()}})
		req.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
		rr := testutil.DoRequest(s.router, req)

		s.Require().Equal(http.StatusOK, rr.Code)
		result := testutil.UnmarshalResponse[vendormodels.LifecycleResult](s.T(), rr)
		s.Equal(vendormodels.StatusSuspended, result.Application.Status)
	})
}

func (s *HandlersSuite) TestAccountDeletionAndOrphanSweep() {
	account := s.register("leaver@example.com", "password123")
	app := s.submitApplication(account.ID)

	del := testutil.NewRequest(s.T(), http.MethodDelete, "/admin/accounts/"+account.ID)
	del.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
	s.Require().Equal(http.StatusNoContent, testutil.DoRequest(s.router, del).Code)

	sweep := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/maintenance/orphan-sweep", nil)
	sweep.Header.Set("Authorization", "Bearer "+s.signAdminToken("admin"))
	rr := testutil.DoRequest(s.router, sweep)
	s.Require().Equal(http.StatusOK, rr.Code)

	result := testutil.UnmarshalResponse[map[string][]string](s.T(), rr)
	s.Equal([]string{app.ID.String()}, (*result)["removed"])
}
