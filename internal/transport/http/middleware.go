package httptransport

import (
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	id "mercato/pkg/domain"
	dErrors "mercato/pkg/domain-errors"
	"mercato/pkg/requestcontext"
)

// RequestContext stamps every request with an ID, the arrival time, the
// client IP, and parsed device metadata so services and audit events can
// pick them up from the context.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		ctx = requestcontext.WithClientIP(ctx, clientIP(r))
		ctx = requestcontext.WithDeviceInfo(ctx, parseDevice(r.UserAgent()))

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseDevice(raw string) requestcontext.Device {
	ua := useragent.New(raw)
	browser, version := ua.Browser()
	if version != "" {
		browser = browser + "/" + version
	}
	return requestcontext.Device{
		Browser: browser,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AdminAuth verifies the bearer token with the admin signing key and puts
// the admin's account ID in the context as the acting principal.
func (h *Handler) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, err := h.parseAdminToken(bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := requestcontext.WithActorID(r.Context(), actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) parseAdminToken(raw string) (id.AccountID, error) {
	if raw == "" {
		return id.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}

	var claims adminClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.Newf(dErrors.CodeUnauthorized, "unexpected signing method %v", t.Header["alg"])
		}
		return h.adminKey, nil
	})
	if err != nil || !token.Valid {
		return id.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid bearer token")
	}
	if claims.Role != "admin" {
		return id.AccountID{}, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}

	actorID, err := id.ParseAccountID(claims.Subject)
	if err != nil {
		return id.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid bearer token")
	}
	return actorID, nil
}
