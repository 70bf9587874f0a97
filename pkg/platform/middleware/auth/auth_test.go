package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"haven/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (*Claims, error) { return s.claims, s.err }

type AuthMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AuthMiddlewareSuite) TestRequireIdentity() {
	s.Run("missing header is rejected", func() {
		h := RequireIdentity(stubValidator{}, s.logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			s.Fail("next must not run")
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/events", nil))
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("invalid token is rejected", func() {
		h := RequireIdentity(stubValidator{err: errors.New("bad")}, s.logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/audit/events", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("valid token populates actor", func() {
		var actor requestcontext.Actor
		claims := &Claims{UserID: "u-1", Email: "x@example.org", Role: "compliance_officer", SessionID: "s-1"}
		h := RequireIdentity(stubValidator{claims: claims}, s.logger)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			actor, _ = requestcontext.ActorFrom(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/audit/events", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal(http.StatusOK, rr.Code)
		s.Equal(requestcontext.Actor{UserID: "u-1", Email: "x@example.org", Role: "compliance_officer", SessionID: "s-1"}, actor)
	})
}

func (s *AuthMiddlewareSuite) TestRequireRole() {
	h := RequireRole(s.logger, "admin", "compliance_officer")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.Run("permitted role passes", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithActor(req.Context(), requestcontext.Actor{UserID: "u", Role: "admin"}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal(http.StatusNoContent, rr.Code)
	})

	s.Run("other role is forbidden", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithActor(req.Context(), requestcontext.Actor{UserID: "u", Role: "member"}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		s.Equal(http.StatusForbidden, rr.Code)
		assert.Contains(s.T(), rr.Body.String(), "forbidden")
	})
}
