package middleware

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"dsar/internal/platform/logger"
	"dsar/pkg/testutil"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	log := logger.Discard()
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetOperator(r.Context())))
	})

	testutil.Given(t, "a request without a bearer token", func(t *testing.T) {
		h := RequestID(RequireAuth(stubValidator{}, log)(echo))
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/v1/vendors"))

		testutil.Then(t, "it is rejected", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			testutil.AssertErrorCode(t, rr, "unauthorized")
		})
	})

	testutil.Given(t, "an invalid token", func(t *testing.T) {
		h := RequireAuth(stubValidator{err: errors.New("bad signature")}, log)(echo)
		req := testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, "/"), "nope")
		rr := testutil.DoRequest(h, req)

		testutil.Then(t, "it is rejected", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		})
	})

	testutil.Given(t, "a valid token", func(t *testing.T) {
		h := RequireAuth(stubValidator{claims: &JWTClaims{Operator: "dpo"}}, log)(echo)
		req := testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, "/"), "good")
		rr := testutil.DoRequest(h, req)

		testutil.Then(t, "the operator reaches the handler", func(t *testing.T) {
			testutil.AssertStatus(t, rr, http.StatusOK)
			assert.Equal(t, "dpo", rr.Body.String())
		})
	})
}

func TestRequireScope(t *testing.T) {
	log := logger.Discard()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	h := RequireAuth(stubValidator{claims: &JWTClaims{Operator: "dpo", Scopes: []string{"dsar:read"}}}, log)(
		RequireScope("dsar:run", log)(ok))
	req := testutil.WithBearer(testutil.NewRequest(t, http.MethodPost, "/v1/runs"), "good")
	rr := testutil.DoRequest(h, req)

	testutil.AssertStatus(t, rr, http.StatusForbidden)
	testutil.AssertErrorCode(t, rr, "forbidden")
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetRequestID(r.Context())))
	}))

	req := testutil.NewRequest(t, http.MethodGet, "/")
	req.Header.Set(RequestIDHeader, "req-123")
	rr := testutil.DoRequest(h, req)
	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", rr.Body.String())

	rr = testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/"))
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/"))
	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
}
