package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return i
}

func TestIssueAndParse(t *testing.T) {
	i := newTestIssuer(t)
	u := model.User{ID: "u1", Email: "ann@example.com", Role: model.RoleAdmin}

	token, exp, err := i.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expected expiry in the future, got %v", exp)
	}

	id, err := i.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.ID != "u1" || id.Email != "ann@example.com" || id.Role != model.RoleAdmin {
		t.Errorf("unexpected identity %+v", id)
	}
}

func TestParseRejects(t *testing.T) {
	i := newTestIssuer(t)
	u := model.User{ID: "u1", Email: "ann@example.com", Role: model.RoleTrainee}
	good, _, _ := i.Issue(u)

	other, _ := NewIssuer("another-secret-of-enough-length", time.Hour)
	foreign, _, _ := other.Issue(u)

	expired := newTestIssuer(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, _ := expired.Issue(u)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: issuerName,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"expired", old},
		{"alg none", unsigned},
		{"tampered", good + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := i.Parse(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewIssuerShortSecret(t *testing.T) {
	if _, err := NewIssuer("short", time.Hour); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		role model.Role
		cap  Capability
		want bool
	}{
		{model.RoleTrainee, CapSubmitAttempt, true},
		{model.RoleTrainee, CapEvaluateAttempt, false},
		{model.RoleTrainee, CapViewAllAttempts, false},
		{model.RoleTrainee, CapWriteQuestionSet, false},
		{model.RoleTrainee, CapReadQuestionSet, true},
		{model.RoleAdmin, CapSubmitAttempt, false},
		{model.RoleAdmin, CapEvaluateAttempt, true},
		{model.RoleAdmin, CapManageUsers, false},
		{model.RoleAdmin, CapDeleteAttempt, false},
		{model.RoleSuperadmin, CapManageUsers, true},
		{model.RoleSuperadmin, CapEvaluateAttempt, true},
		{model.RoleSuperadmin, CapDeleteAttempt, true},
		{model.Role("ghost"), CapSelf, false},
	}
	for _, tt := range tests {
		if got := Allowed(tt.role, tt.cap); got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}

	err := Check(model.Identity{ID: "u1", Role: model.RoleTrainee}, CapEvaluateAttempt)
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	i := newTestIssuer(t)
	var gotKind apperr.Kind
	m := NewMiddleware(i, func(w http.ResponseWriter, r *http.Request, err error) {
		gotKind = apperr.KindOf(err)
		switch gotKind {
		case apperr.KindAuthentication:
			w.WriteHeader(http.StatusUnauthorized)
		case apperr.KindAuthorization:
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	var seen model.Identity
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = model.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Authenticate(m.Require(CapEvaluateAttempt)(ok))

	trainee, _, _ := i.Issue(model.User{ID: "t1", Role: model.RoleTrainee})
	admin, _, _ := i.Issue(model.User{ID: "a1", Role: model.RoleAdmin})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"trainee", "Bearer " + trainee, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/attempts/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if seen.ID != "a1" {
		t.Errorf("expected admin identity in context, got %+v", seen)
	}
}
