package middle

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"pulsewatch/config"
	"pulsewatch/internals/security"

	"github.com/google/uuid"
)

func newTokenService(secret string) *security.TokenService {
	return security.NewTokenService(&config.AuthConfig{Secret: secret, ExpiryMin: 5})
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	tokenSvc := newTokenService("test-secret")
	userID := uuid.New()

	token, err := tokenSvc.GenerateAccessToken(security.RequestClaims{
		UserID: userID.String(),
		Email:  "owner@example.com",
	})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	var got *AuthenticatedUser
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	NewAuthMiddleware(tokenSvc).Handle(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil {
		t.Fatal("no authenticated user in the request context")
	}
	if got.UserID != userID || got.Email != "owner@example.com" {
		t.Fatalf("user = %+v, want the token's identity", got)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	tokenSvc := newTokenService("test-secret")

	foreignToken, err := newTokenService("other-secret").GenerateAccessToken(security.RequestClaims{
		UserID: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	// a syntactically valid token whose subject is not a uuid
	badSubject, err := tokenSvc.GenerateAccessToken(security.RequestClaims{UserID: "not-a-uuid"})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not a bearer header", header: "Basic abc123"},
		{name: "garbage token", header: "Bearer not.a.jwt"},
		{name: "wrong signing secret", header: "Bearer " + foreignToken},
		{name: "subject is not a uuid", header: "Bearer " + badSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			NewAuthMiddleware(tokenSvc).Handle(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if nextCalled {
				t.Fatal("handler reached despite rejected credentials")
			}
		})
	}
}
