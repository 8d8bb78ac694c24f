package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := NewTokenService(testSigningKey, "medledger")

	tokenStr, err := svc.Issue("provider-1", []string{"provider"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return testSigningKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		t.Fatalf("issued token does not verify: %v", err)
	}

	if claims.Subject != "provider-1" {
		t.Errorf("expected subject provider-1, got %s", claims.Subject)
	}
	if claims.Issuer != "medledger" {
		t.Errorf("expected issuer medledger, got %s", claims.Issuer)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "provider" {
		t.Errorf("expected roles [provider], got %v", claims.Roles)
	}
}

func TestTokenHandler_IssueToken(t *testing.T) {
	svc := NewTokenService(testSigningKey, "medledger")
	h := NewTokenHandler(svc, "node-secret")

	body := `{"subject":"dr-house","roles":["provider"],"secret":"node-secret"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.IssueToken(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "access_token") {
		t.Error("expected access_token in response")
	}
}

func TestTokenHandler_WrongSecret(t *testing.T) {
	svc := NewTokenService(testSigningKey, "medledger")
	h := NewTokenHandler(svc, "node-secret")

	body := `{"subject":"dr-house","secret":"wrong"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.IssueToken(c)
	if err == nil {
		t.Fatal("expected error for wrong secret")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestTokenHandler_MissingSubject(t *testing.T) {
	svc := NewTokenService(testSigningKey, "medledger")
	h := NewTokenHandler(svc, "node-secret")

	body := `{"secret":"node-secret"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.IssueToken(c)
	if err == nil {
		t.Fatal("expected error for missing subject")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}
