package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const defaultTokenTTL = 24 * time.Hour

// TokenService issues HS256 access tokens for providers and auditors.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewTokenService(signingKey []byte, issuer string) *TokenService {
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		ttl:        defaultTokenTTL,
	}
}

// Issue signs a token for the given subject and roles.
func (s *TokenService) Issue(subject string, roles []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Roles: roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// TokenHandler exposes token issuance over HTTP. Callers must present the
// node's shared secret; this is a closed operator-facing surface, not a
// public identity provider.
type TokenHandler struct {
	svc    *TokenService
	secret string
}

func NewTokenHandler(svc *TokenService, secret string) *TokenHandler {
	return &TokenHandler{svc: svc, secret: secret}
}

func (h *TokenHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/auth/token", h.IssueToken)
}

type tokenRequest struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
	Secret  string   `json:"secret"`
}

func (h *TokenHandler) IssueToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.secret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret")
	}
	if req.Subject == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subject is required")
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{"provider"}
	}

	token, err := h.svc.Issue(req.Subject, req.Roles)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(defaultTokenTTL.Seconds()),
	})
}
