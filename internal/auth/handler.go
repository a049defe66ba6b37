package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sing3demons/jwks-server/internal/jwks"
	"github.com/sing3demons/jwks-server/pkg/kp"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/logger"
)

type TokenIssuer interface {
	IssueToken(ctx context.Context, wantExpired bool, subject string) (jwks.IssuedToken, error)
}

type AuthHandler struct {
	validate *validator.Validate
	issuer   TokenIssuer
}

func NewAuthHandler(issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{
		validate: validator.New(),
		issuer:   issuer,
	}
}

// IssueTokenHandler serves POST /auth.
func (h *AuthHandler) IssueTokenHandler(ctx *kp.Ctx) {
	log := ctx.L("auth")

	wantExpired, err := ParseExpiredFlag(ctx.QueryValue("expired"))
	if err != nil {
		ctx.JSONError(http.StatusBadRequest, map[string]string{"error": "invalid_request"}, err)
		return
	}

	var basic *BasicCredentials
	if username, password, ok := ctx.BasicAuth(); ok {
		basic = &BasicCredentials{Username: username, Password: password}
	}

	var body *AuthRequest
	var req AuthRequest
	if err := ctx.Bind(&req); err == nil {
		if err := h.validate.Struct(&req); err != nil {
			ctx.JSONError(http.StatusBadRequest, map[string]string{"error": "invalid_request"}, err)
			return
		}
		body = &req
	} else if !errors.Is(err, kp.ErrEmptyBody) {
		log.Debug(logAction.BUSINESS("ignore unparsable body"), map[string]any{"error": err.Error()})
	}

	subject := ResolveSubject(basic, body)

	issued, err := h.issuer.IssueToken(ctx.Context(), wantExpired, subject)
	if err != nil {
		if errors.Is(err, jwks.ErrNoMatchingKey) {
			ctx.JSONError(http.StatusServiceUnavailable, map[string]string{
				"error":  "no_matching_key",
				"detail": "No matching key in DB",
			}, err)
			return
		}
		ctx.Fail(err)
		return
	}

	ctx.JSON(http.StatusOK, issued, logger.MaskingRule{Field: "body.token", Type: logger.MaskingTypePartial})
}
