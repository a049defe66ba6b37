package discover

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/internal/jwks"
	"github.com/sing3demons/jwks-server/pkg/kp"
)

type KeySetProvider interface {
	GetJWKS(ctx context.Context) (jwks.JWKS, error)
}

type DiscoverHandler struct {
	cfg      *config.AppConfig
	provider KeySetProvider
}

func NewDiscoverHandler(cfg *config.AppConfig, provider KeySetProvider) *DiscoverHandler {
	return &DiscoverHandler{cfg: cfg, provider: provider}
}

func (h *DiscoverHandler) OIDCHandler(ctx *kp.Ctx) {
	ctx.L("discover")
	ctx.JSON(http.StatusOK, h.cfg.OidcConfig)
}

// JwksHandler serves /.well-known/jwks.json with a public max-age.
func (h *DiscoverHandler) JwksHandler(ctx *kp.Ctx) {
	ctx.L("get_jwks")

	doc, err := h.provider.GetJWKS(ctx.Context())
	if err != nil {
		ctx.Fail(err)
		return
	}

	ctx.SetHeader("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.cfg.KeyConfig.JWKSMaxAge.Seconds())))
	ctx.JSON(http.StatusOK, doc)
}
