package health

import (
	"net/http"

	"github.com/sing3demons/jwks-server/pkg/kp"
)

func Healthz(ctx *kp.Ctx) {
	ctx.Log.SetUseCase("healthz")
	ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
