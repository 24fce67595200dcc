package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailprov/backend/internal/logger"
	"mailprov/backend/internal/monitoring"
	"mailprov/backend/internal/share"
)

// ShareHandler 处理一次性密码取回
type ShareHandler struct {
	issuer  *share.Issuer
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewShareHandler 创建分享链接处理器
func NewShareHandler(issuer *share.Issuer, metrics *monitoring.Metrics, log *zap.Logger) *ShareHandler {
	return &ShareHandler{issuer: issuer, metrics: metrics, log: log}
}

// Retrieve 取回密码，链接只能使用一次
// @Summary 取回一次性密码
// @Tags Share
// @Produce json
// @Param hash query string true "分享令牌"
// @Success 200 {object} share.Secret
// @Failure 404 {object} Response "链接无效、已被使用或已过期"
// @Router /share/retrieve [get]
func (h *ShareHandler) Retrieve(c *gin.Context) {
	token := c.Query("hash")

	secret, err := h.issuer.Retrieve(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, share.ErrShareNotFound) {
			h.metrics.RecordShareRetrieved("not_found")
		} else {
			h.metrics.RecordShareRetrieved("error")
			h.log.Error("share retrieval failed", logger.Fingerprint("token", token), zap.Error(err))
		}
		ErrorFrom(c, err)
		return
	}

	h.metrics.RecordShareRetrieved("ok")
	h.log.Info("share link consumed", zap.String("email", secret.Email), zap.String("ip", c.ClientIP()))
	Success(c, secret)
}
