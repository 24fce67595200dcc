package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/middleware"
	"mailprov/backend/internal/service"
)

// LogHandler 查询开通审计记录
type LogHandler struct {
	audit *service.AuditService
	log   *zap.Logger
}

// NewLogHandler 创建审计记录处理器
func NewLogHandler(audit *service.AuditService, log *zap.Logger) *LogHandler {
	return &LogHandler{audit: audit, log: log}
}

type logListResponse struct {
	Items []domain.EmailLog `json:"items"`
	Count int               `json:"count"`
}

// Recent 最近的审计记录（管理员）
func (h *LogHandler) Recent(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		BadRequest(c, MsgInvalidLimit)
		return
	}

	logs, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("list recent logs failed", zap.Error(err))
		InternalError(c, MsgLogListFailed)
		return
	}

	Success(c, logListResponse{Items: logs, Count: len(logs)})
}

// Mine 当前操作员的审计记录
func (h *LogHandler) Mine(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		BadRequest(c, MsgInvalidLimit)
		return
	}

	logs, err := h.audit.ByUser(c.Request.Context(), actor.UserID, limit)
	if err != nil {
		h.log.Error("list user logs failed", zap.String("user_id", actor.UserID), zap.Error(err))
		InternalError(c, MsgLogListFailed)
		return
	}

	Success(c, logListResponse{Items: logs, Count: len(logs)})
}

// parseLimit 未传时返回 0，由服务层使用默认值
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}
