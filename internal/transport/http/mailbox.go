package httptransport

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/middleware"
	"mailprov/backend/internal/plesk"
	"mailprov/backend/internal/service"
)

// MailboxHandler 处理邮箱开通相关的 HTTP 请求
type MailboxHandler struct {
	provision *service.ProvisionService
	log       *zap.Logger
}

// NewMailboxHandler 创建邮箱处理器
func NewMailboxHandler(provision *service.ProvisionService, log *zap.Logger) *MailboxHandler {
	return &MailboxHandler{provision: provision, log: log}
}

type bulkCreateRequest struct {
	Usernames           string  `json:"usernames"` // 换行或逗号分隔
	Domain              string  `json:"domain"`
	QuotaPolicy         *string `json:"quotaPolicy"`
	OutgoingLimitPolicy *int    `json:"outgoingLimitPolicy"`
}

type singleCreateRequest struct {
	Username        string `json:"username"`
	Domain          string `json:"domain"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type domainListResponse struct {
	Items []plesk.Domain `json:"items"`
	Count int            `json:"count"`
}

type mailboxListResponse struct {
	Domain string   `json:"domain"`
	Items  []string `json:"items"`
	Count  int      `json:"count"`
}

// BulkCreate 批量开通邮箱
// @Summary 批量开通邮箱
// @Description 逐个创建邮箱，为每个成功的邮箱生成一次性密码分享链接。单个失败不影响其他邮箱。
// @Tags Mailboxes
// @Accept json
// @Produce json
// @Param request body bulkCreateRequest true "用户名列表与域名"
// @Success 200 {object} domain.BatchResult
// @Failure 400 {object} Response
// @Router /v1/mailboxes/bulk [post]
func (h *MailboxHandler) BulkCreate(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.provision.Provision(c.Request.Context(), service.BatchInput{
		Actor:               actor,
		RawInput:            req.Usernames,
		Domain:              req.Domain,
		QuotaPolicy:         req.QuotaPolicy,
		OutgoingLimitPolicy: req.OutgoingLimitPolicy,
	})
	if err != nil {
		h.log.Info("provision batch rejected", zap.String("actor", actor.UserID), zap.Error(err))
		ErrorFrom(c, err)
		return
	}

	SuccessWithMsg(c, summaryMessage(result), result)
}

// summaryMessage 生成批次摘要
func summaryMessage(result *domain.BatchResult) string {
	switch {
	case result.FailureCount == 0:
		return "全部邮箱创建成功"
	case result.SuccessCount == 0:
		return "所有邮箱均创建失败"
	default:
		return "部分邮箱创建成功"
	}
}

// CreateSingle 使用指定密码创建单个邮箱
// @Summary 创建单个邮箱
// @Tags Mailboxes
// @Accept json
// @Produce json
// @Param request body singleCreateRequest true "用户名、域名与密码"
// @Success 201 {object} domain.ProvisionOutcome
// @Failure 400 {object} Response
// @Failure 422 {object} Response "远程命令失败"
// @Failure 502 {object} Response "控制面板不可达"
// @Router /v1/mailboxes [post]
func (h *MailboxHandler) CreateSingle(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req singleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Domain) == "" || req.Password == "" || req.ConfirmPassword == "" {
		BadRequest(c, MsgFieldsRequired)
		return
	}
	if err := domain.ValidateMailboxPassword(req.Password, req.ConfirmPassword); err != nil {
		ErrorFrom(c, err)
		return
	}

	outcome, err := h.provision.CreateSingle(c.Request.Context(), actor, req.Username, req.Domain, req.Password)
	if err != nil {
		ErrorFrom(c, err)
		return
	}

	Created(c, outcome)
}

// List 列出域名下的邮箱
// @Summary 列出邮箱
// @Tags Mailboxes
// @Produce json
// @Param domain query string true "域名"
// @Success 200 {object} mailboxListResponse
// @Router /v1/mailboxes [get]
func (h *MailboxHandler) List(c *gin.Context) {
	domainName := c.Query("domain")

	items, err := h.provision.ListMailboxes(c.Request.Context(), domainName)
	if err != nil {
		h.log.Warn("list mailboxes failed", zap.String("domain", domainName), zap.Error(err))
		ErrorFrom(c, err)
		return
	}
	if items == nil {
		items = []string{}
	}

	Success(c, mailboxListResponse{
		Domain: strings.ToLower(strings.TrimSpace(domainName)),
		Items:  items,
		Count:  len(items),
	})
}

// Delete 删除邮箱（仅管理员）
// @Summary 删除邮箱
// @Tags Mailboxes
// @Param email path string true "完整邮箱地址"
// @Success 200 {object} Response
// @Router /v1/mailboxes/{email} [delete]
func (h *MailboxHandler) Delete(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	if err := h.provision.DeleteMailbox(c.Request.Context(), actor, c.Param("email")); err != nil {
		ErrorFrom(c, err)
		return
	}

	SuccessWithMsg(c, "邮箱已删除", nil)
}

// ListDomains 返回可开通的域名
// @Summary 域名列表
// @Tags Domains
// @Produce json
// @Success 200 {object} domainListResponse
// @Router /v1/domains [get]
func (h *MailboxHandler) ListDomains(c *gin.Context) {
	domains, err := h.provision.ListDomains(c.Request.Context())
	if err != nil {
		h.log.Warn("list domains failed", zap.Error(err))
		ErrorFrom(c, err)
		return
	}
	if domains == nil {
		domains = []plesk.Domain{}
	}

	Success(c, domainListResponse{Items: domains, Count: len(domains)})
}
