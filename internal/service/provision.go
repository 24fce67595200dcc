package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailprov/backend/internal/cache"
	"mailprov/backend/internal/config"
	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/plesk"
)

var (
	ErrDomainRequired   = errors.New("domain is required")
	ErrDomainNotAllowed = errors.New("domain not allowed")
	ErrBatchTooLarge    = errors.New("batch exceeds maximum size")
	ErrActorRequired    = errors.New("authenticated actor is required")
	ErrNoUsernames      = errors.New("no usernames supplied")
	ErrInvalidEmail     = errors.New("invalid email address")
)

const domainCacheTTL = 5 * time.Minute

// RemoteClient 远程邮件平台的命令接口，由 *plesk.Client 实现
type RemoteClient interface {
	CreateMailbox(ctx context.Context, email, password string, quotaPolicy *string, outgoingLimitPolicy *int) (*plesk.CommandResult, error)
	ListMailboxes(ctx context.Context, domain string) ([]string, error)
	DeleteMailbox(ctx context.Context, email string) error
	ListDomains(ctx context.Context) ([]plesk.Domain, error)
}

// PasswordGenerator 密码生成接口
type PasswordGenerator interface {
	Generate(length int) (string, error)
}

// LinkIssuer 一次性分享链接签发接口
type LinkIssuer interface {
	Issue(ctx context.Context, password, email string) (string, error)
}

// AuditSink 审计记录接口
type AuditSink interface {
	Record(ctx context.Context, userID, emailAddress, domainName string, status domain.AuditStatus, errorMessage *string) error
}

// ProvisionMetrics 开通过程的指标，由 *monitoring.Metrics 实现
type ProvisionMetrics interface {
	RecordBatch()
	RecordProvisionOutcome(status string)
	RecordRemoteCommand(action, result string, duration time.Duration)
	RecordShareIssued(result string)
}

// BatchInput 批量开通的输入
type BatchInput struct {
	Actor               domain.Actor
	RawInput            string  // 换行或逗号分隔的用户名
	Domain              string
	QuotaPolicy         *string // 为空时使用配置中的默认值
	OutgoingLimitPolicy *int    // 为空时使用配置中的默认值
}

// PlannedItem 校验阶段的产物：合法请求或被拒绝的用户名
type PlannedItem struct {
	Token   string
	Request domain.MailboxRequest
	Err     error // 非空表示校验失败
}

// Valid 判断是否通过校验
func (p PlannedItem) Valid() bool {
	return p.Err == nil
}

// ProvisionService 批量开通邮箱
//
// 同一批次内的远程调用严格按输入顺序串行执行；已创建的邮箱不会因后续失败而回滚。
type ProvisionService struct {
	remote    RemoteClient
	passwords PasswordGenerator
	links     LinkIssuer
	audit     AuditSink
	cfg       config.ProvisionConfig
	domainSet map[string]struct{}
	domains   *cache.LocalCache[[]plesk.Domain]
	metrics   ProvisionMetrics
	log       *zap.Logger
}

// ProvisionOption 配置开通服务
type ProvisionOption func(*ProvisionService)

// WithProvisionMetrics 设置指标记录器
func WithProvisionMetrics(m ProvisionMetrics) ProvisionOption {
	return func(s *ProvisionService) {
		s.metrics = m
	}
}

// WithDomainCache 替换域名列表缓存
func WithDomainCache(c *cache.LocalCache[[]plesk.Domain]) ProvisionOption {
	return func(s *ProvisionService) {
		s.domains = c
	}
}

// NewProvisionService 创建开通服务
func NewProvisionService(
	remote RemoteClient,
	passwords PasswordGenerator,
	links LinkIssuer,
	audit AuditSink,
	cfg config.ProvisionConfig,
	log *zap.Logger,
	opts ...ProvisionOption,
) *ProvisionService {
	domainSet := make(map[string]struct{}, len(cfg.AllowedDomains))
	for _, d := range cfg.AllowedDomains {
		domainSet[strings.ToLower(d)] = struct{}{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &ProvisionService{
		remote:    remote,
		passwords: passwords,
		links:     links,
		audit:     audit,
		cfg:       cfg,
		domainSet: domainSet,
		domains:   cache.NewLocalCache[[]plesk.Domain](domainCacheTTL),
		metrics:   noopMetrics{},
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SplitUsernames 按换行或逗号拆分输入，去除空白和空项，保留首次出现顺序去重（区分大小写）
func SplitUsernames(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimSpace(field)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

// PlanBatch 拆分并校验输入，不产生任何远程调用；结果顺序与输入一致
func PlanBatch(raw, domainName string, quotaPolicy *string, outgoingLimitPolicy *int) []PlannedItem {
	tokens := SplitUsernames(raw)
	items := make([]PlannedItem, 0, len(tokens))
	for _, token := range tokens {
		req := domain.MailboxRequest{
			Username:            token,
			Domain:              domainName,
			QuotaPolicy:         quotaPolicy,
			OutgoingLimitPolicy: outgoingLimitPolicy,
		}
		items = append(items, PlannedItem{
			Token:   token,
			Request: req,
			Err:     domain.ValidateUsername(token),
		})
	}
	return items
}

// Provision 执行批量开通
//
// 只有批次级的配置错误（缺少域名、域名不允许、批次过大、缺少调用方身份）会返回 error，
// 此时不会发起任何远程调用。单个邮箱的失败都体现在返回的 BatchResult 中。
func (s *ProvisionService) Provision(ctx context.Context, in BatchInput) (*domain.BatchResult, error) {
	if !in.Actor.Valid() {
		return nil, ErrActorRequired
	}

	domainName, err := s.checkDomain(in.Domain)
	if err != nil {
		return nil, err
	}

	quota, limit := s.policies(in.QuotaPolicy, in.OutgoingLimitPolicy)
	plan := PlanBatch(in.RawInput, domainName, quota, limit)
	if len(plan) == 0 {
		return nil, ErrNoUsernames
	}
	if s.cfg.MaxBatchSize > 0 && len(plan) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d usernames, limit %d", ErrBatchTooLarge, len(plan), s.cfg.MaxBatchSize)
	}

	s.metrics.RecordBatch()
	started := time.Now()

	result := &domain.BatchResult{Outcomes: make([]domain.ProvisionOutcome, 0, len(plan))}
	for _, item := range plan {
		outcome := s.execute(ctx, item)
		s.record(ctx, in.Actor, item.Request, outcome)
		s.metrics.RecordProvisionOutcome(string(outcome.Status))
		result.Add(outcome)
	}

	s.log.Info("provision batch finished",
		zap.String("actor", in.Actor.UserID),
		zap.String("domain", domainName),
		zap.Int("success", result.SuccessCount),
		zap.Int("failure", result.FailureCount),
		zap.Duration("duration", time.Since(started)),
	)
	return result, nil
}

// execute 处理单个计划项
func (s *ProvisionService) execute(ctx context.Context, item PlannedItem) domain.ProvisionOutcome {
	email := item.Request.Email()

	if !item.Valid() {
		return domain.ProvisionOutcome{
			Email:        email,
			Status:       domain.OutcomeValidationFailed,
			ErrorMessage: item.Err.Error(),
		}
	}

	// 请求已取消时剩余项不再发送
	if err := ctx.Err(); err != nil {
		return domain.ProvisionOutcome{
			Email:        email,
			Status:       domain.OutcomeRemoteFailed,
			ErrorMessage: err.Error(),
		}
	}

	started := time.Now()
	password, err := s.passwords.Generate(s.cfg.PasswordLength)
	if err != nil {
		s.log.Error("password generation failed", zap.String("email", email), zap.Error(err))
		return domain.ProvisionOutcome{
			Email:        email,
			Status:       domain.OutcomeRemoteFailed,
			ErrorMessage: fmt.Sprintf("password generation failed: %v", err),
		}
	}

	if err := s.create(ctx, email, password, item.Request.QuotaPolicy, item.Request.OutgoingLimitPolicy); err != nil {
		s.log.Warn("mailbox creation failed",
			zap.String("email", email),
			zap.Bool("transport", plesk.IsTransportError(err)),
			zap.Duration("duration", time.Since(started)),
			zap.Error(err),
		)
		return domain.ProvisionOutcome{
			Email:        email,
			Status:       domain.OutcomeRemoteFailed,
			ErrorMessage: err.Error(),
		}
	}

	outcome := domain.ProvisionOutcome{
		Email:    email,
		Status:   domain.OutcomeCreated,
		Password: password,
	}

	link, err := s.links.Issue(ctx, password, email)
	if err != nil {
		// 邮箱已创建，链接签发失败不影响结果
		s.metrics.RecordShareIssued("error")
		s.log.Warn("share link unavailable", zap.String("email", email), zap.Error(err))
	} else {
		s.metrics.RecordShareIssued("ok")
		outcome.ShareLink = link
	}

	s.log.Info("mailbox created",
		zap.String("email", email),
		zap.Bool("share_link", outcome.ShareLink != ""),
		zap.Duration("duration", time.Since(started)),
	)
	return outcome
}

func (s *ProvisionService) create(ctx context.Context, email, password string, quota *string, limit *int) error {
	started := time.Now()
	_, err := s.remote.CreateMailbox(ctx, email, password, quota, limit)
	s.metrics.RecordRemoteCommand("create", remoteResult(err), time.Since(started))
	return err
}

// record 写入审计记录；审计失败只记录日志，不改变结果
func (s *ProvisionService) record(ctx context.Context, actor domain.Actor, req domain.MailboxRequest, outcome domain.ProvisionOutcome) {
	status := domain.AuditSuccess
	var errMsg *string
	if !outcome.Succeeded() {
		status = domain.AuditError
		msg := outcome.ErrorMessage
		errMsg = &msg
	}

	// 即使请求已取消也要落审计
	if err := s.audit.Record(context.WithoutCancel(ctx), actor.UserID, outcome.Email, req.Domain, status, errMsg); err != nil {
		s.log.Error("audit record failed",
			zap.String("email", outcome.Email),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// CreateSingle 使用操作员指定的密码创建单个邮箱，不签发分享链接
func (s *ProvisionService) CreateSingle(ctx context.Context, actor domain.Actor, username, domainName, password string) (*domain.ProvisionOutcome, error) {
	if !actor.Valid() {
		return nil, ErrActorRequired
	}
	domainName, err := s.checkDomain(domainName)
	if err != nil {
		return nil, err
	}

	username = strings.TrimSpace(username)
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < domain.MinPasswordLength {
		return nil, domain.ErrPasswordTooShort
	}
	if len(password) > domain.MaxPasswordLength {
		return nil, domain.ErrPasswordTooLong
	}

	quota, limit := s.policies(nil, nil)
	req := domain.MailboxRequest{
		Username:            username,
		Domain:              domainName,
		QuotaPolicy:         quota,
		OutgoingLimitPolicy: limit,
	}
	email := req.Email()

	outcome := domain.ProvisionOutcome{Email: email, Status: domain.OutcomeCreated}
	err = s.create(ctx, email, password, quota, limit)
	if err != nil {
		outcome.Status = domain.OutcomeRemoteFailed
		outcome.ErrorMessage = err.Error()
	}
	s.record(ctx, actor, req, outcome)
	s.metrics.RecordProvisionOutcome(string(outcome.Status))

	if err != nil {
		s.log.Warn("single mailbox creation failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	s.log.Info("mailbox created", zap.String("email", email), zap.String("actor", actor.UserID))
	return &outcome, nil
}

// ListMailboxes 列出域名下已存在的邮箱
func (s *ProvisionService) ListMailboxes(ctx context.Context, domainName string) ([]string, error) {
	domainName, err := s.checkDomain(domainName)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	list, err := s.remote.ListMailboxes(ctx, domainName)
	s.metrics.RecordRemoteCommand("list", remoteResult(err), time.Since(started))
	return list, err
}

// DeleteMailbox 删除远程邮箱
func (s *ProvisionService) DeleteMailbox(ctx context.Context, actor domain.Actor, email string) error {
	if !actor.Valid() {
		return ErrActorRequired
	}

	email = strings.ToLower(strings.TrimSpace(email))
	local, domainName, ok := strings.Cut(email, "@")
	if !ok || domain.ValidateUsername(local) != nil {
		return ErrInvalidEmail
	}
	if _, err := s.checkDomain(domainName); err != nil {
		return err
	}

	started := time.Now()
	err := s.remote.DeleteMailbox(ctx, email)
	s.metrics.RecordRemoteCommand("remove", remoteResult(err), time.Since(started))
	if err != nil {
		s.log.Warn("mailbox deletion failed", zap.String("email", email), zap.Error(err))
		return err
	}

	s.log.Info("mailbox deleted", zap.String("email", email), zap.String("actor", actor.UserID))
	return nil
}

// ListDomains 返回控制面板中的域名；配置了允许列表时只返回列表内的域名
func (s *ProvisionService) ListDomains(ctx context.Context) ([]plesk.Domain, error) {
	all, err := s.domains.GetOrLoad(ctx, "domains", s.remote.ListDomains)
	if err != nil {
		return nil, err
	}
	if len(s.domainSet) == 0 {
		return all, nil
	}

	filtered := make([]plesk.Domain, 0, len(all))
	for _, d := range all {
		if _, ok := s.domainSet[strings.ToLower(d.Name)]; ok {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

// checkDomain 规范化并校验目标域名
func (s *ProvisionService) checkDomain(raw string) (string, error) {
	domainName := strings.ToLower(strings.TrimSpace(raw))
	if domainName == "" {
		return "", ErrDomainRequired
	}
	if err := domain.ValidateDomain(domainName); err != nil {
		return "", err
	}
	if len(s.domainSet) > 0 {
		if _, ok := s.domainSet[domainName]; !ok {
			return "", ErrDomainNotAllowed
		}
	}
	return domainName, nil
}

// policies 未显式指定时使用配置中的默认策略
func (s *ProvisionService) policies(quota *string, limit *int) (*string, *int) {
	if quota == nil && s.cfg.DefaultQuota != "" {
		q := s.cfg.DefaultQuota
		quota = &q
	}
	if limit == nil && s.cfg.DefaultOutgoingLimit > 0 {
		l := s.cfg.DefaultOutgoingLimit
		limit = &l
	}
	return quota, limit
}

func remoteResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case plesk.IsCommandError(err):
		return "command_error"
	default:
		return "transport_error"
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordBatch() {}

func (noopMetrics) RecordProvisionOutcome(string) {}

func (noopMetrics) RecordRemoteCommand(string, string, time.Duration) {}

func (noopMetrics) RecordShareIssued(string) {}
