package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mailprov/backend/internal/config"
	"mailprov/backend/internal/domain"
	"mailprov/backend/internal/plesk"
	"mailprov/backend/internal/share"
)

// MockRemote 模拟远程命令客户端
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) CreateMailbox(ctx context.Context, email, password string, quotaPolicy *string, outgoingLimitPolicy *int) (*plesk.CommandResult, error) {
	args := m.Called(ctx, email, password, quotaPolicy, outgoingLimitPolicy)
	result, _ := args.Get(0).(*plesk.CommandResult)
	return result, args.Error(1)
}

func (m *MockRemote) ListMailboxes(ctx context.Context, domainName string) ([]string, error) {
	args := m.Called(ctx, domainName)
	list, _ := args.Get(0).([]string)
	return list, args.Error(1)
}

func (m *MockRemote) DeleteMailbox(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockRemote) ListDomains(ctx context.Context) ([]plesk.Domain, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]plesk.Domain)
	return list, args.Error(1)
}

// MockIssuer 模拟分享链接签发器
type MockIssuer struct {
	mock.Mock
}

func (m *MockIssuer) Issue(ctx context.Context, password, email string) (string, error) {
	args := m.Called(ctx, password, email)
	return args.String(0), args.Error(1)
}

type fixedPasswords struct {
	password string
	err      error
}

func (f fixedPasswords) Generate(int) (string, error) {
	return f.password, f.err
}

type auditEntry struct {
	UserID string
	Email  string
	Domain string
	Status domain.AuditStatus
	ErrMsg *string
}

// recordingAudit 按顺序记录审计调用
type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
	err     error
}

func (r *recordingAudit) Record(_ context.Context, userID, emailAddress, domainName string, status domain.AuditStatus, errorMessage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, auditEntry{userID, emailAddress, domainName, status, errorMessage})
	return r.err
}

const testPassword = "Fixed!Pass1"

var operator = domain.Actor{UserID: "op-1", Email: "op@example.com"}

type fixture struct {
	remote *MockRemote
	issuer *MockIssuer
	audit  *recordingAudit
	svc    *ProvisionService
}

func newFixture(t *testing.T, cfg config.ProvisionConfig) *fixture {
	t.Helper()
	if cfg.PasswordLength == 0 {
		cfg.PasswordLength = 12
	}
	f := &fixture{
		remote: &MockRemote{},
		issuer: &MockIssuer{},
		audit:  &recordingAudit{},
	}
	f.svc = NewProvisionService(f.remote, fixedPasswords{password: testPassword}, f.issuer, f.audit, cfg, nil)
	return f
}

func (f *fixture) expectCreate(email string, err error) {
	if err != nil {
		f.remote.On("CreateMailbox", mock.Anything, email, testPassword, mock.Anything, mock.Anything).Return(nil, err).Once()
		return
	}
	f.remote.On("CreateMailbox", mock.Anything, email, testPassword, mock.Anything, mock.Anything).
		Return(&plesk.CommandResult{Code: 0}, nil).Once()
}

func (f *fixture) expectIssue(email, link string, err error) {
	f.issuer.On("Issue", mock.Anything, testPassword, email).Return(link, err).Once()
}

func TestSplitUsernames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"逗号分隔并去重", "alice, alice, bob", []string{"alice", "bob"}},
		{"换行分隔", "alice\nbob\r\ncarol", []string{"alice", "bob", "carol"}},
		{"混合分隔并丢弃空项", " alice ,\n\n, bob,", []string{"alice", "bob"}},
		{"去重区分大小写", "Alice,alice", []string{"Alice", "alice"}},
		{"空输入", "  \n ,, ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitUsernames(tt.raw))
		})
	}
}

func TestPlanBatch(t *testing.T) {
	quota := "1G"
	plan := PlanBatch("alice\nbad user!\nbob", "example.com", &quota, nil)

	require.Len(t, plan, 3)
	assert.True(t, plan[0].Valid())
	assert.Equal(t, "alice@example.com", plan[0].Request.Email())
	assert.Equal(t, &quota, plan[0].Request.QuotaPolicy)

	assert.False(t, plan[1].Valid())
	assert.ErrorIs(t, plan[1].Err, domain.ErrInvalidUsername)
	assert.Equal(t, "bad user!", plan[1].Token)

	assert.True(t, plan[2].Valid())
}

func TestProvisionService_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("重复用户名只处理一次并保持顺序", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.expectCreate("alice@example.com", nil)
		f.expectCreate("bob@example.com", nil)
		f.expectIssue("alice@example.com", "https://share/a", nil)
		f.expectIssue("bob@example.com", "https://share/b", nil)

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice, alice, bob", Domain: "example.com"})
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 2)
		assert.Equal(t, "alice@example.com", result.Outcomes[0].Email)
		assert.Equal(t, "bob@example.com", result.Outcomes[1].Email)
		f.remote.AssertNumberOfCalls(t, "CreateMailbox", 2)
	})

	t.Run("非法用户名不触发远程调用", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "bad user!", Domain: "example.com"})
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 1)
		assert.Equal(t, domain.OutcomeValidationFailed, result.Outcomes[0].Status)
		assert.Equal(t, 0, result.SuccessCount)
		assert.Equal(t, 1, result.FailureCount)
		f.remote.AssertNotCalled(t, "CreateMailbox", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		require.Len(t, f.audit.entries, 1)
		assert.Equal(t, domain.AuditError, f.audit.entries[0].Status)
	})

	t.Run("命令错误的消息为 stderr", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.expectCreate("alice@example.com", &plesk.RemoteCommandError{Command: "mail", Code: 1, Stderr: "mailname already exists"})

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice", Domain: "example.com"})
		require.NoError(t, err)
		outcome := result.Outcomes[0]
		assert.Equal(t, domain.OutcomeRemoteFailed, outcome.Status)
		assert.Equal(t, "mailname already exists", outcome.ErrorMessage)
		assert.Empty(t, outcome.Password)
		f.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything)

		require.Len(t, f.audit.entries, 1)
		require.NotNil(t, f.audit.entries[0].ErrMsg)
		assert.Equal(t, "mailname already exists", *f.audit.entries[0].ErrMsg)
	})

	t.Run("传输错误不中断批次", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.expectCreate("alice@example.com", &plesk.RemoteTransportError{StatusCode: 502, Body: "bad gateway"})
		f.expectCreate("bob@example.com", nil)
		f.expectIssue("bob@example.com", "https://share/b", nil)

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice\nbob", Domain: "example.com"})
		require.NoError(t, err)
		assert.Equal(t, 1, result.SuccessCount)
		assert.Equal(t, 1, result.FailureCount)
		assert.Contains(t, result.Outcomes[0].ErrorMessage, "HTTP 502")
		assert.Equal(t, domain.OutcomeCreated, result.Outcomes[1].Status)
	})

	t.Run("链接签发失败仍计为成功", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.expectCreate("alice@example.com", nil)
		f.expectIssue("alice@example.com", "", share.ErrShareIssuance)

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice", Domain: "example.com"})
		require.NoError(t, err)
		outcome := result.Outcomes[0]
		assert.Equal(t, domain.OutcomeCreated, outcome.Status)
		assert.Empty(t, outcome.ShareLink)
		assert.Equal(t, testPassword, outcome.Password)
		assert.Equal(t, 1, result.SuccessCount)

		require.Len(t, f.audit.entries, 1)
		assert.Equal(t, domain.AuditSuccess, f.audit.entries[0].Status)
		assert.Nil(t, f.audit.entries[0].ErrMsg)
	})

	t.Run("端到端：两个成功一个校验失败", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.expectCreate("alice@example.com", nil)
		f.expectCreate("bob@example.com", nil)
		f.expectIssue("alice@example.com", "https://share/a", nil)
		f.expectIssue("bob@example.com", "https://share/b", nil)

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice\nbob\ninvalid user!", Domain: "example.com"})
		require.NoError(t, err)
		assert.Equal(t, 2, result.SuccessCount)
		assert.Equal(t, 1, result.FailureCount)

		require.Len(t, result.Outcomes, 3)
		assert.Equal(t, "alice@example.com", result.Outcomes[0].Email)
		assert.Equal(t, domain.OutcomeCreated, result.Outcomes[0].Status)
		assert.Equal(t, "https://share/a", result.Outcomes[0].ShareLink)
		assert.Equal(t, "bob@example.com", result.Outcomes[1].Email)
		assert.Equal(t, domain.OutcomeCreated, result.Outcomes[1].Status)
		assert.Equal(t, "invalid user!@example.com", result.Outcomes[2].Email)
		assert.Equal(t, domain.OutcomeValidationFailed, result.Outcomes[2].Status)

		// 每项恰好一条审计，顺序与输入一致
		require.Len(t, f.audit.entries, 3)
		for i, entry := range f.audit.entries {
			assert.Equal(t, "op-1", entry.UserID)
			assert.Equal(t, "example.com", entry.Domain)
			assert.Equal(t, result.Outcomes[i].Email, entry.Email)
		}
		f.remote.AssertExpectations(t)
		f.issuer.AssertExpectations(t)
	})

	t.Run("审计失败不影响结果", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.audit.err = errors.New("database is locked")
		f.expectCreate("alice@example.com", nil)
		f.expectIssue("alice@example.com", "https://share/a", nil)

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice", Domain: "example.com"})
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeCreated, result.Outcomes[0].Status)
	})

	t.Run("密码生成失败记为失败且不调用远程", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.svc.passwords = fixedPasswords{err: errors.New("entropy exhausted")}

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice", Domain: "example.com"})
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeRemoteFailed, result.Outcomes[0].Status)
		assert.Contains(t, result.Outcomes[0].ErrorMessage, "entropy exhausted")
		f.remote.AssertNotCalled(t, "CreateMailbox", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("取消后剩余项不再发送", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		f.remote.On("CreateMailbox", mock.Anything, "alice@example.com", testPassword, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(&plesk.CommandResult{}, nil).Once()
		f.expectIssue("alice@example.com", "https://share/a", nil)

		result, err := f.svc.Provision(cctx, BatchInput{Actor: operator, RawInput: "alice,bob,carol", Domain: "example.com"})
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 3)
		assert.Equal(t, domain.OutcomeCreated, result.Outcomes[0].Status)
		assert.Equal(t, domain.OutcomeRemoteFailed, result.Outcomes[1].Status)
		assert.Equal(t, context.Canceled.Error(), result.Outcomes[1].ErrorMessage)
		assert.Equal(t, domain.OutcomeRemoteFailed, result.Outcomes[2].Status)
		f.remote.AssertNumberOfCalls(t, "CreateMailbox", 1)
		assert.Len(t, f.audit.entries, 3)
	})

	t.Run("使用配置中的默认策略", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{DefaultQuota: "2G", DefaultOutgoingLimit: 100})
		f.remote.On("CreateMailbox", mock.Anything, "alice@example.com", testPassword,
			mock.MatchedBy(func(q *string) bool { return q != nil && *q == "2G" }),
			mock.MatchedBy(func(l *int) bool { return l != nil && *l == 100 }),
		).Return(&plesk.CommandResult{}, nil).Once()
		f.expectIssue("alice@example.com", "https://share/a", nil)

		_, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice", Domain: "example.com"})
		require.NoError(t, err)
		f.remote.AssertExpectations(t)
	})
}

func TestProvisionService_BatchErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		cfg   config.ProvisionConfig
		input BatchInput
		want  error
	}{
		{"缺少调用方", config.ProvisionConfig{}, BatchInput{RawInput: "alice", Domain: "example.com"}, ErrActorRequired},
		{"缺少域名", config.ProvisionConfig{}, BatchInput{Actor: operator, RawInput: "alice", Domain: "  "}, ErrDomainRequired},
		{"域名格式错误", config.ProvisionConfig{}, BatchInput{Actor: operator, RawInput: "alice", Domain: "bad domain"}, domain.ErrInvalidDomain},
		{"域名不在允许列表", config.ProvisionConfig{AllowedDomains: []string{"corp.example"}}, BatchInput{Actor: operator, RawInput: "alice", Domain: "example.com"}, ErrDomainNotAllowed},
		{"没有用户名", config.ProvisionConfig{}, BatchInput{Actor: operator, RawInput: " , \n", Domain: "example.com"}, ErrNoUsernames},
		{"批次过大", config.ProvisionConfig{MaxBatchSize: 2}, BatchInput{Actor: operator, RawInput: "a,b,c", Domain: "example.com"}, ErrBatchTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			result, err := f.svc.Provision(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, result)
			f.remote.AssertNotCalled(t, "CreateMailbox", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, f.audit.entries)
		})
	}

	t.Run("允许列表不区分大小写", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{AllowedDomains: []string{"Example.COM"}})
		f.expectCreate("alice@example.com", nil)
		f.expectIssue("alice@example.com", "https://share/a", nil)

		result, err := f.svc.Provision(ctx, BatchInput{Actor: operator, RawInput: "alice", Domain: "EXAMPLE.com"})
		require.NoError(t, err)
		assert.Equal(t, 1, result.SuccessCount)
	})
}

func TestProvisionService_CreateSingle(t *testing.T) {
	ctx := context.Background()

	t.Run("使用指定密码创建且不签发链接", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.expectCreate("alice@example.com", nil)

		outcome, err := f.svc.CreateSingle(ctx, operator, "alice", "example.com", testPassword)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeCreated, outcome.Status)
		assert.Empty(t, outcome.Password)
		assert.Empty(t, outcome.ShareLink)
		f.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything)

		require.Len(t, f.audit.entries, 1)
		assert.Equal(t, domain.AuditSuccess, f.audit.entries[0].Status)
	})

	t.Run("远程失败时返回错误并记录审计", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.expectCreate("alice@example.com", &plesk.RemoteCommandError{Code: 1, Stderr: "quota exceeded"})

		_, err := f.svc.CreateSingle(ctx, operator, "alice", "example.com", testPassword)
		assert.True(t, plesk.IsCommandError(err))
		require.Len(t, f.audit.entries, 1)
		assert.Equal(t, domain.AuditError, f.audit.entries[0].Status)
	})

	t.Run("输入校验", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})

		_, err := f.svc.CreateSingle(ctx, operator, "bad user", "example.com", testPassword)
		assert.ErrorIs(t, err, domain.ErrInvalidUsername)

		_, err = f.svc.CreateSingle(ctx, operator, "alice", "example.com", "short")
		assert.ErrorIs(t, err, domain.ErrPasswordTooShort)

		_, err = f.svc.CreateSingle(ctx, domain.Actor{}, "alice", "example.com", testPassword)
		assert.ErrorIs(t, err, ErrActorRequired)

		f.remote.AssertNotCalled(t, "CreateMailbox", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.audit.entries)
	})
}

func TestProvisionService_DeleteAndList(t *testing.T) {
	ctx := context.Background()

	t.Run("删除邮箱", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.remote.On("DeleteMailbox", mock.Anything, "alice@example.com").Return(nil).Once()

		require.NoError(t, f.svc.DeleteMailbox(ctx, operator, " Alice@Example.com "))
		f.remote.AssertExpectations(t)
	})

	t.Run("删除时地址格式错误", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		assert.ErrorIs(t, f.svc.DeleteMailbox(ctx, operator, "not-an-email"), ErrInvalidEmail)
		assert.ErrorIs(t, f.svc.DeleteMailbox(ctx, operator, "bad user@example.com"), ErrInvalidEmail)
		f.remote.AssertNotCalled(t, "DeleteMailbox", mock.Anything, mock.Anything)
	})

	t.Run("列出邮箱", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{})
		f.remote.On("ListMailboxes", mock.Anything, "example.com").Return([]string{"alice@example.com"}, nil).Once()

		list, err := f.svc.ListMailboxes(ctx, "Example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice@example.com"}, list)
	})

	t.Run("域名列表被缓存并按允许列表过滤", func(t *testing.T) {
		f := newFixture(t, config.ProvisionConfig{AllowedDomains: []string{"example.com"}})
		f.remote.On("ListDomains", mock.Anything).
			Return([]plesk.Domain{{ID: 1, Name: "example.com"}, {ID: 2, Name: "other.org"}}, nil).Once()

		for i := 0; i < 2; i++ {
			domains, err := f.svc.ListDomains(ctx)
			require.NoError(t, err)
			require.Len(t, domains, 1)
			assert.Equal(t, "example.com", domains[0].Name)
		}
		f.remote.AssertNumberOfCalls(t, "ListDomains", 1)
	})
}
