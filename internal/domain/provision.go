package domain

import "fmt"

// OutcomeStatus 单个邮箱开通结果状态
type OutcomeStatus string

const (
	OutcomeCreated          OutcomeStatus = "created"           // 远程创建成功
	OutcomeValidationFailed OutcomeStatus = "validation_failed" // 用户名格式不合法，未发起远程调用
	OutcomeRemoteFailed     OutcomeStatus = "remote_failed"     // 远程传输或命令执行失败
)

// MailboxRequest 表示批次中的一行开通请求
type MailboxRequest struct {
	Username            string
	Domain              string
	QuotaPolicy         *string // 可选：邮箱配额策略，如 "1G"
	OutgoingLimitPolicy *int    // 可选：每个邮箱的外发邮件上限
}

// Email 返回完整邮箱地址
func (r MailboxRequest) Email() string {
	return fmt.Sprintf("%s@%s", r.Username, r.Domain)
}

// ProvisionOutcome 单个邮箱的开通结果
//
// 密码只在本结构中短暂存在，调用方消费后即丢弃，服务端仅保留加密的分享记录。
type ProvisionOutcome struct {
	Email        string        `json:"email"`
	Status       OutcomeStatus `json:"status"`
	Password     string        `json:"password,omitempty"`
	ShareLink    string        `json:"shareLink,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// Succeeded 判断邮箱是否已在远程创建
func (o ProvisionOutcome) Succeeded() bool {
	return o.Status == OutcomeCreated
}

// BatchResult 批量开通的汇总结果，Outcomes 顺序与输入顺序一致
type BatchResult struct {
	SuccessCount int                `json:"successCount"`
	FailureCount int                `json:"failureCount"`
	Outcomes     []ProvisionOutcome `json:"outcomes"`
}

// Add 追加一个结果并更新计数
func (b *BatchResult) Add(outcome ProvisionOutcome) {
	if outcome.Succeeded() {
		b.SuccessCount++
	} else {
		b.FailureCount++
	}
	b.Outcomes = append(b.Outcomes, outcome)
}
