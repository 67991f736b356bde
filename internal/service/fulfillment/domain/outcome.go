// internal/service/fulfillment/domain/outcome.go
package domain

// Outcome 是单个订单在一次轮询中的处理结果，不落库
type Outcome string

const (
	OutcomeSkipped          Outcome = "skipped"           // 不符合自动发货条件
	OutcomeAlreadyFulfilled Outcome = "already_fulfilled" // 已有库存绑定到该订单
	OutcomeDeferred         Outcome = "deferred"          // 库存不足，下次轮询再试
	OutcomeFulfilled        Outcome = "fulfilled"
	OutcomeDeliveryFailed   Outcome = "delivery_failed" // 已预占但发货失败，等待人工处理
	OutcomeFailed           Outcome = "failed"
)
