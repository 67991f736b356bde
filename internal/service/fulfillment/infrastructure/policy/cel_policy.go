package policy

import (
	"context"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

// CELEligibilityPolicy 用 CEL 表达式判断订单是否可以自动发货。
// 可用变量: status, payment, delivery (string) 和 items (list of {id, count})。
type CELEligibilityPolicy struct {
	expr    string
	program cel.Program
}

// NewCELEligibilityPolicy 在启动时编译表达式，表达式非法或结果不是 bool 时返回错误。
func NewCELEligibilityPolicy(expr string) (*CELEligibilityPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("status", cel.StringType),
		cel.Variable("payment", cel.StringType),
		cel.Variable("delivery", cel.StringType),
		cel.Variable("items", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create CEL environment")
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile eligibility expression %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("eligibility expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, errors.Wrap(err, "build eligibility program")
	}
	return &CELEligibilityPolicy{expr: expr, program: prg}, nil
}

func (p *CELEligibilityPolicy) Eligible(ctx context.Context, order *domain.Order) (bool, error) {
	items := make([]map[string]any, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, map[string]any{"id": it.ID, "count": int64(it.Count)})
	}

	out, _, err := p.program.ContextEval(ctx, map[string]any{
		"status":   string(order.Status),
		"payment":  string(order.Payment),
		"delivery": string(order.Delivery),
		"items":    items,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate eligibility for order %s", order.ID)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("eligibility for order %s evaluated to %T", order.ID, out.Value())
	}
	return allowed, nil
}

func (p *CELEligibilityPolicy) String() string {
	return p.expr
}
