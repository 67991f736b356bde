package pipeline

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

// CodeFormatter 把每个库存单元渲染成一段发给买家的凭据文本
type CodeFormatter struct {
	tmpl *template.Template
}

// NewCodeFormatter 解析模板，字段取自 domain.AccountPayload。
func NewCodeFormatter(text string) (*CodeFormatter, error) {
	tmpl, err := template.New("code").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "parse code template")
	}
	return &CodeFormatter{tmpl: tmpl}, nil
}

// Format 为每个单元生成一个 code，顺序与 units 一致
func (f *CodeFormatter) Format(units []domain.InventoryUnit) ([]string, error) {
	if len(units) == 0 {
		return nil, errors.New("no units to format")
	}
	out := make([]string, 0, len(units))
	for _, u := range units {
		var b strings.Builder
		if err := f.tmpl.Execute(&b, u.Payload); err != nil {
			return nil, errors.Wrapf(err, "render code for unit %d", u.ID)
		}
		out = append(out, b.String())
	}
	return out, nil
}
