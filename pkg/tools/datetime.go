package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/lexhub/lexhub/pkg/llms"
)

// DatetimeTool reports the current date and time. Limitation periods
// and deadlines depend on today's date, which the model cannot know.
type DatetimeTool struct {
	// now is replaceable in tests.
	now func() time.Time
}

func NewDatetimeTool() *DatetimeTool {
	return &DatetimeTool{now: time.Now}
}

func (t *DatetimeTool) Name() string { return "datetime" }

func (t *DatetimeTool) Description() string {
	return "获取当前日期和时间，用于计算诉讼时效、期限届满日等与时间相关的问题。"
}

func (t *DatetimeTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  objectSchema(map[string]any{}),
		},
	}
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "星期一",
	time.Tuesday:   "星期二",
	time.Wednesday: "星期三",
	time.Thursday:  "星期四",
	time.Friday:    "星期五",
	time.Saturday:  "星期六",
	time.Sunday:    "星期日",
}

func (t *DatetimeTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	now := t.now()
	content := fmt.Sprintf("当前时间：%s %s",
		now.Format("2006-01-02 15:04:05"),
		weekdayNames[now.Weekday()])
	return successResult(t.Name(), content)
}
