package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/expr-lang/expr"

	"github.com/lexhub/lexhub/pkg/llms"
)

// CalculatorTool evaluates arithmetic expressions. Compensation and
// interest questions come down to exact numbers the model should not
// be trusted to compute itself.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (t *CalculatorTool) Name() string { return "calculator" }

func (t *CalculatorTool) Description() string {
	return "计算数学表达式，用于经济补偿、利息、违约金等金额计算。支持加减乘除、括号、幂运算和常用函数。"
}

func (t *CalculatorTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: objectSchema(map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "数学表达式，例如：8000 * 3 + 8000 / 2",
				},
			}, "expression"),
		},
	}
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	expression, ok := stringArg(args, "expression")
	if !ok {
		return errorResult(t.Name(), "缺少必需参数 'expression'")
	}

	env := map[string]any{
		"abs":   math.Abs,
		"ceil":  math.Ceil,
		"floor": math.Floor,
		"round": math.Round,
		"sqrt":  math.Sqrt,
		"pow":   math.Pow,
		"max":   math.Max,
		"min":   math.Min,
	}

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("表达式无法解析: %v", err))
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("表达式计算失败: %v", err))
	}

	return successResult(t.Name(), fmt.Sprintf("%s = %v", expression, output))
}
