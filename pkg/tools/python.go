package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/lexhub/lexhub/pkg/llms"
)

// PythonExecutorTool runs a Python snippet in a subprocess. Used for
// calculations and data processing beyond what the calculator's
// expression syntax can express.
type PythonExecutorTool struct {
	timeout time.Duration
}

func NewPythonExecutorTool(timeoutSeconds int) *PythonExecutorTool {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &PythonExecutorTool{timeout: time.Duration(timeoutSeconds) * time.Second}
}

func (t *PythonExecutorTool) Name() string { return "python_executor" }

func (t *PythonExecutorTool) Description() string {
	return "执行 Python 代码并返回标准输出。适用于复杂计算、日期推算和数据处理。代码需通过 print 输出结果。"
}

func (t *PythonExecutorTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: objectSchema(map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "要执行的 Python 代码",
				},
			}, "code"),
		},
	}
}

func (t *PythonExecutorTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	code, ok := stringArg(args, "code")
	if !ok {
		return errorResult(t.Name(), "缺少必需参数 'code'")
	}

	tmpFile, err := os.CreateTemp("", "lexhub-*.py")
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("failed to create temp file: %v", err))
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.WriteString(code); err != nil {
		tmpFile.Close()
		return errorResult(t.Name(), fmt.Sprintf("failed to write temp file: %v", err))
	}
	tmpFile.Close()

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, pythonBinary(), filepath.Clean(tmpPath))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return errorResult(t.Name(), fmt.Sprintf("执行超时（%v）", t.timeout))
	}

	returnCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			returnCode = exitErr.ExitCode()
		} else {
			return errorResult(t.Name(), fmt.Sprintf("failed to run python: %v", runErr))
		}
	}

	content := fmt.Sprintf("stdout:\n%s\nstderr:\n%s\nreturn_code: %d",
		stdout.String(), stderr.String(), returnCode)
	if returnCode != 0 {
		return errorResult(t.Name(), content)
	}
	return successResult(t.Name(), content)
}

func pythonBinary() string {
	if _, err := exec.LookPath("python3"); err == nil {
		return "python3"
	}
	return "python"
}
