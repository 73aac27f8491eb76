package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhub/lexhub/pkg/config"
)

func TestDefaultRegistryCatalogOrder(t *testing.T) {
	registry, err := NewDefaultRegistry(config.ToolsConfig{})
	require.NoError(t, err)

	want := []string{
		"web_search", "calculator", "python_executor", "file_read",
		"datetime", "weather", "web_crawler", "generate_legal_document",
	}
	defs := registry.Definitions()
	require.Len(t, defs, len(want))
	for i, name := range want {
		assert.Equal(t, name, defs[i].Function.Name)
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(NewCalculatorTool()))
	assert.Error(t, registry.Register(NewCalculatorTool()))
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	registry := NewRegistry()
	result := registry.Execute(context.Background(), "no_such_tool", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestParseArgumentsJSONObject(t *testing.T) {
	registry, err := NewDefaultRegistry(config.ToolsConfig{})
	require.NoError(t, err)

	args := registry.ParseArguments("web_search", `{"query":"劳动法"}`)
	assert.Equal(t, "劳动法", args["query"])
}

func TestParseArgumentsBareStringCoercion(t *testing.T) {
	registry, err := NewDefaultRegistry(config.ToolsConfig{})
	require.NoError(t, err)

	tests := []struct {
		tool string
		raw  string
		key  string
	}{
		{"web_search", "劳动合同法 赔偿", "query"},
		{"calculator", "3 * 8000", "expression"},
		{"web_crawler", "https://example.com/law", "url"},
		{"weather", "北京", "city"},
		{"python_executor", "print(1)", "code"},
		{"file_read", "/tmp/contract.pdf", "file_path"},
	}
	for _, tt := range tests {
		args := registry.ParseArguments(tt.tool, tt.raw)
		assert.Equal(t, tt.raw, args[tt.key], "tool %s", tt.tool)
	}
}

func TestParseArgumentsQuotedString(t *testing.T) {
	registry, err := NewDefaultRegistry(config.ToolsConfig{})
	require.NoError(t, err)

	args := registry.ParseArguments("web_search", `"离婚 财产分割"`)
	assert.Equal(t, "离婚 财产分割", args["query"])
}

func TestCalculator(t *testing.T) {
	tool := NewCalculatorTool()

	tests := []struct {
		expression string
		want       string
	}{
		{"8000 * 3", "24000"},
		{"(5000 + 3000) / 2", "4000"},
		{"pow(2, 10)", "1024"},
	}
	for _, tt := range tests {
		result := tool.Execute(context.Background(), map[string]any{"expression": tt.expression})
		require.True(t, result.Success, "expression %q: %s", tt.expression, result.Error)
		assert.Contains(t, result.Content, tt.want)
	}
}

func TestCalculatorInvalidExpression(t *testing.T) {
	tool := NewCalculatorTool()
	result := tool.Execute(context.Background(), map[string]any{"expression": "3 +* 5"})
	assert.False(t, result.Success)
}

func TestCalculatorMissingArg(t *testing.T) {
	tool := NewCalculatorTool()
	result := tool.Execute(context.Background(), map[string]any{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "expression")
}

func TestDatetime(t *testing.T) {
	tool := NewDatetimeTool()
	tool.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	}

	result := tool.Execute(context.Background(), nil)
	require.True(t, result.Success)
	assert.Contains(t, result.Content, "2025-03-14 09:30:00")
	assert.Contains(t, result.Content, "星期五")
}

func TestWebSearchBochaResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer bocha-key", r.Header.Get("Authorization"))

		var req bochaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Summary)

		resp := bochaResponse{Code: 200}
		resp.Data.WebPages.Value = []bochaPage{
			{
				Name:          "劳动合同法全文",
				URL:           "https://example.com/labor-law",
				Snippet:       "第四十七条 经济补偿按劳动者在本单位工作的年限...",
				DatePublished: "2024-01-01",
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	tool := NewWebSearchTool("bocha-key", 8, 5)
	tool.endpoint = srv.URL

	result := tool.Execute(context.Background(), map[string]any{"query": "经济补偿 标准"})
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Content, "劳动合同法全文")
	assert.Contains(t, result.Content, "https://example.com/labor-law")
	assert.Contains(t, result.Content, "第四十七条")
}

func TestWebSearchWithoutKey(t *testing.T) {
	tool := NewWebSearchTool("", 8, 5)
	result := tool.Execute(context.Background(), map[string]any{"query": "劳动法"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "BOCHA_API_KEY")
}

func TestWeatherQWeatherLookup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/geo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "北京", r.URL.Query().Get("location"))
		w.Write([]byte(`{"code":"200","location":[{"id":"101010100","name":"北京"}]}`))
	})
	mux.HandleFunc("/now", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "101010100", r.URL.Query().Get("location"))
		w.Write([]byte(`{"code":"200","now":{"temp":"23","text":"晴","windDir":"北风","windScale":"3","humidity":"40"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tool := NewWeatherTool("qweather-key", 5, nil)
	tool.geoURL = srv.URL + "/geo"
	tool.nowURL = srv.URL + "/now"

	result := tool.Execute(context.Background(), map[string]any{"city": "北京"})
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Content, "北京当前天气：晴")
	assert.Contains(t, result.Content, "23°C")
}

func TestWeatherWithoutKeyAndFallback(t *testing.T) {
	tool := NewWeatherTool("", 5, nil)
	result := tool.Execute(context.Background(), map[string]any{"city": "上海"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "WEATHER_API_KEY")
}

func TestFileReadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contract.txt")
	require.NoError(t, os.WriteFile(path, []byte("甲方：某公司\n乙方：张三"), 0644))

	tool := NewFileReadTool()
	result := tool.Execute(context.Background(), map[string]any{"file_path": path})
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Content, "甲方：某公司")
}

func TestFileReadMissingFile(t *testing.T) {
	tool := NewFileReadTool()
	result := tool.Execute(context.Background(), map[string]any{"file_path": "/no/such/file.txt"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "文件不存在")
}

func TestDocumentGeneratorMarkdown(t *testing.T) {
	dir := t.TempDir()
	tool := NewDocumentGeneratorTool(dir)
	tool.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	}

	result := tool.Execute(context.Background(), map[string]any{
		"title":       "民事起诉状",
		"content":     "原告：张三\n被告：某公司",
		"file_format": "markdown",
	})
	require.True(t, result.Success, result.Error)
	require.Contains(t, result.Content, "文件已生成: ")

	path := strings.TrimPrefix(result.Content, "文件已生成: ")
	assert.Equal(t, "民事起诉状_20250314_093000.md", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "# 民事起诉状")
	assert.Contains(t, text, "**生成时间**: 2025-03-14 09:30:00")
	assert.Contains(t, text, "原告：张三")
}

func TestDocumentGeneratorDocx(t *testing.T) {
	dir := t.TempDir()
	tool := NewDocumentGeneratorTool(dir)

	result := tool.Execute(context.Background(), map[string]any{
		"title":   "劳动仲裁申请书",
		"content": "申请人：李四",
	})
	require.True(t, result.Success, result.Error)

	path := strings.TrimPrefix(result.Content, "文件已生成: ")
	assert.Equal(t, ".docx", filepath.Ext(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestDocumentGeneratorMissingArgs(t *testing.T) {
	tool := NewDocumentGeneratorTool(t.TempDir())

	result := tool.Execute(context.Background(), map[string]any{"content": "内容"})
	assert.False(t, result.Success)
	assert.Equal(t, "缺少必需参数 'title'（文书标题）", result.Error)

	result = tool.Execute(context.Background(), map[string]any{"title": "标题"})
	assert.False(t, result.Success)
	assert.Equal(t, "缺少必需参数 'content'（文书内容）", result.Error)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"民事起诉状", "民事起诉状"},
		{"合同 审查 意见", "合同_审查_意见"},
		{"a/b\\c:d", "abcd"},
		{"", "document"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in))
	}
}
