package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/lexhub/lexhub/pkg/llms"
)

const (
	maxCrawlURLs  = 5
	maxCrawlChars = 50000
)

// WebCrawlerTool fetches web pages and extracts their readable text,
// dropping navigation and boilerplate. Agents use it to read the full
// text behind promising search results.
type WebCrawlerTool struct {
	timeout time.Duration
}

func NewWebCrawlerTool(httpTimeout int) *WebCrawlerTool {
	timeout := time.Duration(httpTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebCrawlerTool{timeout: timeout}
}

func (t *WebCrawlerTool) Name() string { return "web_crawler" }

func (t *WebCrawlerTool) Description() string {
	return "抓取网页并提取正文内容，用于阅读搜索结果中法条原文、判决书或文章的完整内容。一次最多抓取 5 个网址。"
}

func (t *WebCrawlerTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: objectSchema(map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "要抓取的网址，多个网址用逗号或换行分隔",
				},
			}, "url"),
		},
	}
}

func (t *WebCrawlerTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	urls := extractURLArgs(args)
	if len(urls) == 0 {
		return errorResult(t.Name(), "缺少必需参数 'url'")
	}
	if len(urls) > maxCrawlURLs {
		urls = urls[:maxCrawlURLs]
	}

	var b strings.Builder
	total := 0
	for _, u := range urls {
		article, err := readability.FromURL(u, t.timeout)
		if err != nil {
			fmt.Fprintf(&b, "[%s] 抓取失败: %v\n\n", u, err)
			continue
		}

		text := strings.TrimSpace(article.TextContent)
		remaining := maxCrawlChars - total
		if remaining <= 0 {
			break
		}
		if len([]rune(text)) > remaining {
			text = string([]rune(text)[:remaining]) + "\n...（内容已截断）"
		}
		total += len([]rune(text))

		fmt.Fprintf(&b, "【%s】\n来源: %s\n%s\n\n", article.Title, u, text)
	}

	content := strings.TrimSpace(b.String())
	if content == "" {
		return errorResult(t.Name(), "所有网址均抓取失败")
	}
	return successResult(t.Name(), content)
}

func extractURLArgs(args map[string]any) []string {
	var raw []string
	if s, ok := stringArg(args, "url"); ok {
		raw = strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || r == '\n' || r == ' '
		})
	} else if list, ok := args["urls"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	seen := make(map[string]bool)
	var urls []string
	for _, u := range raw {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}
