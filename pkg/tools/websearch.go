package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lexhub/lexhub/pkg/httpclient"
	"github.com/lexhub/lexhub/pkg/llms"
)

const bochaSearchURL = "https://api.bochaai.com/v1/web-search"

// WebSearchTool queries the Bocha web search API. This is the primary
// retrieval path for statutes, cases, and current legal information.
type WebSearchTool struct {
	apiKey     string
	maxResults int
	endpoint   string
	client     *httpclient.Client
}

type bochaRequest struct {
	Query   string `json:"query"`
	Summary bool   `json:"summary"`
	Count   int    `json:"count"`
}

type bochaResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data struct {
		WebPages struct {
			Value []bochaPage `json:"value"`
		} `json:"webPages"`
	} `json:"data"`
}

type bochaPage struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet"`
	Summary       string `json:"summary,omitempty"`
	DatePublished string `json:"datePublished,omitempty"`
}

func NewWebSearchTool(apiKey string, maxResults, httpTimeout int) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = 8
	}
	timeout := time.Duration(httpTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebSearchTool{
		apiKey:     apiKey,
		maxResults: maxResults,
		endpoint:   bochaSearchURL,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
		),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "联网搜索法律法规、司法解释、案例和其他最新信息。输入查询关键词，返回带来源链接的搜索结果。"
}

func (t *WebSearchTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: objectSchema(map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "搜索关键词，例如：劳动合同法 经济补偿 标准",
				},
			}, "query"),
		},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	query, ok := stringArg(args, "query")
	if !ok {
		return errorResult(t.Name(), "缺少必需参数 'query'")
	}
	if t.apiKey == "" {
		return errorResult(t.Name(), "web search unavailable: BOCHA_API_KEY is not configured")
	}

	body, err := json.Marshal(bochaRequest{
		Query:   query,
		Summary: true,
		Count:   t.maxResults,
	})
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("failed to build search request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("failed to create search request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	httpResp, err := t.client.Do(req)
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("search request failed: %v", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("failed to read search response: %v", err))
	}

	var resp bochaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return errorResult(t.Name(), fmt.Sprintf("failed to parse search response: %v", err))
	}
	if resp.Code != 200 {
		return errorResult(t.Name(), fmt.Sprintf("search API error %d: %s", resp.Code, resp.Msg))
	}

	pages := resp.Data.WebPages.Value
	if len(pages) == 0 {
		return successResult(t.Name(), "未找到相关搜索结果。")
	}
	if len(pages) > t.maxResults {
		pages = pages[:t.maxResults]
	}

	return successResult(t.Name(), formatSearchResults(query, pages))
}

func formatSearchResults(query string, pages []bochaPage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "搜索「%s」的结果：\n", query)
	for i, p := range pages {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, p.Name)
		fmt.Fprintf(&b, "   链接：%s\n", p.URL)
		summary := p.Summary
		if summary == "" {
			summary = p.Snippet
		}
		if summary != "" {
			fmt.Fprintf(&b, "   摘要：%s\n", summary)
		}
		if p.DatePublished != "" {
			fmt.Fprintf(&b, "   发布时间：%s\n", p.DatePublished)
		}
	}
	return b.String()
}
