package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lexhub/lexhub/pkg/httpclient"
	"github.com/lexhub/lexhub/pkg/llms"
)

const (
	qweatherGeoURL = "https://geoapi.qweather.com/v2/city/lookup"
	qweatherNowURL = "https://devapi.qweather.com/v7/weather/now"
)

// WeatherTool reports current weather through the QWeather API, with a
// web search fallback when no API key is configured or the lookup
// fails. Useful for questions like outdoor-work injury scenarios.
type WeatherTool struct {
	apiKey   string
	geoURL   string
	nowURL   string
	client   *httpclient.Client
	fallback *WebSearchTool
}

type qweatherGeoResponse struct {
	Code     string `json:"code"`
	Location []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"location"`
}

type qweatherNowResponse struct {
	Code string `json:"code"`
	Now  struct {
		Temp      string `json:"temp"`
		Text      string `json:"text"`
		WindDir   string `json:"windDir"`
		WindScale string `json:"windScale"`
		Humidity  string `json:"humidity"`
	} `json:"now"`
}

func NewWeatherTool(apiKey string, httpTimeout int, fallback *WebSearchTool) *WeatherTool {
	timeout := time.Duration(httpTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WeatherTool{
		apiKey: apiKey,
		geoURL: qweatherGeoURL,
		nowURL: qweatherNowURL,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
		),
		fallback: fallback,
	}
}

func (t *WeatherTool) Name() string { return "weather" }

func (t *WeatherTool) Description() string {
	return "查询指定城市的当前天气情况。"
}

func (t *WeatherTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: objectSchema(map[string]any{
				"city": map[string]any{
					"type":        "string",
					"description": "城市名称，例如：北京",
				},
			}, "city"),
		},
	}
}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	city, ok := stringArg(args, "city")
	if !ok {
		return errorResult(t.Name(), "缺少必需参数 'city'")
	}

	if t.apiKey == "" {
		return t.searchFallback(ctx, city)
	}

	content, err := t.lookup(ctx, city)
	if err != nil {
		return t.searchFallback(ctx, city)
	}
	return successResult(t.Name(), content)
}

func (t *WeatherTool) lookup(ctx context.Context, city string) (string, error) {
	geoURL := fmt.Sprintf("%s?location=%s&key=%s", t.geoURL, url.QueryEscape(city), t.apiKey)
	var geo qweatherGeoResponse
	if err := t.getJSON(ctx, geoURL, &geo); err != nil {
		return "", err
	}
	if geo.Code != "200" || len(geo.Location) == 0 {
		return "", fmt.Errorf("city lookup failed with code %s", geo.Code)
	}

	loc := geo.Location[0]
	nowURL := fmt.Sprintf("%s?location=%s&key=%s", t.nowURL, url.QueryEscape(loc.ID), t.apiKey)
	var now qweatherNowResponse
	if err := t.getJSON(ctx, nowURL, &now); err != nil {
		return "", err
	}
	if now.Code != "200" {
		return "", fmt.Errorf("weather lookup failed with code %s", now.Code)
	}

	return fmt.Sprintf("%s当前天气：%s，气温 %s°C，%s %s级，湿度 %s%%",
		loc.Name, now.Now.Text, now.Now.Temp, now.Now.WindDir, now.Now.WindScale, now.Now.Humidity), nil
}

func (t *WeatherTool) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (t *WeatherTool) searchFallback(ctx context.Context, city string) ToolResult {
	if t.fallback == nil {
		return errorResult(t.Name(), "weather unavailable: WEATHER_API_KEY is not configured")
	}
	result := t.fallback.Execute(ctx, map[string]any{"query": city + " 天气 今天"})
	result.ToolName = t.Name()
	return result
}
