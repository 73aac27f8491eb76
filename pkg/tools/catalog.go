package tools

import (
	"github.com/lexhub/lexhub/pkg/config"
)

// NewDefaultRegistry builds the standard catalog in its canonical
// order.
func NewDefaultRegistry(cfg config.ToolsConfig) (*Registry, error) {
	webSearch := NewWebSearchTool(cfg.BochaAPIKey, cfg.WebSearchMaxResults, cfg.HTTPTimeout)

	registry := NewRegistry()
	catalog := []Tool{
		webSearch,
		NewCalculatorTool(),
		NewPythonExecutorTool(cfg.PythonTimeout),
		NewFileReadTool(),
		NewDatetimeTool(),
		NewWeatherTool(cfg.WeatherAPIKey, cfg.HTTPTimeout, webSearch),
		NewWebCrawlerTool(cfg.HTTPTimeout),
		NewDocumentGeneratorTool(cfg.OutputDir),
	}
	for _, tool := range catalog {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
