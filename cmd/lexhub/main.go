// Command lexhub is the CLI for the legal consultation runtime.
//
// Usage:
//
//	lexhub chat
//	lexhub ask "公司裁员赔偿怎么算"
//	lexhub stats
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/lexhub/lexhub/pkg/agent"
	"github.com/lexhub/lexhub/pkg/config"
	"github.com/lexhub/lexhub/pkg/embedders"
	"github.com/lexhub/lexhub/pkg/flow"
	"github.com/lexhub/lexhub/pkg/llms"
	"github.com/lexhub/lexhub/pkg/logger"
	"github.com/lexhub/lexhub/pkg/memory"
	"github.com/lexhub/lexhub/pkg/observability"
	"github.com/lexhub/lexhub/pkg/tools"
	"github.com/lexhub/lexhub/pkg/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Chat    ChatCmd    `cmd:"" default:"1" help:"Start an interactive consultation session."`
	Ask     AskCmd     `cmd:"" help:"Ask a single question and exit."`
	Stats   StatsCmd   `cmd:"" help:"Show memory statistics."`

	Model     string `help:"Chat model name (overrides LLM_MODEL)."`
	APIKey    string `name:"api-key" help:"API key (defaults to environment variable)."`
	BaseURL   string `name:"base-url" help:"Custom API base URL."`
	Trace     bool   `help:"Export spans to stderr."`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"warn"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("lexhub version %s\n", version)
	return nil
}

// buildFlow assembles the full runtime: config pipeline, LLM provider,
// embedder, vector store, memory manager, tool registry, and flow.
func buildFlow(ctx context.Context, cli *CLI) (*flow.LegalFlow, func(), error) {
	cfg := &config.Config{}
	cfg.LLM.Model = cli.Model
	cfg.LLM.APIKey = cli.APIKey
	cfg.LLM.BaseURL = cli.BaseURL
	if err := config.ProcessConfigPipeline(cfg); err != nil {
		return nil, nil, err
	}

	if _, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled: cli.Trace,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	llm, err := llms.NewOpenAIProvider(cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	// Long-term memory is best-effort: the runtime stays usable with
	// only session memory when the embedder or store cannot start.
	var embedder embedders.Embedder
	var store vector.Provider
	if e, err := embedders.NewOpenAIEmbedder(cfg.Embedder); err != nil {
		logger.GetLogger().Warn("Embedder unavailable, long-term memory disabled", "error", err)
	} else if s, err := vector.NewProvider(cfg.VectorDB); err != nil {
		logger.GetLogger().Warn("Vector store unavailable, long-term memory disabled", "error", err)
	} else {
		embedder = e
		store = s
	}

	mem := memory.NewManager(cfg.Memory, cfg.VectorDB, embedder, store)

	registry, err := tools.NewDefaultRegistry(cfg.Tools)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	cleanup := func() {
		if err := mem.Close(); err != nil {
			logger.GetLogger().Warn("Memory close failed", "error", err)
		}
	}
	return flow.NewLegalFlow(cfg, llm, mem, registry), cleanup, nil
}

// ChatCmd runs the interactive REPL.
type ChatCmd struct {
	Session    string `help:"Session ID to resume (default: fresh session)."`
	ShowStatus bool   `name:"show-status" help:"Print agent progress updates."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	f, cleanup, err := buildFlow(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.ShowStatus {
		f.SetStatusCallback(func(phase, message, _ string) {
			fmt.Printf("  %s %s\n", phase, message)
		})
	}

	sessionID := c.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	fmt.Println("⚖️  法律咨询助手已就绪。输入问题开始咨询，/reset 清空会话，/stats 查看统计，/exit 退出。")
	fmt.Printf("会话 ID：%s\n\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/exit", "/quit":
			fmt.Println("再见！")
			return nil
		case "/reset":
			f.ResetSession(sessionID)
			fmt.Println("会话已重置。")
			continue
		case "/stats":
			printStats(ctx, f)
			continue
		}

		answer := f.Execute(ctx, sessionID, line)
		fmt.Printf("\n%s\n\n", answer)

		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// AskCmd answers one question and exits.
type AskCmd struct {
	Question string `arg:"" help:"The question to ask."`
	Session  string `help:"Session ID (default: fresh session)."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx := context.Background()

	f, cleanup, err := buildFlow(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionID := c.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	fmt.Println(f.Execute(ctx, sessionID, c.Question))
	return nil
}

// StatsCmd prints memory statistics.
type StatsCmd struct{}

func (c *StatsCmd) Run(cli *CLI) error {
	ctx := context.Background()

	f, cleanup, err := buildFlow(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	printStats(ctx, f)
	return nil
}

func printStats(ctx context.Context, f *flow.LegalFlow) {
	stats, err := f.Stats(ctx)
	if err != nil {
		fmt.Printf("统计信息不可用：%v\n", err)
		return
	}
	fmt.Println("记忆统计：")
	fmt.Printf("  长期记忆总数：%d\n", stats.TotalRecords)
	fmt.Printf("  - 对话记录：%d\n", stats.ConversationCount)
	fmt.Printf("  - 精炼上下文：%d\n", stats.RefinedContextCount)
	fmt.Printf("  - 工具描述：%d\n", stats.ToolDescriptionCount)
	fmt.Printf("  活跃会话数：%d\n", stats.ActiveSessions)
	fmt.Printf("  专业领域：%d 个\n", len(agent.SpecialistDomains))
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("lexhub"),
		kong.Description("lexhub - 多智能体法律咨询助手"),
		kong.UsageOnError(),
	)

	level, _ := logger.ParseLevel(cli.LogLevel)
	output := os.Stderr
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer closeFile()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
