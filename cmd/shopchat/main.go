package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"shopchat/internal/adapter/llm"
	"shopchat/internal/adapter/store"
	"shopchat/internal/adapter/tool"
	"shopchat/internal/domain"
	"shopchat/internal/infra/config"
	"shopchat/internal/infra/logger"
	"shopchat/internal/infra/tracer"
	"shopchat/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "encrypt":
			if err := runEncrypt(); err != nil {
				fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`shopchat - support chat backend for the paint & decor shop

USAGE:
    shopchat [COMMAND] [FLAGS]

COMMANDS:
    encrypt VALUE   Encrypt a secret for use as "enc:..." in config.yaml
                    (reads the passphrase from SHOPCHAT_CONFIG_KEY)

    (no command) - Run the chat loop with existing config

FLAGS:
    -h, --help      Show this help message
    --config PATH   Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (missing file runs with built-in defaults)
    Environment: SHOPCHAT_* variables override config`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SHOPCHAT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func runEncrypt() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: shopchat encrypt VALUE")
	}
	passphrase := os.Getenv("SHOPCHAT_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("SHOPCHAT_CONFIG_KEY is not set")
	}
	encrypted, err := config.EncryptValue(os.Args[2], passphrase)
	if err != nil {
		return err
	}
	fmt.Printf("enc:%s\n", encrypted)
	return nil
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Catalog store
	catalog, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer catalog.Close()

	if cfg.Store.Seed {
		if err := catalog.Seed(ctx); err != nil {
			return fmt.Errorf("seed store: %w", err)
		}
	}

	// 4. Tools
	tools := tool.NewRegistry(log)
	for _, t := range []domain.Tool{
		tool.NewProductSearchTool(catalog, log),
		tool.NewOrderStatusTool(catalog, log),
		tool.NewKnowledgeSearchTool(catalog, log),
	} {
		if err := tools.Register(t); err != nil {
			return fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}

	// 5. Degradation cascade, best tier first
	selector := usecase.NewSelector(cfg.Selector.Apology, log)

	var sweeper *cron.Cron
	if cfg.Orchestration.Enabled {
		affinity, err := usecase.NewAffinityCache(cfg.Affinity.Capacity, cfg.Affinity.TTL, log)
		if err != nil {
			return fmt.Errorf("affinity cache: %w", err)
		}

		sweeper = cron.New()
		if _, err := sweeper.AddFunc(cfg.Affinity.SweepSchedule, func() {
			if n := affinity.EvictExpired(); n > 0 {
				log.Debug("affinity sweep", "evicted", n)
			}
		}); err != nil {
			return fmt.Errorf("affinity sweep schedule: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()

		selector.AddTier("orchestration", func(ctx context.Context) (domain.Responder, error) {
			return buildOrchestrationTier(cfg, tools, affinity, log)
		})
	}

	selector.AddTier("keyword", func(ctx context.Context) (domain.Responder, error) {
		return buildKeywordTier(cfg, tools, log)
	})

	selector.AddTier("static", func(ctx context.Context) (domain.Responder, error) {
		return usecase.NewStaticResponder(staticRulesFromConfig(cfg.Static.Rules), cfg.Static.Fallback), nil
	})

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := selector.Close(shutdownCtx); err != nil {
			log.Error("selector close error", "error", err)
		}
	}()

	// 6. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("shopchat starting",
		"provider", cfg.LLM.DefaultProvider,
		"orchestration", cfg.Orchestration.Enabled,
		"tools", len(tools.List()),
		"store", cfg.Store.Path,
	)

	return chatLoop(ctx, cfg, selector)
}

// chatLoop reads one customer message per line from stdin and answers on
// stdout. History accumulates per process so the lower tiers keep context
// when the orchestration tier is unavailable.
func chatLoop(ctx context.Context, cfg *config.Config, selector *usecase.Selector) error {
	turnTimeout := cfg.Orchestration.TurnTimeout
	if turnTimeout <= 0 {
		turnTimeout = 60 * time.Second
	}

	conversationID := fmt.Sprintf("cli-%d", time.Now().Unix())
	var history []domain.Message

	fmt.Println("Welcome to shopchat. Type your question, or press Ctrl-C to quit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var text string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text = strings.TrimSpace(line)
		}
		if text == "" {
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
		result := selector.Respond(turnCtx, domain.TurnRequest{
			ConversationID: conversationID,
			UserText:       text,
			History:        history,
		})
		cancel()

		for _, msg := range result.Messages {
			fmt.Println(msg)
		}

		now := time.Now()
		history = append(history,
			domain.Message{Role: domain.RoleUser, Content: text, Timestamp: now},
			domain.Message{Role: domain.RoleAssistant, Content: result.Text, Timestamp: now},
		)
	}
}

// buildOrchestrationTier wires Tier 1: LLM provider, handoff graph,
// affinity cache, history compressor, and the runtime itself.
func buildOrchestrationTier(cfg *config.Config, tools domain.ToolExecutor, affinity *usecase.AffinityCache, log *slog.Logger) (domain.Responder, error) {
	provider, err := llm.NewProvider(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	graph, err := usecase.BuildGraph(
		specialistsFromConfig(cfg.Orchestration.Specialists),
		handoffsFromConfig(cfg.Orchestration.Handoffs),
	)
	if err != nil {
		return nil, fmt.Errorf("handoff graph: %w", err)
	}

	var compressor *usecase.Compressor
	if cfg.Orchestration.TokenBudget > 0 {
		compressor, err = usecase.NewCompressor(cfg.Orchestration.TokenBudget, cfg.Orchestration.KeepRecent, log)
		if err != nil {
			log.Warn("compressor unavailable, history will not be trimmed", "error", err)
		}
	}

	return usecase.NewRuntime(usecase.RuntimeDeps{
		LLM:            provider,
		Tools:          tools,
		Graph:          graph,
		Affinity:       affinity,
		Compressor:     compressor,
		Logger:         log,
		MaxIterations:  cfg.Orchestration.MaxIterations,
		FollowUpMarker: cfg.Orchestration.FollowUpMarker,
	})
}

// buildKeywordTier wires Tier 2: keyword router plus single-specialist calls.
func buildKeywordTier(cfg *config.Config, tools domain.ToolExecutor, log *slog.Logger) (domain.Responder, error) {
	provider, err := llm.NewProvider(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	router, err := usecase.NewKeywordRouter(keywordRulesFromConfig(cfg.Keyword.Rules), cfg.Keyword.DefaultRole)
	if err != nil {
		return nil, fmt.Errorf("keyword router: %w", err)
	}

	var compressor *usecase.Compressor
	if cfg.Orchestration.TokenBudget > 0 {
		compressor, err = usecase.NewCompressor(cfg.Orchestration.TokenBudget, cfg.Orchestration.KeepRecent, log)
		if err != nil {
			log.Warn("compressor unavailable, history will not be trimmed", "error", err)
		}
	}

	return usecase.NewKeywordTier(usecase.KeywordTierDeps{
		Router:      router,
		LLM:         provider,
		Tools:       tools,
		Specialists: specialistsFromConfig(cfg.Orchestration.Specialists),
		Compressor:  compressor,
		Logger:      log,
	})
}

func specialistsFromConfig(in []config.SpecialistConfig) []domain.Specialist {
	out := make([]domain.Specialist, len(in))
	for i, s := range in {
		out[i] = domain.Specialist{
			Name:         s.Name,
			Capability:   s.Capability,
			Instructions: s.Instructions,
			Tools:        s.Tools,
			Orchestrator: s.Orchestrator,
		}
	}
	return out
}

func handoffsFromConfig(in []config.HandoffConfig) []domain.HandoffEdge {
	out := make([]domain.HandoffEdge, len(in))
	for i, h := range in {
		out[i] = domain.HandoffEdge{Source: h.Source, Target: h.Target, Label: h.Label}
	}
	return out
}

func keywordRulesFromConfig(in []config.KeywordRuleConfig) []usecase.KeywordRule {
	out := make([]usecase.KeywordRule, len(in))
	for i, r := range in {
		out[i] = usecase.KeywordRule{Keywords: r.Keywords, Role: r.Role}
	}
	return out
}

func staticRulesFromConfig(in []config.StaticRuleConfig) []usecase.StaticRule {
	out := make([]usecase.StaticRule, len(in))
	for i, r := range in {
		out[i] = usecase.StaticRule{Keywords: r.Keywords, Reply: r.Reply}
	}
	return out
}
