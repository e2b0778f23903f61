package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"quantia/internal/agent"
	"quantia/internal/config"
	"quantia/internal/domain"
	"quantia/internal/embedding"
	"quantia/internal/graph"
	"quantia/internal/memory"
	"quantia/internal/metrics"
	"quantia/internal/provider"
	"quantia/internal/retriever"
	"quantia/internal/seed"
	"quantia/internal/store"
	"quantia/internal/tool"
	"quantia/internal/vectorindex"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// A local .env is the usual place for OPENAI_API_KEY in development.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "quantia",
		Short:   "QuantIA: personal health assistant engine",
		Long:    "QuantIA orchestrates LLM tool calls over personal health data: biometrics, clinical events, documents and conversational memory.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.quantia/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(askCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(indexCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(proactiveCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	applyLogLevel(cfg.General.LogLevel)
	return cfg
}

func applyLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
}

// app bundles the wired engine and everything that needs closing.
type app struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	retriever *retriever.Retriever
	index     *vectorindex.Index
	graph     domain.GraphStore
	engine    *agent.Engine
}

func (a *app) Close(ctx context.Context) {
	if a.graph != nil {
		if err := a.graph.Close(ctx); err != nil {
			logger.Warn("graph close failed", "err", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("store close failed", "err", err)
		}
	}
}

// bootstrap wires the full engine. The graph store is optional: a failed
// connection logs a warning and the graph tool degrades to its contained
// unavailable message.
func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Memory.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder := embedding.NewService(embedding.ServiceConfig{
		APIKey:    cfg.OpenAI.APIKey,
		APIBase:   cfg.OpenAI.APIBase,
		Model:     cfg.OpenAI.EmbedModel,
		Dimension: cfg.OpenAI.Dimension,
		Logger:    logger,
	})
	index := vectorindex.New(cfg.Index.Dir, st, embedder, logger)
	rt := retriever.New(retriever.Config{
		Store:     st,
		Embedder:  embedder,
		Index:     index,
		ChunkSize: cfg.Index.ChunkSize,
		Overlap:   cfg.Index.Overlap,
		Logger:    logger,
	})

	var graphStore domain.GraphStore
	if cfg.Graph.Enabled {
		gs := graph.NewNeo4jStore(graph.Config{
			URI:      cfg.Graph.URI,
			Username: cfg.Graph.Username,
			Password: cfg.Graph.Password,
			Logger:   logger,
		})
		if err := gs.Connect(ctx); err != nil {
			logger.Warn("knowledge graph unavailable, continuing without it", "err", err)
		} else {
			graphStore = gs
		}
	}

	registry := tool.NewRegistry(logger)
	registry.Register(tool.NewBiometricTool(st))
	registry.Register(tool.NewEventsTool(st))
	registry.Register(tool.NewDocumentsTool(rt))
	registry.Register(tool.NewSummaryTool(st))
	registry.Register(tool.NewCompareTool(st))
	registry.Register(tool.NewCorrelationTool(st))
	registry.Register(tool.NewTreatmentTool(st))
	registry.Register(tool.NewScoreTool(st))
	registry.Register(tool.NewGraphTool(graphStore))

	var prov domain.Provider
	if cfg.OpenAI.APIKey != "" {
		prov = provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			APIBase: cfg.OpenAI.APIBase,
			Model:   cfg.OpenAI.ChatModel,
			Timeout: time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
	} else {
		logger.Warn("no OpenAI API key configured; analyze will return configuration errors")
	}

	mem := memory.NewManager(st, cfg.Memory.HistoryTurns, logger)

	engine := agent.NewEngine(agent.EngineConfig{
		Provider: prov,
		Tools:    registry,
		Memory:   mem,
		Model:    cfg.OpenAI.ChatModel,
		Logger:   logger,
	})

	return &app{
		cfg:       cfg,
		store:     st,
		retriever: rt,
		index:     index,
		graph:     graphStore,
		engine:    engine,
	}, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func askCmd() *cobra.Command {
	var ownerID int64
	var convID, role string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one analyze turn and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			resp := a.engine.Analyze(ctx, agent.Request{
				Query:          strings.Join(args, " "),
				OwnerID:        ownerID,
				ConversationID: convID,
				Role:           role,
			})
			return printJSON(resp)
		},
	}
	cmd.Flags().Int64Var(&ownerID, "user", 0, "owner id the question is about (required)")
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation id to continue")
	cmd.Flags().StringVar(&role, "role", "patient", "caller role: patient or doctor")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func chatCmd() *cobra.Command {
	var ownerID int64
	var role string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			fmt.Println("QuantIA chat. Empty line or Ctrl-D to exit.")
			scanner := bufio.NewScanner(os.Stdin)
			convID := ""
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				query := strings.TrimSpace(scanner.Text())
				if query == "" {
					break
				}
				resp := a.engine.Analyze(ctx, agent.Request{
					Query:          query,
					OwnerID:        ownerID,
					ConversationID: convID,
					Role:           role,
				})
				convID = resp.ConversationID
				fmt.Println(resp.FinalText)
				for _, ref := range resp.References {
					fmt.Printf("  [%s]\n", ref.Title)
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().Int64Var(&ownerID, "user", 0, "owner id to converse about (required)")
	cmd.Flags().StringVar(&role, "role", "patient", "caller role: patient or doctor")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func indexCmd() *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			n, err := a.index.Build(ctx, ownerID)
			if err != nil {
				return err
			}
			logger.Info("index rebuilt", "user", ownerID, "vectors", n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&ownerID, "user", 0, "owner id to rebuild (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func seedCmd() *cobra.Command {
	var ownerID int64
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML fixture of clinical data for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			loader := seed.NewLoader(a.store, a.retriever, logger)
			counts, err := loader.LoadFile(ctx, file, ownerID)
			if err != nil {
				return err
			}
			logger.Info("seed complete",
				"user", ownerID,
				"observations", counts.Observations,
				"events", counts.Events,
				"treatments", counts.Treatments,
				"documents", counts.Documents,
			)
			return nil
		},
	}
	cmd.Flags().Int64Var(&ownerID, "user", 0, "owner id to seed (required)")
	cmd.Flags().StringVar(&file, "file", "", "path to the YAML fixture (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func proactiveCmd() *cobra.Command {
	var ownerID int64
	var days int
	var codes []string

	cmd := &cobra.Command{
		Use:   "proactive",
		Short: "Scan one user for biometric outliers and suggest a check-in question",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p := agent.NewProactive(a.store, a.store, logger)
			alerts, err := p.ScanOutliers(ctx, ownerID, days, codes)
			if err != nil {
				return err
			}
			question, err := p.Question(ctx, ownerID)
			if err != nil {
				return err
			}
			if alerts == nil {
				alerts = []agent.OutlierAlert{}
			}

			return printJSON(struct {
				Alerts   []agent.OutlierAlert `json:"alerts"`
				Question string               `json:"question"`
			}{Alerts: alerts, Question: question})
		},
	}
	cmd.Flags().Int64Var(&ownerID, "user", 0, "owner id to scan (required)")
	cmd.Flags().IntVar(&days, "days", 30, "trailing window in days for the outlier scan")
	cmd.Flags().StringArrayVar(&codes, "code", []string{"glucose"}, "observation code to scan, repeatable")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print engine status and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			out := struct {
				agent.StatusInfo
				Metrics map[string]int64 `json:"metrics"`
			}{
				StatusInfo: a.engine.Status(),
				Metrics:    metrics.Collector.Snapshot(),
			}
			return printJSON(out)
		},
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
