// tradecore — automated intraday options trading engine for NSE.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seenimoa/tradecore/internal/advice"
	"github.com/seenimoa/tradecore/internal/api"
	"github.com/seenimoa/tradecore/internal/broker"
	"github.com/seenimoa/tradecore/internal/bus"
	"github.com/seenimoa/tradecore/internal/chain"
	"github.com/seenimoa/tradecore/internal/config"
	"github.com/seenimoa/tradecore/internal/decision"
	"github.com/seenimoa/tradecore/internal/engine"
	"github.com/seenimoa/tradecore/internal/infra"
	"github.com/seenimoa/tradecore/internal/jobs"
	"github.com/seenimoa/tradecore/internal/marketdata"
	"github.com/seenimoa/tradecore/internal/orders"
	"github.com/seenimoa/tradecore/internal/outbox"
	"github.com/seenimoa/tradecore/internal/risk"
	"github.com/seenimoa/tradecore/internal/sentiment"
	"github.com/seenimoa/tradecore/internal/signals"
	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
	"github.com/seenimoa/tradecore/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tradecore",
	Short: "tradecore — automated intraday options trading for NSE",
	Long: `tradecore
An automated intraday options trading engine for the Indian NSE:
Nifty market data, option chain analytics, sentiment-weighted decision
scoring, risk-gated order execution, and a read-only ops API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tradecore %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading engine",
	Long: `Start the trading engine: market data workers, sentiment refresh,
decision loop, risk-gated execution, outbox relay, and the ops API.

Runs against the paper gateway by default; pass --live to trade through
the Upstox account configured in config.yaml / environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		live, _ := cmd.Flags().GetBool("live")
		if override, _ := cmd.Flags().GetString("log-level"); override != "" {
			cfg.Logging.Level = override
		}
		paper := cfg.App.Paper
		if live {
			paper = false
		}
		return runEngine(paper)
	},
}

func init() {
	runCmd.Flags().Bool("live", false, "trade through the live Upstox gateway instead of paper")
}

func runEngine(paper bool) error {
	log := newLogger(cfg.Logging)

	store, err := storage.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	kv := infra.NewKV("tc:")
	b := bus.New()

	var gw broker.Gateway
	if paper {
		gw = broker.NewPaperGateway(nil)
		log.Info("paper gateway active, no real orders will be placed")
	} else {
		gw = broker.NewUpstoxGateway(broker.UpstoxConfig{
			BaseURL:     cfg.Upstox.BaseURL,
			APIKey:      cfg.Upstox.APIKey,
			APISecret:   cfg.Upstox.APISecret,
			AccessToken: cfg.Upstox.AccessToken,
			Timeout:     cfg.Upstox.Timeout,
		}, log)
		log.Warn("live gateway active, orders will reach the exchange")
	}

	market := marketdata.New(store, gw, kv, log, cfg.Engine.InstrumentKey, cfg.Signals.VolSpikeAtrJumpPct)

	providers := []sentiment.Provider{
		sentiment.NewNewsFeedProvider(nil),
		sentiment.NewPulsePageProvider("", "", cfg.Social.Keywords),
	}
	sentimentSvc := sentiment.New(store, providers, market, log)

	chainSvc := chain.New(gw, kv, log)
	tmpl := signals.NewPCRTemplate()
	tmpl.OiBullishMax = cfg.Chain.PCR.OiBullishMax
	tmpl.OiBearishMin = cfg.Chain.PCR.OiBearishMin
	tmpl.VolumeBullishMax = cfg.Chain.PCR.VolumeBullishMax
	tmpl.VolumeBearishMin = cfg.Chain.PCR.VolumeBearishMin
	sigSource := signals.NewChainSource(chainSvc, store, tmpl, cfg.Chain.Underlying, log)

	riskSvc := risk.New(store, kv, log, models.RiskConfig{
		Enabled:         cfg.Risk.Enabled,
		MaxDailyLoss:    cfg.Risk.MaxDailyLoss,
		LotsCap:         cfg.Risk.LotsCap,
		OrdersPerMinCap: cfg.Risk.OrdersPerMinCap,
		PerOrderRiskPct: cfg.Risk.PerOrderRiskPct,
	}, cfg.Risk.LotSize)
	if cfg.Risk.KillSwitchOpenNew {
		riskSvc.SetKillSwitch(true)
		log.Warn("kill switch engaged from config, new opens blocked")
	}

	ordersSvc := orders.New(store, gw, riskSvc, kv, log, cfg.Risk.MaxSpreadPct)
	adviceSvc := advice.New(store, ordersSvc, log)

	decisionSvc := decision.New(store, market, sigSource, kv, log, decision.Config{
		AdviceTTL:           cfg.Decision.AdviceTTL(),
		Deadband:            cfg.Decision.Deadband,
		Qty:                 cfg.Decision.Qty,
		MinAccuracyForBoost: cfg.Decision.MinAccuracyForBoost,
		Weights: models.StrategyWeights{
			Sentiment: cfg.Decision.WeightSentiment,
			Regime:    cfg.Decision.WeightRegime,
			Momentum:  cfg.Decision.WeightMomentum,
		},
	})

	relay := outbox.NewRelay(store, b, log)
	tokenJob := jobs.NewTokenRefreshJob(gw, b, log,
		cfg.Upstox.Refresh.Enabled && !paper,
		cfg.Upstox.Refresh.OnStartup,
		cfg.Upstox.Refresh.Cron)

	eng := engine.New(*cfg, engine.Deps{
		Store:     store,
		KV:        kv,
		Bus:       b,
		Market:    market,
		Sentiment: sentimentSvc,
		Decision:  decisionSvc,
		Risk:      riskSvc,
		Advices:   adviceSvc,
		Relay:     relay,
		TokenJob:  tokenJob,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API, eng, store, kv, b, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.WithError(err).Error("ops server failed")
			}
		}()
	}

	eng.Start()
	log.WithFields(logrus.Fields{
		"instrument": cfg.Engine.InstrumentKey,
		"tick_ms":    cfg.Engine.TickMs,
		"paper":      paper,
	}).Info("tradecore running")

	<-ctx.Done()
	log.Info("shutdown signal received")
	eng.Stop()
	if err := store.Save(); err != nil {
		log.WithError(err).Warn("final snapshot save failed")
	}
	return nil
}

// newLogger builds the process logger from config.
func newLogger(lc config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(lc.Level); err == nil {
		log.SetLevel(level)
	}
	if lc.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  tradecore — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", utils.MarketStatus())
		fmt.Printf("  Time (IST):    %s\n", utils.FormatDateTimeIST(utils.NowIST()))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Instrument:    %s\n", cfg.Engine.InstrumentKey)
		fmt.Printf("    Mode:          %s\n", tradingMode(cfg.App.Paper))
		fmt.Printf("    Risk Engine:   enabled=%v daily_loss=%s lots_cap=%d\n",
			cfg.Risk.Enabled, utils.FormatINR(cfg.Risk.MaxDailyLoss), cfg.Risk.LotsCap)
		fmt.Printf("    Ops API:       %s:%d (enabled=%v)\n", cfg.API.Host, cfg.API.Port, cfg.API.Enabled)
		fmt.Println()

		fmt.Println("  Credentials:")
		keys := config.CheckAPIKeys(cfg)
		for _, k := range keys {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-22s %s\n", k.Name+":", status)
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func tradingMode(paper bool) string {
	if paper {
		return "paper"
	}
	return "live"
}
