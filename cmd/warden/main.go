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

	"github.com/horizon-devs/warden/automod/engine"
	"github.com/horizon-devs/warden/automod/keyword"
	"github.com/horizon-devs/warden/automod/setstore"
	"github.com/horizon-devs/warden/pkg/metrics"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "chat moderation daemon (rate limits, scheduled actions, vote promotion)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "sets-file-json",
			Usage:   "JSON file with named sets; the 'blocklist' set replaces the built-in phrase blocklist",
			EnvVars: []string{"WARDEN_SETS_FILE_JSON"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		filterCheckCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "discord-token",
			Usage:   "Discord bot token. When empty, only the admin API runs and moderation actions fail",
			EnvVars: []string{"WARDEN_DISCORD_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "vote-channel",
			Usage:   "channel ID where reactions count as votes; empty means every channel",
			EnvVars: []string{"WARDEN_VOTE_CHANNEL"},
		},
		&cli.StringFlag{
			Name:    "starboard-channel",
			Usage:   "channel ID which promoted messages are re-posted to",
			EnvVars: []string{"WARDEN_STARBOARD_CHANNEL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs; empty disables",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for flag and cache state; in-process stores are used when empty",
			EnvVars: []string{"WARDEN_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook for new-flag alerts",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.DurationFlag{
			Name:    "window",
			Usage:   "sliding window for burst detection",
			Value:   engine.DefaultConfig().Window,
			EnvVars: []string{"WARDEN_WINDOW"},
		},
		&cli.IntFlag{
			Name:    "burst-threshold",
			Usage:   "events within the window which count as a burst",
			Value:   engine.DefaultConfig().BurstThreshold,
			EnvVars: []string{"WARDEN_BURST_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "promotion-threshold",
			Usage:   "distinct up-votes needed to promote a message",
			Value:   engine.DefaultConfig().PromotionThreshold,
			EnvVars: []string{"WARDEN_PROMOTION_THRESHOLD"},
		},
		&cli.DurationFlag{
			Name:    "tick",
			Usage:   "how often due scheduled actions are executed",
			Value:   engine.DefaultConfig().TickInterval,
			EnvVars: []string{"WARDEN_TICK"},
		},
		&cli.DurationFlag{
			Name:    "reminder-max",
			Usage:   "longest accepted reminder delay",
			Value:   engine.DefaultConfig().MaxReminderDelay,
			EnvVars: []string{"WARDEN_REMINDER_MAX"},
		},
		&cli.DurationFlag{
			Name:    "burst-restriction",
			Usage:   "length of the mute applied automatically on a burst; zero disables",
			Value:   engine.DefaultConfig().BurstRestriction,
			EnvVars: []string{"WARDEN_BURST_RESTRICTION"},
		},
		&cli.Int64Flag{
			Name:    "restriction-quota",
			Usage:   "max automatic restrictions per community per hour; zero disables the limit",
			Value:   engine.DefaultConfig().RestrictionQuota,
			EnvVars: []string{"WARDEN_RESTRICTION_QUOTA"},
		},
		&cli.DurationFlag{
			Name:    "flag-cooldown",
			Usage:   "suppress repeat flags for the same user for this long; zero disables",
			Value:   0,
			EnvVars: []string{"WARDEN_FLAG_COOLDOWN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger := configLogger(cctx)

		shutdownOTEL := configOTEL(ctx, "warden")
		defer shutdownOTEL()

		engConfig := engine.DefaultConfig()
		engConfig.Window = cctx.Duration("window")
		engConfig.BurstThreshold = cctx.Int("burst-threshold")
		engConfig.PromotionThreshold = cctx.Int("promotion-threshold")
		engConfig.TickInterval = cctx.Duration("tick")
		engConfig.MaxReminderDelay = cctx.Duration("reminder-max")
		engConfig.BurstRestriction = cctx.Duration("burst-restriction")
		engConfig.RestrictionQuota = cctx.Int64("restriction-quota")
		engConfig.Logger = logger

		srv, err := NewServer(ctx, Config{
			Logger:           logger,
			Bind:             cctx.String("bind"),
			DiscordToken:     cctx.String("discord-token"),
			VoteChannel:      cctx.String("vote-channel"),
			StarboardChannel: cctx.String("starboard-channel"),
			RedisURL:         cctx.String("redis-url"),
			SetsFileJSON:     cctx.String("sets-file-json"),
			SlackWebhookURL:  cctx.String("slack-webhook-url"),
			FlagCooldown:     cctx.Duration("flag-cooldown"),
			Engine:           engConfig,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := metrics.RunServer(ctx, cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run warden service: %w", err)
		}
		return nil
	},
}

var filterCheckCmd = &cli.Command{
	Name:  "filter-check",
	Usage: "check lines of text from stdin against the phrase blocklist",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := configLogger(cctx)

		filter, err := loadFilter(ctx, cctx.String("sets-file-json"), logger)
		if err != nil {
			return err
		}

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if phrase, ok := filter.Match(line); ok {
				fmt.Printf("MATCH\t%s\t%s\n", phrase, line)
			}
		}
		return scanner.Err()
	},
}

// Builds the content filter from the 'blocklist' set in the given JSON file, falling back to the built-in list.
func loadFilter(ctx context.Context, setsFile string, logger *slog.Logger) (*keyword.Filter, error) {
	phrases, err := loadBlocklist(ctx, setsFile, logger)
	if err != nil {
		return nil, err
	}
	if phrases == nil {
		phrases = keyword.DefaultBlocklist
	}
	filter := keyword.NewFilter(phrases)
	logger.Info("content filter ready", "phrases", filter.Len())
	return filter, nil
}

func loadBlocklist(ctx context.Context, setsFile string, logger *slog.Logger) ([]string, error) {
	if setsFile == "" {
		return nil, nil
	}
	sets := setstore.NewMemSetStore()
	if err := sets.LoadFromFileJSON(setsFile); err != nil {
		return nil, fmt.Errorf("initializing in-process setstore: %v", err)
	}
	logger.Info("loaded set config from JSON", "path", setsFile)
	phrases, err := sets.Members(ctx, setstore.BlocklistSet)
	if err != nil {
		return nil, err
	}
	if len(phrases) == 0 {
		logger.Warn("sets file has no blocklist set, using built-in phrases", "set", setstore.BlocklistSet)
		return nil, nil
	}
	return phrases, nil
}
