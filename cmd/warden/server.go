package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/horizon-devs/warden/automod/cachestore"
	"github.com/horizon-devs/warden/automod/discord"
	"github.com/horizon-devs/warden/automod/engine"
	"github.com/horizon-devs/warden/automod/flagstore"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	Engine *engine.Engine
	Flags  flagstore.FlagStore

	logger   *slog.Logger
	echo     *echo.Echo
	httpd    *http.Server
	rdb      *redis.Client
	session  *discordgo.Session
	consumer *discord.Consumer
}

type Config struct {
	Logger           *slog.Logger
	Bind             string
	DiscordToken     string
	VoteChannel      string
	StarboardChannel string
	RedisURL         string
	SetsFileJSON     string
	SlackWebhookURL  string
	FlagCooldown     time.Duration
	Engine           engine.Config
}

func NewServer(ctx context.Context, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	blocklist, err := loadBlocklist(ctx, config.SetsFileJSON, logger)
	if err != nil {
		return nil, err
	}

	var cache cachestore.CacheStore
	var flags flagstore.FlagStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		flg, err := flagstore.NewRedisFlagStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis flagstore: %v", err)
		}
		flags = flg
		rdb = flg.Client

		if config.FlagCooldown > 0 {
			csh, err := cachestore.NewRedisCacheStore(config.RedisURL, config.FlagCooldown)
			if err != nil {
				return nil, fmt.Errorf("initializing redis cachestore: %v", err)
			}
			cache = csh
		}
	} else {
		flags = flagstore.NewMemFlagStore()
		if config.FlagCooldown > 0 {
			cache = cachestore.NewMemCacheStore(5_000, config.FlagCooldown)
		}
	}

	flagger := &engine.StoreFlagger{
		Store:  flags,
		Logger: logger,
	}
	if config.SlackWebhookURL != "" {
		flagger.Slack = engine.NewSlackNotifier(config.SlackWebhookURL)
	}

	caps := engine.Capabilities{
		Flagger: flagger,
		Cache:   cache,
	}

	var sess *discordgo.Session
	var actions *discord.Actions
	if config.DiscordToken != "" {
		sess, err = discordgo.New("Bot " + config.DiscordToken)
		if err != nil {
			return nil, fmt.Errorf("initializing discord session: %v", err)
		}
		actions = discord.NewActions(sess, config.StarboardChannel, logger)
		caps.Moderator = actions
		caps.Notifier = actions
		caps.Promoter = actions
	} else {
		logger.Warn("no discord token configured, moderation actions will fail")
	}

	engConfig := config.Engine
	engConfig.Logger = logger
	if blocklist != nil {
		engConfig.Blocklist = blocklist
	}
	eng, err := engine.NewEngine(engConfig, caps)
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}

	srv := &Server{
		Engine:  eng,
		Flags:   flags,
		logger:  logger,
		rdb:     rdb,
		session: sess,
	}
	if sess != nil {
		srv.consumer = &discord.Consumer{
			Engine:      eng,
			Actions:     actions,
			Logger:      logger.With("component", "consumer"),
			VoteChannel: config.VoteChannel,
		}
	}

	srv.echo = srv.newEcho()
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 * (1024 * 1024),
	}
	return srv, nil
}

// registers collectors on creation, so only one may exist per process
var promMiddleware = echoprometheus.NewMiddleware("warden")

func (srv *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(promMiddleware)
	e.Use(otelecho.Middleware("warden"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)
	e.POST("/activity", srv.HandleActivity)
	e.GET("/activity", srv.HandleRecentActivity)
	e.POST("/vote", srv.HandleVote)
	e.GET("/tally", srv.HandleTally)
	e.GET("/schedule", srv.HandleListScheduled)
	e.POST("/schedule/restriction", srv.HandleScheduleRestriction)
	e.POST("/schedule/reminder", srv.HandleScheduleReminder)
	e.DELETE("/schedule/:id", srv.HandleCancel)
	e.POST("/lift", srv.HandleLift)
	e.GET("/flags", srv.HandleGetFlags)
	e.DELETE("/flags", srv.HandleClearFlag)
	e.GET("/flagged", srv.HandleFlagged)
	return e
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Runs the engine loops, the admin API, and (if configured) the Discord consumer, until the context is cancelled or one of them fails.
func (srv *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Engine.Run(ctx)
	})

	g.Go(func() error {
		srv.logger.Info("starting admin API", "bind", srv.httpd.Addr)
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.logger.Info("shutting down admin API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.httpd.Shutdown(shutdownCtx)
	})

	if srv.consumer != nil {
		srv.session.AddHandler(func(s *discordgo.Session, c *discordgo.Connect) {
			discordSessionUp.Set(1)
		})
		srv.session.AddHandler(func(s *discordgo.Session, d *discordgo.Disconnect) {
			discordSessionUp.Set(0)
		})
		g.Go(func() error {
			return srv.consumer.Run(ctx, srv.session)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	srv.logger.Info("graceful shutdown complete")
	return err
}
