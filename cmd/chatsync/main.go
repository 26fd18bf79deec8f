// Command chatsync keeps a bot account's state in sync and relays every
// change to the configured sinks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Gopher0727/chatsync/config"
	"github.com/Gopher0727/chatsync/internal/pkg/kafka"
	"github.com/Gopher0727/chatsync/internal/pkg/redis"
	"github.com/Gopher0727/chatsync/internal/status"
	"github.com/Gopher0727/chatsync/pkg/client"
	"github.com/Gopher0727/chatsync/pkg/logger"
	"github.com/Gopher0727/chatsync/utils/ratelimit"
)

// restBudget is shared by every process using the same Redis and prefix.
var restBudget = ratelimit.Rule{Limit: 20, Window: 10 * time.Second}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatsync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flags := pflag.NewFlagSet("chatsync", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Client.BotToken == "" {
		return errors.New("no bot token configured, set client.bot_token or CHATSYNC_CLIENT_BOT_TOKEN")
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	opts := []client.Option{client.WithLogger(log)}

	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			return err
		}
		// the sink owns rdb from here and closes it with the client

		limiter := ratelimit.NewWindowLimiter(rdb, cfg.Redis.Prefix+":ratelimit", restBudget, log.Logger, true)
		opts = append(opts,
			client.WithSinks(redis.NewSink(rdb, cfg.Redis.Prefix, cfg.Redis.StateTTL)),
			client.WithRESTLimiter(limiter, 250*time.Millisecond),
		)
		log.Info("Redis relay enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		opts = append(opts, client.WithSinks(producer))
		log.Info("Kafka relay enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", producer.Topic()))
	}

	c := client.New(cfg.Client, opts...)

	if cfg.Status.Port != 0 {
		srv := status.NewServer(cfg.Status, c, log.Logger)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn("Status endpoint shutdown failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.LoginBot(ctx, cfg.Client.BotToken); err != nil {
		if _, ok := c.Session(); !ok {
			_ = c.Close()
			return err
		}
		// a failed first dial is retried like any other drop
		log.Warn("Initial connection failed", zap.Error(err))
	}

	err = c.Run(ctx)
	log.Info("Shutting down", zap.Error(err))
	return err
}
