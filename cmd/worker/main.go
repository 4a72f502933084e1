package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/failsafe-go/failsafe-go/ratelimiter"
	"github.com/redis/go-redis/v9"

	"revos.app/pipeline/common/id"
	"revos.app/pipeline/common/logger"
	"revos.app/pipeline/common/otel"
	"revos.app/pipeline/core/config"
	"revos.app/pipeline/core/db"
	"revos.app/pipeline/internal/extract"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/social"
	"revos.app/pipeline/internal/store"
	"revos.app/pipeline/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "pipeline worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Broker.Group,
		"consumer_name", cfg.Broker.Consumer)

	// Use a different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Broker.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	stores := store.New(database.Pool())

	socialClient := social.NewHTTPClient(social.HTTPClientConfig{
		BaseURL:    cfg.Social.BaseURL,
		APIKey:     cfg.Social.APIKey,
		Timeout:    cfg.Social.Timeout,
		MaxRetries: 3,
	})

	var extractor extract.Extractor
	if cfg.OpenAI.Enabled() {
		extractor = extract.NewLLMExtractor(extract.LLMConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
		slog.InfoContext(ctx, "llm extraction fallback enabled", "model", cfg.OpenAI.Model)
	}

	producer := queue.NewRedisProducer(redisClient, cfg.Broker.DelayedSet, slog.Default())
	defer producer.Close()

	streams := worker.Streams{
		Comments: cfg.Broker.CommentStream,
		DMs:      cfg.Broker.DMStream,
		Webhooks: cfg.Broker.WebhookStream,
		PodPolls: cfg.Broker.PodPollStream,
		Reposts:  cfg.Broker.RepostStream,
	}

	poller := worker.NewPoller(
		stores.Campaigns(), stores.Activities(), stores.Processed(),
		socialClient, producer, streams,
		worker.PollerConfig{
			MinInterval:       cfg.Polling.MinInterval,
			MaxInterval:       cfg.Polling.MaxInterval,
			Jitter:            cfg.Polling.Jitter,
			SkipProbability:   cfg.Polling.SkipProbability,
			WorkingHoursStart: cfg.Polling.WorkingHoursStart,
			WorkingHoursEnd:   cfg.Polling.WorkingHoursEnd,
		})

	sendLimiter := ratelimiter.NewSmoothBuilderWithMaxRate[any](
		time.Minute / time.Duration(cfg.DM.RatePerMinute),
	).WithMaxWaitTime(2 * time.Minute).Build()

	dmHandler := worker.NewDMHandler(
		stores.Campaigns(), stores.Activities(), socialClient, sendLimiter,
		worker.DMHandlerConfig{DefaultDailyLimit: cfg.DM.DailyLimit})

	webhookHandler := worker.NewWebhookHandler(
		stores.Deliveries(), stores.Activities(), producer, streams,
		worker.WebhookHandlerConfig{
			Timeout: cfg.Webhook.Timeout,
			Version: cfg.Webhook.Version,
		})

	podHandler := worker.NewPodHandler(
		stores.Pods(), stores.Processed(), socialClient, producer, streams,
		worker.PodHandlerConfig{
			PollInterval:  cfg.Pod.PollInterval,
			PostsPerFetch: cfg.Pod.PostsPerFetch,
			MaxPerHour:    cfg.Pod.MaxPerHour,
			SeenRetention: cfg.Pod.SeenRetention,
		})

	replyMonitor := worker.NewReplyMonitor(
		stores.Campaigns(), stores.Activities(), stores.Processed(), stores.Deliveries(),
		socialClient, extractor, producer, streams,
		worker.ReplyMonitorConfig{
			SweepInterval:  cfg.Replies.SweepInterval,
			InterLeadDelay: cfg.Replies.InterLeadDelay,
			LinkTTL:        cfg.Replies.LinkTTL,
			DownloadBase:   cfg.Replies.DownloadBase,
			LinkSecret:     cfg.Replies.LinkSecret,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
		})

	type streamWorker struct {
		stream      string
		handlers    map[queue.TaskType]worker.Handler
		concurrency int
	}

	workerDefs := []streamWorker{
		{streams.Comments, map[queue.TaskType]worker.Handler{queue.TaskTypePollComments: poller.Handle}, 2},
		{streams.DMs, map[queue.TaskType]worker.Handler{queue.TaskTypeSendDM: dmHandler.Handle}, cfg.DM.Concurrency},
		{streams.Webhooks, map[queue.TaskType]worker.Handler{queue.TaskTypeDeliverWebhook: webhookHandler.Handle}, 2},
		{streams.PodPolls, map[queue.TaskType]worker.Handler{queue.TaskTypePodPoll: podHandler.HandlePoll}, 1},
		{streams.Reposts, map[queue.TaskType]worker.Handler{queue.TaskTypePodRepost: podHandler.HandleRepost}, 1},
	}

	var workers []*worker.Worker
	var reclaimers []*worker.RedisReclaimer
	errCh := make(chan error, len(workerDefs)*2+2)

	for _, def := range workerDefs {
		consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
			Stream:       def.stream,
			Group:        cfg.Broker.Group,
			Consumer:     cfg.Broker.Consumer,
			DLQStream:    cfg.Broker.DLQStream,
			BatchSize:    10,
			Block:        5 * time.Second,
			RequeueDelay: time.Second,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create consumer",
				"error", err, "stream", def.stream)
			os.Exit(1)
		}

		w := worker.New(consumer, def.handlers, worker.Config{
			MaxAttempts: 3,
			Concurrency: def.concurrency,
		})
		workers = append(workers, w)

		reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
			Stream:    def.stream,
			Group:     cfg.Broker.Group,
			Consumer:  cfg.Broker.Consumer + "-reclaimer",
			MinIdle:   5 * time.Minute,
			Interval:  time.Minute,
			BatchSize: 10,
		}, consumer, w.ProcessMessage)
		reclaimers = append(reclaimers, reclaimer)

		go func(w *worker.Worker) {
			errCh <- w.Run(ctx)
		}(w)
		go func(r *worker.RedisReclaimer) {
			r.Run(ctx)
			errCh <- nil
		}(reclaimer)
	}

	scheduler := queue.NewDelayedScheduler(redisClient, queue.DelayedSchedulerConfig{
		DelayedSet: cfg.Broker.DelayedSet,
		Interval:   time.Second,
		BatchSize:  100,
	})
	go func() {
		scheduler.Run(ctx)
		errCh <- nil
	}()

	go func() {
		replyMonitor.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running",
		"streams", len(workerDefs))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, r := range reclaimers {
		r.Stop()
	}
	scheduler.Stop()
	replyMonitor.Stop()
	for _, w := range workers {
		w.Stop()
	}

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
██████╗ ███████╗██╗   ██╗ ██████╗ ███████╗    ██████╗ ██╗██████╗ ███████╗██╗     ██╗███╗   ██╗███████╗
██╔══██╗██╔════╝██║   ██║██╔═══██╗██╔════╝    ██╔══██╗██║██╔══██╗██╔════╝██║     ██║████╗  ██║██╔════╝
██████╔╝█████╗  ██║   ██║██║   ██║███████╗    ██████╔╝██║██████╔╝█████╗  ██║     ██║██╔██╗ ██║█████╗
██╔══██╗██╔══╝  ╚██╗ ██╔╝██║   ██║╚════██║    ██╔═══╝ ██║██╔═══╝ ██╔══╝  ██║     ██║██║╚██╗██║██╔══╝
██║  ██║███████╗ ╚████╔╝ ╚██████╔╝███████║    ██║     ██║██║     ███████╗███████╗██║██║ ╚████║███████╗
╚═╝  ╚═╝╚══════╝  ╚═══╝   ╚═════╝ ╚══════╝    ╚═╝     ╚═╝╚═╝     ╚══════╝╚══════╝╚═╝╚═╝  ╚═══╝╚══════╝
`
