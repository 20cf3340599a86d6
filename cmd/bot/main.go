// Package main 聊天机器人入口
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatops-bot/internal/api"
	"chatops-bot/internal/bot"
	"chatops-bot/internal/config"
	"chatops-bot/internal/exec"
	"chatops-bot/internal/objstore"
	"chatops-bot/internal/stats"
	"chatops-bot/internal/storage"
	"chatops-bot/internal/telegram"
	"chatops-bot/pkg/docker"
	"chatops-bot/pkg/logging"
)

const metricsNamespace = "chatops_bot"

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换配置文件）
	cfg := config.Load()
	logger := logging.Default("bot")

	logger.Info("Starting chat bot", "env", string(cfg.Env))
	logger.Info(cfg.String())

	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 数据库：生产 PostgreSQL，轻量部署 SQLite
	var db *sql.DB
	var dialect storage.Dialect
	var err error
	switch cfg.DBDriver {
	case "sqlite":
		dialect = &storage.SQLiteDialect{}
		db, err = storage.OpenSQLite(cfg.SQLiteDSN)
	default:
		dialect = &storage.PostgresDialect{}
		db, err = storage.OpenPostgres(cfg.DatabaseURL)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	store := storage.NewStore(db, dialect)
	defer store.Close()
	if err := store.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database schema: %v", err)
	}
	logger.Info("Connected to database", "driver", string(dialect.DriverType()))

	// Redis：长轮询游标
	redisStore, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisStore.Close()
	logger.Info("Connected to Redis", "addr", cfg.RedisAddr)

	// Docker 预检：沙箱不可用时拒绝启动
	sandbox, err := docker.NewClient()
	if err != nil {
		log.Fatalf("Failed to create docker client: %v", err)
	}
	defer sandbox.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := sandbox.Ping(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Docker daemon is not reachable: %v", err)
	}
	pingCancel()
	logger.Info("Docker daemon is reachable")

	// 平台客户端与机器人身份
	client := telegram.NewClient(cfg.BotToken, cfg.Bot.APIBaseURL)
	meCtx, meCancel := context.WithTimeout(ctx, 10*time.Second)
	me, err := client.GetMe(meCtx)
	meCancel()
	if err != nil {
		log.Fatalf("Failed to verify bot token: %v", err)
	}
	botName := cfg.Bot.Name
	if botName == "" {
		botName = me.Username
	}
	logger.Info("Authenticated to platform", "bot", botName)

	// 统计队列与落库引擎
	queue := stats.NewQueue()
	statsMetrics := stats.NewMetrics(metricsNamespace)
	flusher := stats.NewFlusher(queue, store, logging.Default("stats")).WithMetrics(statsMetrics)

	// 执行编排：runner + 指标 + 状态推送 + 输出归档
	execLog := logging.Default("exec")
	runner := exec.NewRunner(exec.RunnerConfig{
		Image:       cfg.Exec.Image,
		WorkDir:     cfg.Exec.WorkDir,
		CPUs:        cfg.Exec.CPUs,
		StopTimeout: cfg.Exec.StopTimeout,
		TimeoutSec:  cfg.Exec.TimeoutSec,
		KillAfter:   cfg.Exec.KillAfter,
	}, sandbox, execLog)

	gateway := api.NewExecutionGateway(logging.Default("api"))
	orchestrator := exec.NewOrchestrator(runner, bot.NewMessenger(client), execLog).
		WithMetrics(exec.NewMetrics(metricsNamespace)).
		WithPublisher(gateway)

	// 对象存储归档可选，未配置时跳过
	var artifacts *objstore.Client
	if cfg.Minio.Endpoint != "" {
		artifacts, err = objstore.NewClient(cfg.Minio)
		if err != nil {
			log.Fatalf("Failed to create object storage client: %v", err)
		}
		bucketCtx, bucketCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := artifacts.EnsureBucket(bucketCtx); err != nil {
			bucketCancel()
			log.Fatalf("Failed to prepare object storage bucket: %v", err)
		}
		bucketCancel()
		orchestrator.WithArtifacts(artifacts)
		logger.Info("Execution log archiving enabled", "endpoint", cfg.Minio.Endpoint)
	}

	// 命令注册表
	dispatcher := bot.NewDispatcher(logging.Default("dispatcher"),
		bot.Ping{},
		bot.ID{},
		bot.Stats{},
		bot.NewExec(orchestrator),
	)
	dispatcher.Register(bot.NewHelp(dispatcher), bot.NewStart(dispatcher))

	handler := bot.NewHandler(client, queue, dispatcher, store, botName, logging.Default("handler"))
	poller := bot.NewPoller(client, handler, redisStore, cfg.PollTimeout, logging.Default("poller"))

	// 运维服务，配置了对象存储时附带归档输出下载端点
	opsServer := api.NewServer(cfg.ServerAddr, gateway, logging.Default("api"))
	if artifacts != nil {
		opsServer.WithExecutionLogs(artifacts)
	}
	go func() {
		if err := opsServer.Start(); err != nil {
			log.Fatalf("Ops server error: %v", err)
		}
	}()

	// 统计落库循环
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		flusher.Run(ctx, cfg.FlushInterval)
	}()

	// 更新轮询循环
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	cancel()

	// 等待轮询退出，等待落库引擎做完最终落库
	<-pollDone
	<-flushDone

	// 清理仍在运行的执行容器
	reapCtx, reapCancel := context.WithTimeout(context.Background(), 15*time.Second)
	for _, err := range sandbox.ReapActive(reapCtx) {
		logger.WithError(err).Warn("Failed to reap execution container")
	}
	reapCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Ops server shutdown error")
	}
	shutdownCancel()

	logger.Info("Bot stopped")
}
