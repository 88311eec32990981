package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"AgentPact-Chain/internal/agent"
	"AgentPact-Chain/internal/api"
	"AgentPact-Chain/internal/bounds"
	"AgentPact-Chain/internal/config"
	"AgentPact-Chain/internal/coordination"
	"AgentPact-Chain/internal/notify"
	"AgentPact-Chain/internal/web3"
	"AgentPact-Chain/internal/web3/ethereum"
	"AgentPact-Chain/pkg/logger"
)

// main 是 AgentPact 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentpactd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENTPACT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentpact.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Close()

	// 链清单可以覆盖直接填写的 RPC/合约地址，方便在多链之间切换。
	rpcURL, contract := cfg.Web3.RPCURL, cfg.Web3.Contract
	if cfg.Web3.Chain != "" {
		defs, err := web3.LoadChainDefinitions(cfg.Web3.ChainCatalog)
		if err != nil {
			return err
		}
		def, ok := defs.Chains[cfg.Web3.Chain]
		if !ok {
			return fmt.Errorf("链清单中不存在 %q", cfg.Web3.Chain)
		}
		if def.RPCURL != "" {
			rpcURL = def.RPCURL
		}
		if def.Contract != "" {
			contract = def.Contract
		}
	}

	chainClient, err := ethereum.NewClient(ctx, ethereum.Config{
		Name:     cfg.Web3.Chain,
		RPCURL:   rpcURL,
		Contract: contract,
	})
	if err != nil {
		return err
	}
	defer chainClient.Close()

	signer, err := web3.NewLocalSigner(cfg.Web3.PrivateKey)
	if err != nil {
		return err
	}
	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		return err
	}
	auth, err := signer.TransactOpts(chainID)
	if err != nil {
		return err
	}

	var store coordination.Store
	switch cfg.Storage.Driver {
	case "", "memory":
		store = coordination.NewMemoryStore()
	case "mysql":
		mysqlStore, err := coordination.NewMySQLStore(ctx, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.L().Warn("关闭存储失败", slog.Any("error", err))
		}
	}()

	var cache bounds.Cache
	switch cfg.Bounds.CacheDriver {
	case "", "memory":
		cache = bounds.NewMemoryCache()
	case "redis":
		redisCache, err := bounds.NewRedisCache(bounds.RedisCacheConfig{
			Address:   cfg.Bounds.Redis.Address,
			Password:  cfg.Bounds.Redis.Password,
			DB:        cfg.Bounds.Redis.DB,
			KeyPrefix: cfg.Bounds.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
		cache = redisCache
	default:
		return fmt.Errorf("未知的缓存驱动: %s", cfg.Bounds.CacheDriver)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.L().Warn("关闭缓存失败", slog.Any("error", err))
		}
	}()

	var queue notify.Queue
	switch cfg.Notify.Driver {
	case "", "memory":
		queue = notify.NewMemoryQueue(1024)
	case "rabbitmq":
		rmq, err := notify.NewRabbitMQQueue(notify.RabbitMQConfig{
			URL:     cfg.Notify.URL,
			Queue:   cfg.Notify.Queue,
			Durable: true,
		})
		if err != nil {
			return err
		}
		queue = rmq
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Notify.Driver)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Warn("关闭通知队列失败", slog.Any("error", err))
		}
	}()

	coordinator := agent.NewCoordinator(chainClient, store, signer, auth,
		agent.WithNotifier(queue),
	)
	executor := agent.NewBoundedExecutor(chainClient, cache, auth)

	// 配置了允许清单文件时，启动即为本机 agent 注册一条策略，
	// 动作列表随之留存到缓存供后续证明再生。
	if cfg.Bounds.ManifestPath != "" {
		reg, err := executor.RegisterFromManifest(ctx, signer.Address(), cfg.Bounds.ManifestPath, nil, web3.PolicyWindow{}, 0)
		if err != nil {
			return err
		}
		logger.L().Info("启动策略已注册",
			slog.String("policy_id", reg.PolicyID.Hex()),
			slog.String("tx", reg.TxHash.Hex()),
		)
	}

	if cfg.Responder.Enabled {
		responder := agent.NewResponder(coordinator, queue,
			agent.WithResponderWorkers(cfg.Responder.Workers),
		)
		responderCtx, responderCancel := context.WithCancel(ctx)
		defer responderCancel()
		go func() {
			if err := responder.Run(responderCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("自动应答器异常退出", slog.Any("error", err))
			}
		}()
	}

	logger.L().Info("agentpactd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("agent", signer.Address().Hex()),
		slog.String("chain_id", chainID.String()),
	)

	server := api.NewServer(cfg.Server.Address, coordinator, executor)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
