package main

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	cors "github.com/itsjamie/gin-cors"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/jackiewangjingchun-cpu/wattcoin/conf"
	"github.com/jackiewangjingchun-cpu/wattcoin/internal/market"
	"github.com/jackiewangjingchun-cpu/wattcoin/models"
	"github.com/jackiewangjingchun-cpu/wattcoin/routers"
	"github.com/jackiewangjingchun-cpu/wattcoin/util"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the marketplace daemon",
	Action: func(cctx *cli.Context) error {
		logs.GetLogger().Info("Start in marketplace mode.")

		repoPath := cctx.String(FlagMarketRepo)
		if err := godotenv.Load(filepath.Join(repoPath, ".env")); err != nil {
			logs.GetLogger().Warnf("no .env loaded: %v", err)
		}
		if err := conf.InitConfig(repoPath); err != nil {
			logs.GetLogger().Fatal(err)
		}
		cfg := conf.GetConfig()

		handler, err := buildMarketplace(repoPath, cfg)
		if err != nil {
			logs.GetLogger().Fatal(err)
		}

		r := gin.Default()
		r.Use(cors.Middleware(cors.Config{
			Origins:         "*",
			Methods:         "GET, PUT, POST, DELETE",
			RequestHeaders:  "Origin, Authorization, Content-Type",
			ExposedHeaders:  "",
			MaxAge:          50 * time.Second,
			ValidateHeaders: false,
		}))
		pprof.Register(r)

		v1 := r.Group("/api/v1")
		routers.MarketManager(v1.Group("/market"), handler)

		shutdownChan := make(chan struct{})
		httpStopper, err := util.ServeHttp(r, "market-api", ":"+strconv.Itoa(cfg.API.Port))
		if err != nil {
			logs.GetLogger().Fatal("failed to start market-api endpoint: ", err)
		}

		finishCh := util.MonitorShutdown(shutdownChan,
			util.ShutdownHandler{Component: "market-api", StopFunc: httpStopper},
		)
		<-finishCh

		return nil
	},
}

func buildMarketplace(repoPath string, cfg *conf.MarketNode) (*market.MarketHandler, error) {
	dbPath := cfg.DB.Path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(repoPath, dbPath)
	}
	store, err := market.OpenStore(dbPath)
	if err != nil {
		return nil, err
	}

	catalog := market.DefaultCatalog()
	if cfg.MARKET.CapabilityFile != "" {
		catalog, err = market.LoadCatalog(filepath.Join(repoPath, cfg.MARKET.CapabilityFile))
		if err != nil {
			return nil, err
		}
	}

	verifier := market.NewChainStakeVerifier(
		cfg.CHAIN.RpcUrl,
		cfg.CHAIN.TokenContract,
		cfg.CHAIN.TreasuryAddress,
		cfg.MARKET.MinStakeAmount,
		cfg.MARKET.StakeMaxAge(),
	)
	registry := market.NewNodeRegistry(market.RegistryParams{
		Store:    store,
		Liveness: market.NewLivenessTracker(cfg.MARKET.HeartbeatTimeout()),
		Verifier: verifier,
		Catalog:  catalog,
	})

	var queue *market.OperatorQueue
	if cfg.REDIS.RedisUrl != "" {
		queue = market.NewOperatorQueue(cfg.REDIS.RedisUrl, cfg.REDIS.RedisPassword)
	}
	rail := market.NewPayoutServiceRail(cfg.RAIL.PayoutUrl, cfg.RAIL.AccessToken, cfg.RAIL.Timeout())
	settler := market.NewSettler(store, rail, queue)

	var oracle market.VerificationOracle
	if cfg.RAIL.ReviewUrl != "" {
		oracle = market.NewReviewServiceOracle(cfg.RAIL.ReviewUrl, cfg.RAIL.AccessToken, cfg.RAIL.Timeout())
	}

	feed := market.NewJobFeed()
	ledger := market.NewJobLedger(market.LedgerParams{
		Store:    store,
		Registry: registry,
		Settler:  settler,
		Oracle:   oracle,
		Feed:     feed,

		JobTimeout: cfg.MARKET.JobTimeout(),
		PageSize:   cfg.MARKET.JobPageSize,
		DefaultSplit: models.RewardSplit{
			Node:     cfg.MARKET.NodeShare,
			Treasury: cfg.MARKET.TreasuryShare,
			Burn:     cfg.MARKET.BurnShare,
		},
	})

	marketplace := market.NewMarketplace(market.MarketplaceParams{
		Registry: registry,
		Ledger:   ledger,
		Settler:  settler,
		Catalog:  catalog,
	})

	return market.NewMarketHandler(marketplace, feed, cfg.API.AdminToken), nil
}
