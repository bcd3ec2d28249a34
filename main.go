package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/etherlabsio/healthcheck/v2"
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"
	imetrics "github.com/ipfs-force-community/metrics"
	logging "github.com/ipfs/go-log/v2"
	multiaddr "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/plugin/ochttp"

	"github.com/web3-force/dapp-gateway/chainrpc"
	"github.com/web3-force/dapp-gateway/cmds"
	"github.com/web3-force/dapp-gateway/config"
	"github.com/web3-force/dapp-gateway/controller"
	"github.com/web3-force/dapp-gateway/metrics"
	"github.com/web3-force/dapp-gateway/proxy"
	"github.com/web3-force/dapp-gateway/signer"
	"github.com/web3-force/dapp-gateway/storage"
	"github.com/web3-force/dapp-gateway/validator"
	"github.com/web3-force/dapp-gateway/version"
)

var log = logging.Logger("main")

func main() {
	_ = logging.SetLogLevel("*", "INFO")

	app := &cli.App{
		Name:  "dapp-gateway",
		Usage: "route wallet requests between pages and the wallet owner",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "host address and port the gateway api will listen on",
				Value: "/ip4/127.0.0.1/tcp/45132",
			},
		},
		Commands: []*cli.Command{
			runCmd, cmds.PendingCmds, cmds.SiteCmds, cmds.ChainCmds, cmds.WalletCmds,
		},
	}
	app.Version = version.UserVersion
	if err := app.Run(os.Args); err != nil {
		log.Warn(err)
		os.Exit(1)
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start dapp-gateway daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to config.toml"},
		&cli.StringFlag{Name: "datadir", Usage: "wallet state directory, overrides the config"},
		&cli.BoolFlag{Name: "allow-insecure-origins", Usage: "accept http origins, for local development"},
		&cli.StringFlag{Name: "jaeger-proxy", EnvVars: []string{"DAPP_GATEWAY_JAEGER_PROXY"}},
		&cli.Float64Flag{Name: "trace-sampler", EnvVars: []string{"DAPP_GATEWAY_TRACE_SAMPLER"}, Value: 1.0},
		&cli.StringFlag{Name: "trace-node-name", Value: "dapp-gateway"},
	},
	Action: func(cctx *cli.Context) error {
		cfg := config.DefaultConfig()
		if cfgPath := cctx.String("config"); cfgPath != "" {
			var err error
			cfg, err = config.ReadConfig(cfgPath)
			if err != nil {
				return err
			}
		}
		cfg.API.ListenAddress = cctx.String("listen")
		if datadir := cctx.String("datadir"); datadir != "" {
			cfg.Wallet.DataDir = datadir
		}
		if cctx.Bool("allow-insecure-origins") {
			cfg.AllowInsecureOrigins = true
		}
		if proxyAddr := cctx.String("jaeger-proxy"); proxyAddr != "" {
			cfg.Trace.JaegerTracingEnabled = true
			cfg.Trace.JaegerEndpoint = proxyAddr
			cfg.Trace.ProbabilitySampler = cctx.Float64("trace-sampler")
			cfg.Trace.ServerName = cctx.String("trace-node-name")
		}
		return RunMain(cctx.Context, cfg)
	},
}

func RunMain(ctx context.Context, cfg *config.Config) error {
	log.Infof("dapp-gateway current version %s, listen %s", version.UserVersion, cfg.API.ListenAddress)

	dataDir, err := expandDataDir(cfg.Wallet.DataDir)
	if err != nil {
		return err
	}
	store, err := storage.OpenStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close() // nolint

	memSigner := signer.NewMemSigner()
	accounts, err := memSigner.Accounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		addr, err := memSigner.AddKey()
		if err != nil {
			return err
		}
		log.Infof("created account %s", addr.Hex())
	}

	forwarder := chainrpc.NewForwarder(cfg.ChainInfos())
	defer forwarder.Close()

	ctrl, err := controller.NewController(ctx, cfg.RequestConfig(), store, memSigner, forwarder, forwarder,
		validator.NewOriginValidator(cfg.AllowInsecureOrigins))
	if err != nil {
		return err
	}

	chainProxy := proxy.NewProxy()
	for _, chain := range forwarder.Chains() {
		if err := chainProxy.RegisterReverseByAddr(chain.ChainID, chain.RPCURL); err != nil {
			log.Warnf("register proxy for %s failed: %v", chain.ChainID, err)
		}
	}

	gatewayAPI := NewGatewayAPI(ctrl, chainProxy)

	log.Info("Setting up control endpoint at " + cfg.API.ListenAddress)

	router := mux.NewRouter()
	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("Gateway", gatewayAPI)
	router.Handle("/rpc/v1", rpcServer)
	router.Handle("/healthcheck", healthcheck.Handler(
		healthcheck.WithTimeout(5*time.Second),
		healthcheck.WithChecker("state-store", healthcheck.CheckerFunc(func(ctx context.Context) error {
			_, err := store.ListSites()
			return err
		})),
	))
	router.PathPrefix("/").Handler(http.DefaultServeMux)

	if err := metrics.SetupMetrics(ctx, cfg.Metrics, gatewayAPI); err != nil {
		return err
	}

	handler := chainProxy.ProxyMiddleware(router)
	if reporter, err := imetrics.SetupJaegerTracing(cfg.Trace.ServerName, cfg.Trace); err != nil {
		log.Fatalf("setup %s jaeger exporter to %s failed: %s", cfg.Trace.ServerName, cfg.Trace.JaegerEndpoint, err)
	} else if reporter != nil {
		log.Infof("setup jaeger-tracing exporter to %s, with node-name:%s", cfg.Trace.JaegerEndpoint, cfg.Trace.ServerName)
		defer func() {
			if err := imetrics.ShutdownJaeger(ctx, reporter); err != nil {
				log.Errorf("shutdown jaeger-tracing failed: %s", err)
			}
		}()
		handler = &ochttp.Handler{Handler: handler}
	}
	srv := &http.Server{Handler: handler}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warnw("received shutdown", "signal", sig)
		case <-ctx.Done():
			log.Warn("received shutdown")
		}

		log.Info("Shutting down...")
		metrics.ApiState.Set(ctx, 0)
		if err := srv.Shutdown(context.TODO()); err != nil {
			log.Errorf("shutting down RPC server failed: %s", err)
		}
	}()

	addr, err := multiaddr.NewMultiaddr(cfg.API.ListenAddress)
	if err != nil {
		return err
	}
	nl, err := manet.Listen(addr)
	if err != nil {
		return err
	}

	metrics.ApiState.Set(ctx, 1)
	log.Infof("start to rpc listen %s", nl.Addr())
	if err = srv.Serve(manet.NetListener(nl)); err != nil && err != http.ErrServerClosed {
		return err
	}

	log.Info("Graceful shutdown successful")
	return nil
}

func expandDataDir(dir string) (string, error) {
	if len(dir) > 0 && dir[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, dir[1:])
	}
	return dir, os.MkdirAll(dir, 0755)
}
