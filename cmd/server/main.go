package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-metrics"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/internal/extip"
	"github.com/skshohagmiah/sockit/internal/kv"
	"github.com/skshohagmiah/sockit/internal/server"
	"github.com/skshohagmiah/sockit/pkg/transport"
)

var (
	host            = flag.String("host", envString("SOCKIT_HOST", "0.0.0.0"), "Interface to listen on")
	port            = flag.Int("port", envInt("SOCKIT_PORT", 6380), "KV server port")
	udpPort         = flag.Int("udp-port", envInt("SOCKIT_UDP_PORT", 6381), "UDP echo port")
	enableUDP       = flag.Bool("udp", envBool("SOCKIT_UDP", true), "Serve UDP echo probes")
	echoRate        = flag.Float64("echo-rate", envFloat("SOCKIT_ECHO_RATE", 1000), "UDP echoes per second (0 = unlimited)")
	dataDir         = flag.String("data", envString("SOCKIT_DATA_DIR", "./data"), "Data directory")
	useMemory       = flag.Bool("memory", envBool("SOCKIT_MEMORY", false), "Use in-memory storage")
	maxConns        = flag.Int("max-conns", envInt("SOCKIT_MAX_CONNS", 0), "Maximum concurrent clients (0 = unbounded)")
	idleTimeout     = flag.Duration("idle-timeout", envDuration("SOCKIT_IDLE_TIMEOUT", 30*time.Second), "Per-client idle check interval")
	metricsInterval = flag.Duration("metrics-interval", envDuration("SOCKIT_METRICS_INTERVAL", 0), "In-memory metrics interval, dumped on SIGUSR1 (0 = off)")
	discoverIP      = flag.Bool("discover-ip", envBool("SOCKIT_DISCOVER_IP", false), "Log the external address at startup")
	development     = flag.Bool("dev", envBool("SOCKIT_DEV", false), "Human-readable debug logging")
)

type config struct {
	Service         server.Config
	DataDir         string
	Memory          bool
	MetricsInterval time.Duration
	DiscoverIP      bool
	Development     bool
}

func loadConfig() config {
	svc := server.DefaultConfig()
	svc.TCP.Address = *host
	svc.TCP.Port = *port
	svc.TCP.MaxConnections = *maxConns
	svc.TCP.ClientTimeout = *idleTimeout
	svc.EnableUDP = *enableUDP
	svc.UDP.BindAddr = *host
	svc.UDP.Port = *udpPort
	svc.EchoRate = *echoRate

	return config{
		Service:         svc,
		DataDir:         *dataDir,
		Memory:          *useMemory,
		MetricsInterval: *metricsInterval,
		DiscoverIP:      *discoverIP,
		Development:     *development,
	}
}

func main() {
	flag.Parse()
	cfg := loadConfig()

	opts := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(newLogger, newMetricSink, newStore, newService),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: logger.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
		fx.Invoke(registerService),
	}
	if cfg.DiscoverIP {
		opts = append(opts, fx.Invoke(announceExternalIP))
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	app.Run()
}

func newLogger(lc fx.Lifecycle, cfg config) (*zap.Logger, error) {
	build := zap.NewProduction
	if cfg.Development {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() { _ = logger.Sync() }))
	return logger, nil
}

// newMetricSink returns an in-memory sink when an interval is configured;
// SIGUSR1 dumps it to stderr.
func newMetricSink(lc fx.Lifecycle, cfg config) metrics.MetricSink {
	if cfg.MetricsInterval <= 0 {
		return &metrics.BlackholeSink{}
	}
	inm := metrics.NewInmemSink(cfg.MetricsInterval, 6*cfg.MetricsInterval)
	sig := metrics.DefaultInmemSignal(inm)
	lc.Append(fx.StopHook(sig.Stop))
	return inm
}

func newStore(lc fx.Lifecycle, cfg config, logger *zap.Logger) (kv.KV, error) {
	var (
		store *kv.Store
		err   error
	)
	if cfg.Memory {
		store, err = kv.NewMemory(logger)
	} else {
		store, err = kv.New(filepath.Join(cfg.DataDir, "kv"), logger)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

func newService(cfg config, store kv.KV, sink metrics.MetricSink, logger *zap.Logger) (*server.Service, error) {
	return server.New(store, cfg.Service, logger, transport.WithMetricSink(sink))
}

func registerService(lc fx.Lifecycle, svc *server.Service, cfg config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			storage := "disk"
			if cfg.Memory {
				storage = "memory"
			}
			logger.Info("starting sockit",
				zap.String("tcp", addrString(svc.TCPAddr())),
				zap.String("udp", addrString(svc.UDPAddr())),
				zap.String("storage", storage),
			)
			return svc.Start()
		},
		OnStop: func(context.Context) error {
			st := svc.Stats()
			logger.Info("stopping sockit",
				zap.Uint64("ops", st.OpsProcessed),
				zap.Uint64("errors", st.OpsErrors),
				zap.Duration("uptime", st.Uptime),
			)
			return svc.Stop()
		},
	})
}

func announceExternalIP(lc fx.Lifecycle, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
				defer cancel()
				ip, err := extip.Default(logger).Discover(ctx)
				if err != nil {
					logger.Warn("external address discovery failed", zap.Error(err))
					return
				}
				logger.Info("external address", zap.Stringer("ip", ip))
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func addrString(a net.Addr) string {
	if a == nil {
		return "off"
	}
	return a.String()
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
