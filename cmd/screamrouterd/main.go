// Command screamrouterd boots the ScreamRouter audio engine: it reads
// configuration from environment variables / a config file via viper,
// validates it, starts the UDP receivers and sink mixers, exposes a
// Prometheus /metrics endpoint and a WebSocket MP3 relay, and applies the
// configured desired state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/screamrouter/screamrouter/internal/config"
	"github.com/screamrouter/screamrouter/internal/engine"
	"github.com/screamrouter/screamrouter/internal/stats"
	"github.com/screamrouter/screamrouter/pkg/log"
)

// daemonConfig is the top-level boot configuration, unmarshaled from
// environment variables and defaults via viper, then overridden by flags.
type daemonConfig struct {
	ScreamUnicastAddr    string `mapstructure:"scream_unicast_addr"`
	ScreamPerProcessAddr string `mapstructure:"scream_per_process_addr"`
	RTPAddr              string `mapstructure:"rtp_addr"`
	EnableMulticast      bool   `mapstructure:"enable_multicast"`
	MaxHistorySeconds    int    `mapstructure:"max_history_seconds" validate:"gte=1"`
	MP3Enabled           bool   `mapstructure:"mp3_enabled"`

	HTTPAddr string `mapstructure:"http_addr" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFile  string `mapstructure:"log_file"`

	ConfigFile string `mapstructure:"config_file"`
}

func loadConfig() (*daemonConfig, error) {
	configFile := pflag.StringP("config-file", "c", "", "Path to a YAML desired-state document to apply at boot.")
	httpAddr := pflag.StringP("http-addr", "a", "", "Address for the /metrics, /stats and /mp3/ HTTP server.")
	logLevel := pflag.StringP("log-level", "l", "", "Log level: debug, info, warn, error.")
	pflag.Parse()

	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix("SCREAMROUTER")
	v.AutomaticEnv()

	v.SetDefault("SCREAM_UNICAST_ADDR", ":4010")
	v.SetDefault("SCREAM_PER_PROCESS_ADDR", ":16402")
	v.SetDefault("RTP_ADDR", ":4011")
	v.SetDefault("ENABLE_MULTICAST", false)
	v.SetDefault("MAX_HISTORY_SECONDS", 300)
	v.SetDefault("MP3_ENABLED", true)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	var cfg daemonConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("screamrouter: unmarshal config: %w", err)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *configFile != "" {
		cfg.ConfigFile = *configFile
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("screamrouter: invalid config: %w", err)
	}
	return &cfg, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := log.New(log.Config{Level: cfg.LogLevel, FilePath: cfg.LogFile, Console: true})
	if err != nil {
		return fmt.Errorf("screamrouter: build logger: %w", err)
	}

	shutdownMetrics, err := stats.InitProvider(context.Background(), stats.ProviderConfig{ServiceName: "screamrouter"})
	if err != nil {
		return fmt.Errorf("screamrouter: init metrics provider: %w", err)
	}
	defer shutdownMetrics(context.Background())
	metrics := stats.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := engine.New(ctx, engine.Config{
		ScreamUnicastAddr:    cfg.ScreamUnicastAddr,
		ScreamPerProcessAddr: cfg.ScreamPerProcessAddr,
		RTPAddr:              cfg.RTPAddr,
		EnableMulticast:      cfg.EnableMulticast,
		MaxHistorySeconds:    cfg.MaxHistorySeconds,
		MP3Enabled:           cfg.MP3Enabled,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("screamrouter: start engine: %w", err)
	}
	defer e.Close()

	if cfg.ConfigFile != "" {
		desired, err := readDesiredState(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("screamrouter: read desired state: %w", err)
		}
		if err := e.ApplyState(ctx, desired); err != nil {
			return fmt.Errorf("screamrouter: apply initial state: %w", err)
		}
		logger.Infof("applied initial configuration from %s", cfg.ConfigFile)
	}

	srv := newHTTPServer(cfg.HTTPAddr, e, logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server: %v", err)
		}
	}()

	logger.Infof("screamrouterd listening: scream=%s per-process=%s rtp=%s http=%s",
		cfg.ScreamUnicastAddr, cfg.ScreamPerProcessAddr, cfg.RTPAddr, cfg.HTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// readDesiredState loads a viper-compatible YAML document describing the
// full source/sink/route graph.
func readDesiredState(path string) (config.DesiredState, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return config.DesiredState{}, err
	}
	var desired config.DesiredState
	if err := v.Unmarshal(&desired); err != nil {
		return config.DesiredState{}, err
	}
	return desired, nil
}

func newHTTPServer(addr string, e *engine.Engine, logger log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/mp3/", func(w http.ResponseWriter, r *http.Request) {
		sinkID := r.URL.Path[len("/mp3/"):]
		if sinkID == "" {
			http.Error(w, "missing sink id", http.StatusBadRequest)
			return
		}
		serveMP3Relay(w, r, e, sinkID, logger)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e.GetStats())
	})

	return &http.Server{Addr: addr, Handler: mux}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1 << 16,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveMP3Relay upgrades to a WebSocket and pushes newly encoded MP3 bytes
// for sinkID to the browser client as they become available, polling the
// engine's non-blocking GetMP3Data on a fixed cadence.
func serveMP3Relay(w http.ResponseWriter, r *http.Request, e *engine.Engine, sinkID string, logger log.Logger) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("mp3 relay upgrade failed for sink %s: %v", sinkID, err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(40 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		data := e.GetMP3Data(sinkID, 1<<16)
		if len(data) == 0 {
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}
}
