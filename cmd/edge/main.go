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

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nexxgate/edge-coordinator/pkg/accesslog"
	"github.com/nexxgate/edge-coordinator/pkg/allowlist"
	"github.com/nexxgate/edge-coordinator/pkg/config"
	"github.com/nexxgate/edge-coordinator/pkg/coordinator"
	"github.com/nexxgate/edge-coordinator/pkg/events"
	"github.com/nexxgate/edge-coordinator/pkg/heartbeat"
	"github.com/nexxgate/edge-coordinator/pkg/lockout"
	"github.com/nexxgate/edge-coordinator/pkg/log"
	"github.com/nexxgate/edge-coordinator/pkg/metrics"
	"github.com/nexxgate/edge-coordinator/pkg/origin"
	"github.com/nexxgate/edge-coordinator/pkg/reconciler"
	"github.com/nexxgate/edge-coordinator/pkg/security"
	"github.com/nexxgate/edge-coordinator/pkg/transport"
	"github.com/nexxgate/edge-coordinator/pkg/uploader"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "edge",
	Short: "Edge coordinator for access-control fleets",
	Long: `edge runs the coordination layer between low-power door-node
credential readers and a remote authoritative origin server: allow-list
overrides, cross-node replay lockout, origin reconciliation, and
peer-to-peer majority-vote failover.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("edge version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/edge/config.yaml", "Path to the edge configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(signTestCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the edge coordinator",
	RunE:  runEdge,
}

var signTestCmd = &cobra.Command{
	Use:   "sign-test",
	Short: "Sign an arbitrary payload with the configured signing key and print the base64 signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		signer, err := security.LoadSigner(cfg.Signing.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}

		sig, err := signer.Sign([]byte(args[0]))
		if err != nil {
			return fmt.Errorf("sign payload: %w", err)
		}

		fmt.Println(sig)
		return nil
	},
}

func runEdge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.WithComponent("edge")

	// Fatal at startup if the signing key cannot be loaded: a coordinator
	// that cannot sign cannot safely grant access overrides.
	signer, err := security.LoadSigner(cfg.Signing.PrivateKeyPath)
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("signing key load failed")
		return err
	}

	store, err := accesslog.NewStore(cfg.Log.AccessLog)
	if err != nil {
		return fmt.Errorf("open access log: %w", err)
	}

	allow := allowlist.New()
	lockoutEngine := lockout.New(cfg.Periods.LockoutWindow)
	bus := events.NewBroker()
	bus.Start()
	defer bus.Stop()

	stopLogTap := bus.LogTap(logger)
	defer stopLogTap()

	originClient := origin.NewClient(cfg.Origin.BaseURL, cfg.Origin.APIKey)

	localTLS, err := security.LocalBrokerTLSConfig(cfg.LocalBroker.ClientCert, cfg.LocalBroker.ClientKey, cfg.LocalBroker.CACert)
	if err != nil {
		return fmt.Errorf("load local broker TLS config: %w", err)
	}

	localBroker := fmt.Sprintf("ssl://%s:%d", cfg.LocalBroker.Host, cfg.LocalBroker.Port)
	remoteBroker := fmt.Sprintf("ssl://%s:%d", cfg.RemoteBroker.Host, cfg.RemoteBroker.Port)

	var coord *coordinator.Coordinator
	var rec *reconciler.Reconciler

	handlers := map[string]transport.Handler{
		transport.TopicAuthenticate: func(payload []byte) {
			msg, ok := decodeAuthenticate(payload, logger)
			if ok {
				coord.Submit(msg)
			}
		},
		transport.TopicRequestAccessList: func(payload []byte) {
			rec.TriggerOnDemandPull(payload)
		},
		transport.TopicMajorityVote: func(payload []byte) {
			coord.Submit(coordinator.MajorityVoteMsg{})
		},
		transport.TopicVoteResponse: func(payload []byte) {
			coord.Submit(coordinator.VoteResponseMsg{Payload: payload})
		},
	}

	localSession, err := transport.NewLocalSession(localBroker, cfg.NodeID, func(opts *mqtt.ClientOptions) {
		opts.SetTLSConfig(localTLS)
	}, logger, handlers)
	if err != nil {
		return fmt.Errorf("connect local broker: %w", err)
	}
	defer localSession.Close()

	remoteSession, err := transport.NewRemoteSession(remoteBroker, cfg.NodeID+"-relay", cfg.RemoteBroker.Username, cfg.RemoteBroker.Password, func(opts *mqtt.ClientOptions) {
		opts.SetTLSConfig(security.RemoteBrokerTLSConfig())
	})
	if err != nil {
		return fmt.Errorf("connect remote broker: %w", err)
	}
	defer remoteSession.Close()

	coord = coordinator.New(cfg, logger, allow, lockoutEngine, signer, store, bus, localSession, remoteSession, originClient)
	go coord.Run()
	defer coord.Stop()

	rec = reconciler.New(cfg.Periods.AccessList, coord, logger)
	rec.Start()
	defer rec.Stop()

	up := uploader.New(cfg.Periods.LogUpload, coord, logger)
	up.Start()
	defer up.Stop()

	hb := heartbeat.New(cfg.Periods.Heartbeat, coord, logger)
	hb.Start()
	defer hb.Stop()

	startHTTPServer(cfg.HTTPAddr, coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waitForShutdown(ctx)

	return nil
}

func decodeAuthenticate(payload []byte, logger zerolog.Logger) (coordinator.AuthenticateMsg, bool) {
	var raw struct {
		UID    string `json:"uid"`
		NodeID string `json:"node_id"`
		Date   string `json:"date"`
		Result bool   `json:"result"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		logger.Warn().Err(err).Msg("malformed authenticate payload, dropping")
		return coordinator.AuthenticateMsg{}, false
	}
	return coordinator.AuthenticateMsg{UID: raw.UID, NodeID: raw.NodeID, Date: raw.Date, Result: raw.Result}, true
}

func startHTTPServer(addr string, coord *coordinator.Coordinator) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !coord.Ready() {
			http.Error(w, "first reconciliation tick not yet complete", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "operational HTTP server error: %v\n", err)
		}
	}()
}

func waitForShutdown(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case <-ctx.Done():
	}

	time.Sleep(100 * time.Millisecond)
}
