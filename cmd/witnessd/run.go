package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ssc-witness/witness/wbroadcast"
	"github.com/ssc-witness/witness/wcrypto"
	"github.com/ssc-witness/witness/wengine"
	"github.com/ssc-witness/witness/wmetrics"
	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wrpc"
	"github.com/ssc-witness/witness/wstore"
	"github.com/ssc-witness/witness/wstore/wsqlite"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the witness node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(cmd.ErrOrStderr(), v.GetString("log-level"), v.GetString("log-format"))
			if err != nil {
				return err
			}
			return runWitness(cmd.Context(), log, v)
		},
	}

	f := cmd.Flags()
	f.String("db", "witness.db", "path to the side-chain SQLite database")
	f.String("listen", ":5001", "address for the witness RPC server")
	f.String("account", "", "witness account name; witness mode is disabled if empty")
	f.String("signing-key", "", "witness signing key in WIF; witness mode is disabled if empty")
	f.String("chain-id", "ssc-mainnet1", "side-chain ID used for backing-chain custom JSON")
	f.StringSlice("endpoints", nil, "backing-chain access points, tried in order; required in witness mode")
	f.Duration("tick", 3*time.Second, "interval between round params refreshes")
	f.Duration("retry-delay", 5*time.Second, "delay before resending a proposal to a witness that may catch up")
	f.Duration("rpc-timeout", 10*time.Second, "timeout for a single proposal to another witness")
	f.Duration("broadcast-retry-delay", time.Second, "delay between finalization broadcast attempts")
	f.Int("required-signatures", wround.DefaultRequiredSignatures, "signatures needed to finalize a round")

	return cmd
}

func runWitness(ctx context.Context, log *slog.Logger, v *viper.Viper) error {
	store, err := wsqlite.Open(ctx, v.GetString("db"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Failed to close database", "err", err)
		}
	}()

	account := v.GetString("account")
	wif := v.GetString("signing-key")
	if account == "" || wif == "" {
		log.Info("Witness mode disabled: no account or signing key configured")
		<-ctx.Done()
		return nil
	}

	signer, err := wcrypto.ParsePrivateKeyWIF(wif)
	if err != nil {
		return fmt.Errorf("invalid signing key: %w", err)
	}
	endpoints := v.GetStringSlice("endpoints")
	if len(endpoints) == 0 {
		return errors.New("no backing-chain endpoints configured (use --endpoints)")
	}
	checkRegistration(ctx, log, store, account, signer)

	// Stops everything started below if any component fails,
	// or if setup fails partway through.
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := wmetrics.NewCollector(reg)

	var watermark wround.Watermark

	bcfg := wbroadcast.DefaultConfig()
	bcfg.ChainID = v.GetString("chain-id")
	bcfg.Account = account
	bcfg.Endpoints = endpoints
	bcfg.Factory = wbroadcast.NewJSONRPCClientFactory(signer, v.GetDuration("rpc-timeout"))
	bcfg.Watermark = watermark.Load
	bcfg.RetryDelay = v.GetDuration("broadcast-retry-delay")
	bcfg.Metrics = metrics
	broadcaster, err := wbroadcast.New(ctx, log.With("sys", "broadcast"), bcfg)
	if err != nil {
		return err
	}

	ccfg := wrpc.DefaultClientConfig()
	ccfg.Timeout = v.GetDuration("rpc-timeout")

	e, err := wengine.New(
		ctx, log.With("sys", "engine"),
		wengine.WithIdentity(account, signer),
		wengine.WithRoundStateStore(store),
		wengine.WithBlockLedger(store),
		wengine.WithRoundClient(wrpc.NewClient(ccfg)),
		wengine.WithBroadcaster(broadcaster),
		wengine.WithWatermark(&watermark),
		wengine.WithTickInterval(v.GetDuration("tick")),
		wengine.WithRetryDelay(v.GetDuration("retry-delay")),
		wengine.WithRequiredSignatures(v.GetInt("required-signatures")),
		wengine.WithMetricsCollector(metrics),
	)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", v.GetString("listen"))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Info("Witness RPC server listening", "addr", ln.Addr().String(), "account", account)

	srv, err := wrpc.NewHTTPServer(ctx, log.With("sys", "http"), wrpc.HTTPServerConfig{
		Listener: ln,
		Handler:  e,
		Status: func(ctx context.Context) (any, error) {
			return e.Status(ctx)
		},
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	if err != nil {
		_ = ln.Close()
		return err
	}

	g.Go(srv.Err)
	g.Go(func() error {
		e.Wait()

		// The engine may have handed off a finalized round just before stopping.
		broadcaster.Wait()
		return nil
	})
	return g.Wait()
}

// checkRegistration warns if the configured key is not the account's registered signing key,
// since every proposal and counter-signature from this node would then be rejected.
func checkRegistration(ctx context.Context, log *slog.Logger, s wstore.RoundStateStore, account string, signer wcrypto.Signer) {
	w, err := s.LoadWitness(ctx, account)
	if err != nil {
		if errors.Is(err, wstore.ErrWitnessNotFound) {
			log.Warn("Account is not a registered witness", "account", account)
			return
		}
		log.Warn("Failed to load witness registration", "account", account, "err", err)
		return
	}

	if w.SigningKey == nil || !w.SigningKey.Equal(signer.PubKey()) {
		log.Warn(
			"Signing key does not match registered key",
			"account", account,
			"configured", signer.PubKey().String(),
		)
	}
	if !w.Enabled {
		log.Warn("Witness is registered but disabled", "account", account)
	}
}
