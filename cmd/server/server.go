package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fenrir/internal/config"
	"fenrir/internal/engine"
	"fenrir/internal/exchange"
	"fenrir/internal/net"
	"fenrir/internal/notify"
	"fenrir/internal/store"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file (defaults to $"+config.EnvConfigFile+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	if err := config.SetupLogging(cfg.Log, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("unable to set up logging")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) (err error) {
	policy, err := cfg.Engine.Policy()
	if err != nil {
		return err
	}

	recorder, err := openRecorder(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, recorder.Close())
	}()

	notifiers := notify.Multi{notify.NewLogNotifier(log.Logger)}
	if cfg.Kafka.Enabled {
		publisher := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BatchTimeout)
		defer func() {
			err = errors.Join(err, publisher.Close())
		}()
		notifiers = append(notifiers, publisher)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing events to kafka")
	}

	// Setup the matching engine and the TCP server in front of it.
	eng := engine.New(engine.WithModifyPolicy(policy))
	svc := exchange.NewService(eng, recorder, notifiers)
	srv := net.New(cfg.Server, svc)

	log.Info().Str("modify_policy", policy.String()).Str("store", cfg.Store.Kind).Msg("starting fenrir")
	runErr := srv.Run(ctx)

	// Save every open order on the way out, whatever stopped the server.
	if err := svc.Export(context.Background()); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func openRecorder(cfg config.StoreConfig) (store.Recorder, error) {
	switch cfg.Kind {
	case config.StoreNone:
		return store.Nop{}, nil
	case config.StoreCSV:
		return store.OpenCSV(cfg.Dir)
	case config.StorePebble:
		return store.OpenPebble(cfg.Dir, nil)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
