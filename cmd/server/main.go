package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bananachat/broker"
	"bananachat/contract"
	"bananachat/internal"
	"bananachat/membership"
	"bananachat/moderation"
	"bananachat/presence"
	"bananachat/projection"
	"bananachat/repositories"
	"bananachat/routing"
	"bananachat/runtime"
	"bananachat/runtime/workers"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and manages the server lifecycle. Keeping
// the logic out of main ensures every defer (database cleanup included) runs
// before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load() // optional .env for local runs
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing Bluge index...")
		_ = blugeWriter.Close()
	}()

	// 3. Repositories
	eventRepository, err := repositories.NewEventRepository(db, log)
	if err != nil {
		return fmt.Errorf("event repository failed: %w", err)
	}
	defer func() { _ = eventRepository.Close() }()

	groupRepository := repositories.NewGroupRepository(db, log)
	defer func() { _ = groupRepository.Close() }()

	userRepository := repositories.NewUserRepository(db)
	messageIndex := repositories.NewMessageIndex(blugeWriter, log)

	// 4. Broker: in-process dispatch teed to the external relay. The relay is
	// the daemon's only transport edge, so it is mandatory here even though
	// the library runs fine with the in-process binding alone.
	if config.BrokerURL == "" {
		return fmt.Errorf("config error: BROKER_URL is required")
	}
	relay, err := broker.NewRelay(config.BrokerURL, log)
	if err != nil {
		return fmt.Errorf("relay setup failed: %w", err)
	}
	defer func() { _ = relay.Close() }()

	local := broker.NewLocal(log)
	var bus contract.Broker = broker.NewTee(local, relay)

	timeline := projection.NewTimeline(config.TimelineCapacity)
	local.Subscribe("timeline", broker.TopicPublic, timeline)
	local.Subscribe("timeline", broker.TopicGroupsUpdate, timeline)

	// 5. Moderation
	var filter *moderation.Filter
	if config.ForbiddenWords != "" {
		replacement, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return err
		}
		filter, err = moderation.NewFilter(strings.Split(config.ForbiddenWords, ","), replacement)
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
	}

	// 6. Core components
	registry := presence.NewRegistry()
	authority := membership.NewAuthority(groupRepository, userRepository, bus, log)
	engine := routing.NewEngine(registry, authority, eventRepository, bus, userRepository,
		messageIndex, filter, log, config.MaxContentLength)

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Supervision: the inbound worker pulls client frames pushed to the
	// relay by the transport edge and drives the routing engine.
	sup := runtime.NewSupervisor(log)
	sup.Add(
		broker.NewInboundWorker(relay.Client(), engine, log),
		workers.NewHealthMonitorWorker(log, registry, config.MetricInterval),
	)

	if config.EnableDebugViews && config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, "/inspect", internal.DefaultMapper, func() map[string]any {
			return map[string]any{
				"online_users": registry.Count(),
			}
		})
		log.Info("Debug views enabled", "port", config.DebugPort)
	}

	log.Info("Routing engine ready")

	// 9. Run until stopped
	sup.Run(ctx)
	log.Info("Program stopped cleanly")
	return nil
}
