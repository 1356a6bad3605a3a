// Command mdpublisherd runs a single market-data Publisher: it loads
// service configuration, opens the MessageLog and SequenceStore it needs,
// opens the MasterRegistry for any auxiliary stores configured alongside
// it, starts accepting subscriber connections, and blocks until signaled.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/veldra/mdcore/pkg/config"
	"github.com/veldra/mdcore/pkg/messagelog"
	"github.com/veldra/mdcore/pkg/registry"
	"github.com/veldra/mdcore/pkg/sequence"
	"github.com/veldra/mdcore/pubsub/publisher"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := run(os.Args[1:], sigCh); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, sigCh <-chan os.Signal) error {
	flagSet := flag.NewFlagSet("mdpublisherd", flag.ContinueOnError)

	flagConfig := flagSet.StringP("config", "c", "", "Load settings from `file` (JSONC)")
	flagName := flagSet.String("publisher-name", "", "Publisher name (overrides config)")
	flagNetwork := flagSet.String("network", "", `Listener network: "unix" or "tcp" (overrides config)`)
	flagListen := flagSet.String("listen-address", "", "Listener address (overrides config)")
	flagWorkers := flagSet.Int("recovery-workers", 0, "Recovery worker pool size (overrides config)")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(config.LoadInput{
		ConfigPath: *flagConfig,
		Overrides: config.Config{
			PublisherName:       *flagName,
			Network:             *flagNetwork,
			ListenAddress:       *flagListen,
			RecoveryWorkerCount: *flagWorkers,
		},
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	msgLog, err := messagelog.Open(messagelog.Options{
		BasePath:   cfg.MessageLogPath,
		FlushEvery: cfg.FlushEvery,
	})
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	defer msgLog.Close()

	seqStore, err := openSequenceStore(cfg)
	if err != nil {
		return fmt.Errorf("open sequence store: %w", err)
	}
	defer seqStore.Close()

	reg, err := openRegistry(cfg.RegistryDir)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.CloseAll()

	pub, err := publisher.New(publisher.Options{
		ID:            cfg.PublisherID,
		Name:          cfg.PublisherName,
		Network:       cfg.Network,
		ListenAddress: cfg.ListenAddress,
		Log:           msgLog,
		SeqStore:      seqStore,
		WorkerCount:   cfg.RecoveryWorkerCount,
	})
	if err != nil {
		return fmt.Errorf("construct publisher: %w", err)
	}

	if err := pub.Start(); err != nil {
		return fmt.Errorf("start publisher: %w", err)
	}

	fmt.Printf("mdpublisherd: %q listening on %s:%s\n", cfg.PublisherName, cfg.Network, cfg.ListenAddress)

	<-sigCh

	fmt.Println("mdpublisherd: shutting down")

	return pub.Stop()
}

func openSequenceStore(cfg config.Config) (sequence.Store, error) {
	switch cfg.SequenceStoreBackend {
	case "master":
		return sequence.OpenMasterStore(cfg.SequenceMasterPath, 4096)
	default:
		return sequence.OpenFileStore(cfg.SequenceStoreDir, true)
	}
}

func openRegistry(dir string) (*registry.Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return registry.LoadFrom(dir)
}
