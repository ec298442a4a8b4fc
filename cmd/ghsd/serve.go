package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/ghsd/internal/eventloop"
	"github.com/srg/ghsd/internal/ghs"
	"github.com/srg/ghsd/internal/peripheral"
	"github.com/srg/ghsd/internal/platform/goble"
	"github.com/srg/ghsd/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pulse oximeter peripheral",
	Long: `Publishes the GHS, User Data and Device Information services and advertises
the device until interrupted. Every emitted observation is printed.

Examples:
  # Serve with defaults
  ghsd serve

  # Serve from a configuration file
  ghsd serve --config ghsd.yaml

  # Produce values from the embedded Lua script
  ghsd serve --source lua

  # Produce values from your own Lua script (must define next_value())
  ghsd serve --lua spo2.lua

  # Treat a central as bonded so its subscriptions survive reconnects
  ghsd serve --bonded aa:bb:cc:dd:ee:ff`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveConfigPath  string
	serveName        string
	servePolicy      string
	serveBonded      []string
	serveSource      string
	serveLuaScript   string
	serveNoAdvertise bool
	serveQuiet       bool
	serveVerbose     bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "YAML configuration file")
	serveCmd.Flags().StringVar(&serveName, "name", "", "Advertised device name (overrides config)")
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "Subscription policy: retain-bonded, drop-on-disconnect, or platform")
	serveCmd.Flags().StringSliceVar(&serveBonded, "bonded", nil, "Client addresses treated as bonded, comma-separated")
	serveCmd.Flags().StringVar(&serveSource, "source", "", "Value source: simulated or lua (overrides config)")
	serveCmd.Flags().StringVar(&serveLuaScript, "lua", "", "Lua script producing observation values (implies --source lua)")
	serveCmd.Flags().BoolVar(&serveNoAdvertise, "no-advertise", false, "Publish services without advertising")
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "Do not print emitted observations")
	serveCmd.Flags().BoolVar(&serveVerbose, "verbose", false, "Enable debug logging")
}

// loadServeConfig reads the configuration file and applies command line overrides.
func loadServeConfig() (*config.Config, error) {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return nil, err
	}

	if serveName != "" {
		cfg.DeviceName = serveName
	}
	if servePolicy != "" {
		cfg.SubscriptionPolicy = servePolicy
	}
	if len(serveBonded) > 0 {
		cfg.BondedClients = append(cfg.BondedClients, serveBonded...)
	}
	if serveSource != "" {
		cfg.Source.Kind = serveSource
	}
	if serveLuaScript != "" {
		content, err := os.ReadFile(serveLuaScript)
		if err != nil {
			return nil, fmt.Errorf("failed to read script file: %w", err)
		}
		cfg.Source.Kind = config.SourceLua
		cfg.Source.Script = string(content)
	}
	if serveNoAdvertise {
		cfg.Advertise = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose", cfg.LogLevel)
	if err != nil {
		return err
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupts gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("Received interrupt signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// The loop outlives ctx so shutdown work can still run on it.
	loop := eventloop.New("ghsd-events", logger)
	if err := loop.Start(context.Background()); err != nil {
		return err
	}
	defer loop.Stop()

	platform := goble.New(loop, goble.Options{
		BondedClients:  cfg.BondedClients,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	server, err := peripheral.New(cfg, platform, loop, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := loop.Call(context.Background(), server.Close); err != nil {
			logger.WithError(err).Debug("Failed to close peripheral")
		}
	}()

	if !serveQuiet {
		go printFeed(ctx, server.Feed(), cmd.OutOrStdout())
	}

	logger.WithFields(logrus.Fields{
		"name":      cfg.DeviceName,
		"advertise": cfg.Advertise,
	}).Info("Starting peripheral")

	return platform.Serve(ctx, server.Dispatcher(), server.Advertisement(), cfg.Advertise)
}

// printFeed writes every published observation to w until ctx is done.
func printFeed(ctx context.Context, feed *ghs.Feed, w io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed.Ready():
			for _, obs := range feed.Drain() {
				writeObservation(w, obs)
			}
		}
	}
}

var (
	timeColor  = color.New(color.FgCyan)
	valueColor = color.New(color.FgGreen, color.Bold)
)

func writeObservation(w io.Writer, obs ghs.Observation) {
	fmt.Fprintf(w, "%s  SpO2 %s %%  (measured over %.1fs)\n",
		timeColor.Sprint(obs.Timestamp.Format("2006-01-02T15:04:05Z07:00")),
		valueColor.Sprintf("%.2f", obs.Value),
		obs.MeasurementDuration)
}
