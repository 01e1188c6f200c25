package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/earnout-labs/dealvault/cmd/blob"
	"github.com/earnout-labs/dealvault/cmd/deal"
	"github.com/earnout-labs/dealvault/cmd/key"
	"github.com/earnout-labs/dealvault/cmd/keyserver"
	"github.com/earnout-labs/dealvault/internal/cmdutil"
	"github.com/earnout-labs/dealvault/internal/telemetry"
	"github.com/earnout-labs/dealvault/pkg/config"
)

var (
	log    = logging.Logger("cmd")
	tracer = otel.Tracer("cmd")
)

var rootCmd = &cobra.Command{
	Use:   "dealvault",
	Short: "Store and retrieve encrypted earnout deal documents",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyLogLevel(cmd); err != nil {
			return err
		}
		if err := startTelemetry(cmd); err != nil {
			return err
		}
		setSpanAttributes(cmd, trace.SpanFromContext(cmd.Context()))
		return nil
	},
	// We handle errors ourselves when they're returned from ExecuteContext.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	cobra.EnableTraverseRunHooks = true
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	config.SetDefaults(viper.GetViper())
	initRootFlags()
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(
		blob.Cmd,
		deal.Cmd,
		key.Cmd,
		keyserver.Cmd,
	)
}

var (
	cfgFilePath string
	logLevel    string
)

func initRootFlags() {
	homedir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("failed to get user home directory: %w", err))
	}

	rootCmd.PersistentFlags().StringVar(&cfgFilePath, "config", "", "Path to the config file")

	rootCmd.PersistentFlags().String(
		"data-dir",
		filepath.Join(homedir, ".dealvault"),
		"Directory containing the keystore and upload journal",
	)
	cobra.CheckErr(viper.BindPFlag("repo.data_dir", rootCmd.PersistentFlags().Lookup("data-dir")))

	rootCmd.PersistentFlags().String("network", "", "Preset network to use (mainnet, testnet, devnet, localnet)")
	cobra.CheckErr(viper.BindPFlag("network.name", rootCmd.PersistentFlags().Lookup("network")))

	rootCmd.PersistentFlags().Duration("timeout", config.DefaultTimeout, "Timeout applied to every network request")
	cobra.CheckErr(viper.BindPFlag("network.timeout", rootCmd.PersistentFlags().Lookup("timeout")))

	rootCmd.PersistentFlags().StringVar(
		&logLevel,
		"log-level",
		"",
		"Log level, either one level for every subsystem or a list like \"pkg/seal=debug,pkg/storage=info\"",
	)
}

func initConfig() {
	// check if environment variables match any of the existing keys
	// as an example a key is 'repo.data_dir'
	viper.AutomaticEnv()
	// when checking for env vars, rename keys searched for from 'repo.data_dir' to 'repo_data_dir'
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("DEALVAULT")

	viper.SetConfigName("dealvault-config")
	viper.SetConfigType("yaml")

	// if no config file was provided, first look in the current directory _then_ look in
	// $XDG_CONFIG_HOME/dealvault/
	if cfgFilePath == "" {
		viper.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(configDir, "dealvault"))
		}
	} else {
		viper.SetConfigFile(cfgFilePath)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFilePath != "" {
			cobra.CheckErr(fmt.Errorf("reading config file: %w", err))
		}
	}
}

// applyLogLevel sets either a global level ("debug") or per subsystem levels
// ("pkg/seal=debug,pkg/storage=info").
func applyLogLevel(cmd *cobra.Command) error {
	if logLevel == "" {
		return nil
	}
	if !strings.Contains(logLevel, "=") {
		lvl, err := logging.LevelFromString(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		logging.SetAllLoggers(lvl)
		return nil
	}
	for _, pair := range strings.Split(logLevel, ",") {
		subsystem, level, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return fmt.Errorf("invalid --log-level entry %q", pair)
		}
		if err := logging.SetLogLevel(subsystem, level); err != nil {
			return fmt.Errorf("setting log level of %s: %w", subsystem, err)
		}
	}
	log.Debugw("log levels applied", "command", cmd.Name(), "levels", logLevel)
	return nil
}

var cliSpan trace.Span = noop.Span{}

var telemetryShutdown = func(context.Context) error { return nil }

// startTelemetry installs the trace exporter, if enabled, and opens the span
// covering the whole command.
func startTelemetry(cmd *cobra.Command) error {
	var cfg config.TelemetryConfig
	if err := viper.UnmarshalKey("telemetry", &cfg); err != nil {
		return fmt.Errorf("reading telemetry config: %w", err)
	}
	opts := []telemetry.Option{telemetry.WithNetwork(viper.GetString("network.name"))}
	if path := commandPath(cmd); len(path) > 1 && path[1] == "keyserver" {
		opts = append(opts, telemetry.WithServiceName("dealvault-keyserver"))
	}
	shutdown, err := telemetry.Setup(cmd.Context(), cfg, opts...)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	telemetryShutdown = shutdown
	ctx, span := tracer.Start(cmd.Context(), "cli")
	cliSpan = span
	cmd.SetContext(ctx)
	return nil
}

// ExecuteContext adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func ExecuteContext(ctx context.Context) error {
	err := cmdutil.TranslateError(rootCmd.ExecuteContext(ctx))
	if err != nil {
		cliSpan.RecordError(err)
	}
	cliSpan.End()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(err, telemetryShutdown(shutdownCtx))
}
