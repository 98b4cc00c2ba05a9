package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/netguru/rds-cluster-dns/internal/config"
	"github.com/netguru/rds-cluster-dns/internal/dnsprovider"
	_ "github.com/netguru/rds-cluster-dns/internal/dnsprovider/providers"
	"github.com/netguru/rds-cluster-dns/internal/lock"
	"github.com/netguru/rds-cluster-dns/internal/metrics"
	"github.com/netguru/rds-cluster-dns/internal/reconcile"
	"github.com/netguru/rds-cluster-dns/internal/resolver"
	"github.com/netguru/rds-cluster-dns/internal/topology"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitSetupFailed = 1
	ExitRunFailed   = 2
)

const flagsSource = "flags"

var (
	logLevel        string
	lockFile        string
	concurrency     int
	syncInterval    time.Duration
	syncMaxAttempts int
	syncPollRetries int
	dryRun          bool
	pushgatewayURL  string
	sshKeys         []string
	sshPort         int
	sshTimeout      time.Duration
)

// exitError carries the process exit code of a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitSetupFailed
}

var rootCmd = &cobra.Command{
	Use:   "rds-cluster-dns [path]",
	Short: "Publish per-instance DNS records for RDS clusters",
	Long: "Discovers the members of RDS clusters, resolves their addresses through a lookup host " +
		"and upserts numbered reader/writer A records into the configured DNS zone. " +
		"path is a JSON task file or a directory of them; without it a single task is built from flags.",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		logger := getLogger()
		defer func() {
			_ = logger.Sync()
		}()

		tasks, err := loadTasks(args, cmd.Flags())
		if err != nil {
			logger.Error("Invalid configuration", zap.Error(err))
			return &exitError{code: ExitSetupFailed, err: err}
		}
		logger.Info("Configuration loaded", zap.Int("tasks", len(tasks)))

		runLock, err := lock.Acquire(logger.With(zap.String("component", "lock")), lockFile)
		if err != nil {
			logger.Error("Failed to acquire run lock", zap.String("path", lockFile), zap.Error(err))
			return &exitError{code: ExitSetupFailed, err: err}
		}
		defer func() {
			_ = runLock.Release()
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := run(ctx, logger, tasks)
		if err != nil {
			logger.Error("Run aborted", zap.Error(err))
			return &exitError{code: ExitRunFailed, err: err}
		}
		if summary.Failed() {
			return &exitError{
				code: ExitRunFailed,
				err: fmt.Errorf("%d of %d tasks and %d of %d change sets failed",
					summary.TasksFailed(), len(summary.Tasks), summary.GroupsFailed(), len(summary.Groups)),
			}
		}
		return nil
	},
}

func run(ctx context.Context, logger *zap.Logger, tasks []config.Task) (*reconcile.Summary, error) {
	runner := resolver.NewSSHRunner(logger.With(zap.String("component", "ssh")), resolver.SSHConfig{
		Port:     sshPort,
		Timeout:  sshTimeout,
		KeyFiles: sshKeys,
	})
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("Failed to close SSH connections", zap.Error(err))
		}
	}()

	m := metrics.New()
	r := reconcile.New(
		logger,
		func(l *zap.Logger, t config.Task) topology.Directory {
			return topology.NewRDSDirectory(l, t.RDSAccess, t.RDSSecret, t.RDSRegion)
		},
		resolver.NewGetentResolver(runner),
		dnsprovider.New,
		m,
		reconcile.Options{
			Concurrency: concurrency,
			DryRun:      dryRun,
			Wait: dnsprovider.WaitConfig{
				Interval:    syncInterval,
				MaxAttempts: syncMaxAttempts,
				PollRetries: syncPollRetries,
			},
		},
	)

	summary, err := r.Run(ctx, tasks)

	if pushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if perr := m.Push(pushCtx, pushgatewayURL); perr != nil {
			logger.Warn("Failed to push metrics", zap.String("url", pushgatewayURL), zap.Error(perr))
		}
	}
	return summary, err
}

// loadTasks reads the tasks from the path argument, or builds one from the
// task flags, and validates all of them before anything touches the network.
func loadTasks(args []string, flags *pflag.FlagSet) ([]config.Task, error) {
	var tasks []config.Task
	if len(args) == 1 {
		loaded, err := config.LoadPath(args[0])
		if err != nil {
			return nil, err
		}
		tasks = loaded
	} else {
		v := viper.New()
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
		tasks = []config.Task{config.FromViper(v, flagsSource)}
	}

	if err := config.ValidateAll(tasks, dnsprovider.Registered); err != nil {
		return nil, err
	}
	return tasks, nil
}

// getLogger creates a new logger with the configured log level
func getLogger() *zap.Logger {
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(getZapLogLevel()),
		Development:       false,
		DisableCaller:     false,
		DisableStacktrace: false,
		Encoding:          "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("Logger initialized", zap.String("level", logLevel))
	return logger
}

// getZapLogLevel converts the string log level to a zap log level
func getZapLogLevel() zapcore.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func addTaskFlags(fs *pflag.FlagSet) {
	fs.String(config.KeyRDSCluster, "", "Cluster endpoint to publish records for")
	fs.String(config.KeyRDSAccess, "", "Access key for querying RDS")
	fs.String(config.KeyRDSSecret, "", "Secret key for querying RDS")
	fs.String(config.KeyRDSRegion, "", "AWS region of the cluster")
	fs.String(config.KeyR53Access, "", "Access key of the DNS provider")
	fs.String(config.KeyR53Secret, "", "Secret key of the DNS provider")
	fs.String(config.KeyR53ZoneID, "", "DNS zone to upsert records into")
	fs.String(config.KeyR53Domain, "", "Domain suffix of the generated hostnames")
	fs.String(config.KeyR53ReadPre, "", "Hostname prefix of reader instances")
	fs.String(config.KeyR53WritePre, "", "Hostname prefix of writer instances")
	fs.String(config.KeyLookupHost, "", "Host that resolves instance endpoints with getent")
	fs.String(config.KeyLookupUser, "", "SSH user on the lookup host")
	fs.Bool(config.KeyNoSyncWait, false, "Do not wait for the DNS change to sync")
	fs.String(config.KeyTimeToLive, "", "TTL of the generated records (default 300)")
	fs.String(config.KeyDNSProvider, config.DefaultProvider, "DNS provider ("+strings.Join(dnsprovider.Names(), ", ")+")")
}

func init() {
	cobra.OnInitialize(initConfig)

	// Define command line flags
	addTaskFlags(rootCmd.Flags())
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "The log level to use (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&lockFile, "lock-file", lock.DefaultPath, "Lock file preventing concurrent runs")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 1, "Number of tasks processed at once")
	rootCmd.PersistentFlags().DurationVar(&syncInterval, "sync-interval", dnsprovider.DefaultSyncInterval, "Interval between DNS change status polls")
	rootCmd.PersistentFlags().IntVar(&syncMaxAttempts, "sync-max-attempts", dnsprovider.DefaultSyncMaxAttempts, "Maximum number of DNS change status polls")
	rootCmd.PersistentFlags().IntVar(&syncPollRetries, "sync-poll-retries", dnsprovider.DefaultSyncPollRetries, "Consecutive failed status polls tolerated")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "If true, only log the changes that would be made")
	rootCmd.PersistentFlags().StringVar(&pushgatewayURL, "pushgateway-url", "", "Prometheus Pushgateway to push run metrics to")
	rootCmd.PersistentFlags().StringSliceVar(&sshKeys, "ssh-key", []string{}, "Private key files for the lookup host (default ~/.ssh identities)")
	rootCmd.PersistentFlags().IntVar(&sshPort, "ssh-port", 22, "SSH port of the lookup host")
	rootCmd.PersistentFlags().DurationVar(&sshTimeout, "ssh-timeout", 10*time.Second, "SSH connect timeout")
}

func initConfig() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded configuration from .env file")
	}

	// Set up environment variable handling
	viper.SetEnvPrefix("RCD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if os.Getenv("LOG_LEVEL") != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		logLevel = os.Getenv("LOG_LEVEL")
	}

	// Bind viper environment variables to flags
	bindEnv := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if !f.Changed && viper.IsSet(f.Name) {
				val := viper.Get(f.Name)
				if err := fs.Set(f.Name, fmt.Sprint(val)); err != nil {
					log.Printf("Warning: Failed to set flag %s from environment variable: %v", f.Name, err)
				}
			}
		})
	}
	bindEnv(rootCmd.PersistentFlags())
	bindEnv(rootCmd.Flags())
}
