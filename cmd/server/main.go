package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/lumensite/lumen/internal/server"
	"github.com/lumensite/lumen/internal/server/auth"
	"github.com/lumensite/lumen/internal/utils"
	"github.com/lumensite/lumen/internal/version"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "LUMEN"
	defaultDataDir = ".data"
)

var rootCmd = &cobra.Command{
	Use:     "lumen-server",
	Short:   "Lumen chunked upload server",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		closeLog, err := setupFileLog(cfg.LogDir)
		if err != nil {
			return err
		}
		defer closeLog()

		srv, err := server.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer slog.Info("Bye!")
		return srv.Start(cmd.Context())
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token for the upload api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if !cfg.Auth.Enabled {
			return errors.New("auth is disabled, set auth.enabled to mint tokens")
		}

		subject, _ := cmd.Flags().GetString("subject")
		expiry, _ := cmd.Flags().GetDuration("expiry")

		token, err := auth.NewAuthService(&cfg.Auth).IssueAccessToken(subject, expiry)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.DetailedWithApp())
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "f", "", "Path to the config file (json or yaml)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", defaultDataDir, "Directory for sessions, staged chunks and published files")

	rootCmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().StringP("cert", "c", "", "Path to the TLS certificate file")
	rootCmd.Flags().StringP("key", "k", "", "Path to the TLS key file")

	tokenCmd.Flags().StringP("subject", "s", "", "Subject the token is issued to")
	tokenCmd.Flags().Duration("expiry", 0, "Token lifetime, defaults to auth.access_token_expiry")
	tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	slog.SetDefault(slog.New(newStdoutHandler()))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newStdoutHandler() slog.Handler {
	return tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.RFC3339Nano,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
}

// setupFileLog adds a plain text log file under logDir next to stdout
func setupFileLog(logDir string) (func(), error) {
	logFile := filepath.Join(logDir, "server.log")
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(newStdoutHandler(), fileHandler)))

	return func() { file.Close() }, nil
}

// loadConfig resolves the server config from defaults, config file, LUMEN_* env vars and flags, in increasing priority
func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	v := viper.New()

	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lumen")
		v.SetConfigName("lumen")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// token and version do not carry the http flags
	v.SetDefault("data_dir", defaultDataDir)
	bindFlag(v, cmd, "data_dir", "data-dir")
	bindFlag(v, cmd, "http.addr", "bind")
	bindFlag(v, cmd, "http.cert_file", "cert")
	bindFlag(v, cmd, "http.key_file", "key")

	dataDir, err := utils.ResolvePath(v.GetString("data_dir"))
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	setDefaults(v, server.DefaultConfig(dataDir))

	cfg := &server.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	cfg.DataDir = dataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("config loaded", "file", v.ConfigFileUsed(), "data_dir", cfg.DataDir, "addr", cfg.HTTP.Addr,
		"backend", cfg.Upload.Backend, "auth", cfg.Auth.Enabled, "secret", utils.MaskSecret(cfg.Auth.AccessTokenSecret))
	return cfg, nil
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, name string) {
	if f := cmd.Flag(name); f != nil {
		v.BindPFlag(key, f)
	}
}

// setDefaults registers every key so that env vars are seen by Unmarshal
func setDefaults(v *viper.Viper, d *server.Config) {
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.cert_file", d.HTTP.CertFile)
	v.SetDefault("http.key_file", d.HTTP.KeyFile)
	v.SetDefault("http.public_url", d.HTTP.PublicURL)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)

	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.token_issuer", d.Auth.TokenIssuer)
	v.SetDefault("auth.access_token_secret", d.Auth.AccessTokenSecret)
	v.SetDefault("auth.access_token_expiry", d.Auth.AccessTokenExpiry)

	u := d.Upload
	v.SetDefault("upload.chunk_size", u.ChunkSize)
	v.SetDefault("upload.min_chunk_size", u.MinChunkSize)
	v.SetDefault("upload.max_chunk_size", u.MaxChunkSize)
	v.SetDefault("upload.max_file_size", u.MaxFileSize)
	v.SetDefault("upload.session_ttl", u.SessionTTL)
	v.SetDefault("upload.completed_retention", u.CompletedRetention)
	v.SetDefault("upload.sweep_interval", u.SweepInterval)
	v.SetDefault("upload.max_open_sessions", u.MaxOpenSessions)
	v.SetDefault("upload.min_free_bytes", u.MinFreeBytes)
	v.SetDefault("upload.allowed_names", u.AllowedNames)
	v.SetDefault("upload.session_store", u.SessionStore)
	v.SetDefault("upload.db_path", u.DBPath)
	v.SetDefault("upload.backend", u.Backend)
	v.SetDefault("upload.staging_dir", u.StagingDir)
	v.SetDefault("upload.publish_dir", u.PublishDir)
	v.SetDefault("upload.s3.bucket_name", u.S3.BucketName)
	v.SetDefault("upload.s3.region", u.S3.Region)
	v.SetDefault("upload.s3.access_key", u.S3.AccessKey)
	v.SetDefault("upload.s3.secret_key", u.S3.SecretKey)
	v.SetDefault("upload.s3.endpoint", u.S3.Endpoint)
	v.SetDefault("upload.s3.use_accelerate", u.S3.UseAccelerate)
	v.SetDefault("upload.s3.prefix", u.S3.Prefix)

	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("rate_limit", d.RateLimit)
}
