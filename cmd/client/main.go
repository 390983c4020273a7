package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/lumensite/lumen/internal/lumensdk"
	"github.com/lumensite/lumen/internal/utils"
	"github.com/lumensite/lumen/internal/version"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix        = "LUMEN"
	configFileName   = "config"
	defaultServerURL = "http://127.0.0.1:8080"
)

var (
	home, _           = os.UserHomeDir()
	defaultConfigDir  = filepath.Join(home, ".config", "lumen")
	defaultResumeDir  = filepath.Join(defaultConfigDir, "resume")
	defaultConfigPath = filepath.Join(defaultConfigDir, configFileName+".json")
)

// Config is the client configuration
type Config struct {
	Path          string
	ServerURL     string `mapstructure:"server_url"`
	Token         string `mapstructure:"token"`
	ChunkSize     int64  `mapstructure:"-"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	ResumeDir     string `mapstructure:"resume_dir"`
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if !utils.IsValidURL(c.ServerURL) {
		return fmt.Errorf("invalid server_url %q", c.ServerURL)
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return errors.New("max_concurrent must be positive")
	}
	return nil
}

// sdkConfig builds the http client config for c
func (c *Config) sdkConfig() *lumensdk.Config {
	return &lumensdk.Config{
		BaseURL:     c.ServerURL,
		AccessToken: c.Token,
	}
}

var rootCmd = &cobra.Command{
	Use:           "lumen",
	Short:         "Lumen upload client",
	Version:       version.Detailed(),
	SilenceErrors: true,
}

func init() {
	addGlobalFlags(rootCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Lumen config file")
	cmd.PersistentFlags().StringP("server", "s", defaultServerURL, "Lumen server URL")
	cmd.PersistentFlags().StringP("token", "t", "", "Access token for the upload api")
}

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig resolves the client config from the config file, LUMEN_* env vars and flags, in increasing priority
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(defaultConfigDir)
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("server_url", defaultServerURL)
	v.SetDefault("token", "")
	v.SetDefault("chunk_size", humanize.IBytes(uint64(lumensdk.DefaultChunkSize)))
	v.SetDefault("max_concurrent", lumensdk.DefaultMaxConcurrent)
	v.SetDefault("resume_dir", defaultResumeDir)

	bindFlag(v, cmd, "server_url", "server")
	bindFlag(v, cmd, "token", "token")
	bindFlag(v, cmd, "chunk_size", "chunk-size")
	bindFlag(v, cmd, "max_concurrent", "concurrency")

	cfg := &Config{Path: v.ConfigFileUsed()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}

	chunkSize, err := humanize.ParseBytes(v.GetString("chunk_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid chunk_size %q: %w", v.GetString("chunk_size"), err)
	}
	cfg.ChunkSize = int64(chunkSize)

	if cfg.ResumeDir != "" {
		if cfg.ResumeDir, err = utils.ResolvePath(cfg.ResumeDir); err != nil {
			return nil, fmt.Errorf("resolve resume dir: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("config loaded", "file", cfg.Path, "server", cfg.ServerURL, "token", utils.MaskSecret(cfg.Token))
	return cfg, nil
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, name string) {
	if f := cmd.Flag(name); f != nil {
		v.BindPFlag(key, f)
	}
}

// newSDK loads the config and connects an sdk client for cmd
func newSDK(cmd *cobra.Command) (*lumensdk.LumenSDK, *Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	cmd.SilenceUsage = true

	sdk, err := lumensdk.New(cfg.sdkConfig())
	if err != nil {
		return nil, nil, err
	}
	return sdk, cfg, nil
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
