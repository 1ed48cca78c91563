// Package config loads service configuration from a YAML file, a .env
// file, and process environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem abstracts file probing so tests can point the loader at
// fixtures without touching the working directory.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

type realFileSystem struct{}

func (realFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (realFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoaderOption customizes Load.
type LoaderOption func(*loaderConfig)

type loaderConfig struct {
	fs         FileSystem
	configFile string
	envFile    string
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.configFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.envFile = path }
}

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *loaderConfig) { lc.fs = fs }
}

// configSearchPaths are probed in order when no explicit file is given.
var configSearchPaths = []string{
	"./config.yml",
	"./config/config.yml",
	"./cmd/scribed/config.yml",
	"../config/config.yml",
}

var envSearchPaths = []string{
	"./.env",
	"./cmd/scribed/.env",
	"../.env",
}

// load populates cfg from the resolved files and the environment.
func load(cfg interface{}, opts ...LoaderOption) error {
	var lc loaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.fs == nil {
		lc.fs = realFileSystem{}
	}
	if lc.configFile == "" {
		lc.configFile = firstExisting(lc.fs, configSearchPaths)
	}
	if lc.envFile == "" {
		lc.envFile = firstExisting(lc.fs, envSearchPaths)
	}

	v := viper.New()

	if lc.configFile != "" && lc.fs.Exists(lc.configFile) {
		v.SetConfigFile(lc.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", lc.configFile, err)
		}
	}

	// .env values become process env vars, then the env pass below
	// picks them up like any other variable.
	if lc.envFile != "" && lc.fs.Exists(lc.envFile) {
		if err := lc.fs.LoadEnv(lc.envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", lc.envFile, err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func firstExisting(fs FileSystem, paths []string) string {
	for _, p := range paths {
		if fs.Exists(p) {
			return p
		}
	}
	return ""
}

// envPrefix scopes environment variables to this service.
const envPrefix = "SCRIBED_"

// bindEnvVars maps SCRIBED_* environment variables onto nested config
// keys. SCRIBED_SERVER_PORT sets server.port; because section names are
// single words, the first underscore splits section from field and the
// rest stays a field name (SCRIBED_AUDIO_MAX_UPLOAD_MB ->
// audio.max_upload_mb).
func bindEnvVars(v *viper.Viper) {
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 || !strings.HasPrefix(pair[0], envPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(pair[0], envPrefix))
		for _, variant := range envKeyVariants(key) {
			v.Set(variant, pair[1])
		}
	}
}

// envKeyVariants generates the nested key spellings a variable may bind
// to. server_cors_allowed_origins -> [server_cors_allowed_origins,
// server.cors.allowed.origins, server.cors_allowed_origins, ...].
func envKeyVariants(key string) []string {
	parts := strings.Split(key, "_")
	if len(parts) <= 1 {
		return []string{key}
	}

	variants := []string{key, strings.ReplaceAll(key, "_", ".")}
	for i := 1; i < len(parts); i++ {
		variants = append(variants, strings.Join(parts[:i], ".")+"."+strings.Join(parts[i:], "_"))
	}

	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
