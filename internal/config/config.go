package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"zilazol/internal"
	"zilazol/internal/canon"
	"zilazol/internal/logger"
)

type Config struct {
	DBPath    string
	RawDir    string
	OutputDir string

	LogLevel  string
	LogFormat string
	LogFile   string

	PortalTimeoutMs    int
	PortalRateLimitRPS int

	ExtractWorkers int

	NameTokenRatio       float64
	NameSimilarityCutoff float64

	ListenerIntervalSec  int
	ListenerCategories   []internal.Category
	ListenerChains       []string
	ListenerFetchMax     int
	ListenerProcessBatch int
	ListenerCanonicalize bool
	ListenerAutoExport   bool

	ChainsFile   string
	RegistryFile string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	categories, err := parseCategories(getEnv("LISTENER_CATEGORIES", "stores,prices_full,promotions_full"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawDir:    getEnv("RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogFile:   getEnv("LOG_FILE", ""),

		PortalTimeoutMs:    getEnvInt("PORTAL_TIMEOUT_MS", 60000),
		PortalRateLimitRPS: getEnvInt("PORTAL_RATE_LIMIT_RPS", 2),

		ExtractWorkers: getEnvInt("EXTRACT_WORKERS", 0),

		NameTokenRatio:       getEnvFloat("NAME_TOKEN_RATIO", canon.DefaultOptions().RatioThreshold),
		NameSimilarityCutoff: getEnvFloat("NAME_SIMILARITY_CUTOFF", canon.DefaultOptions().SimilarityCutoff),

		ListenerIntervalSec:  getEnvInt("LISTENER_INTERVAL_SEC", 3600),
		ListenerCategories:   categories,
		ListenerChains:       splitList(getEnv("LISTENER_CHAINS", "")),
		ListenerFetchMax:     getEnvInt("LISTENER_FETCH_MAX", 20),
		ListenerProcessBatch: getEnvInt("LISTENER_PROCESS_BATCH", 100),
		ListenerCanonicalize: getEnvBool("LISTENER_CANONICALIZE", true),
		ListenerAutoExport:   getEnvBool("LISTENER_AUTO_EXPORT", false),

		ChainsFile:   getEnv("CHAINS_FILE", ""),
		RegistryFile: getEnv("REGISTRY_FILE", ""),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) LoggerOptions() logger.Options {
	return logger.Options{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile}
}

func (c Config) CanonOptions() canon.Options {
	opts := canon.DefaultOptions()
	opts.RatioThreshold = c.NameTokenRatio
	opts.SimilarityCutoff = c.NameSimilarityCutoff
	opts.Workers = c.ExtractWorkers
	return opts
}

func parseCategories(value string) ([]internal.Category, error) {
	var out []internal.Category
	for _, part := range splitList(value) {
		c, err := internal.ParseCategory(part)
		if err != nil {
			return nil, fmt.Errorf("LISTENER_CATEGORIES: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
