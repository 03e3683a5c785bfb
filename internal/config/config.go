// Package config loads the single immutable configuration value each
// component receives a slice of at startup. There is no ambient
// dictionary and no component reads the environment directly once
// Load has run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EmbeddingMode selects which embedder provider backs the system.
type EmbeddingMode string

const (
	EmbeddingModeAPI   EmbeddingMode = "api"
	EmbeddingModeLocal EmbeddingMode = "local"
)

// ContextWrapMode selects whether contextual chunk annotation is
// embedded as a JSON object or as a concatenated string. Exactly one
// must be chosen and asserted at startup.
type ContextWrapMode string

const (
	ContextWrapJSON   ContextWrapMode = "json"
	ContextWrapConcat ContextWrapMode = "concat"
)

// Config is the immutable, fully-resolved configuration for every
// component. Construct it once via Load and pass it (or a narrower
// slice of it) into component constructors.
type Config struct {
	// Embedding
	EmbeddingMode      EmbeddingMode
	EmbeddingModel     string
	EmbeddingDim       int
	EmbeddingMaxLength int
	EmbeddingAPIKey    string
	EmbeddingAPIURL    string
	EmbeddingTimeout   time.Duration
	EmbeddingMaxConcur int

	// Reranking
	RerankerMode           string
	RerankerModel          string
	UseReranking           bool
	RerankerUseCalibration bool
	RerankerAPIKey         string
	RerankerAPIURL         string

	// Search
	UseHybridSearch bool

	// Extraction
	ExtractorContentSelector string
	PollutionPatternsFile    string

	// Database
	DatabaseDSN        string
	DBPoolMinConns     int32
	DBPoolMaxConns     int32
	StoreAllowANNIndex bool
	LexicalIndexDir    string

	// Crawling
	TargetURL             string
	CrawlerBatchSize      int
	CrawlerMaxConcurrent  int
	ProcessorBatchSize    int
	CrawlInterval         time.Duration
	CrawlMaintenanceCron  string

	// Chunking
	ChunkSize       int
	ContextWrapMode ContextWrapMode

	// Dashboard
	DashboardAddr string
}

// Load builds a Config from environment variables, applying reference
// defaults where one exists. Required keys that are missing or
// invalid return an error; the caller (process main) is expected to
// treat this as fatal per the "Configuration / startup" error kind.
func Load() (*Config, error) {
	cfg := &Config{
		EmbeddingTimeout:     30 * time.Second,
		EmbeddingMaxConcur:   4,
		DBPoolMinConns:       2,
		DBPoolMaxConns:       10,
		CrawlerBatchSize:     30,
		CrawlerMaxConcurrent: 30,
		ProcessorBatchSize:   5,
		CrawlInterval:        500 * time.Millisecond,
		ChunkSize:            5000,
		ContextWrapMode:      ContextWrapJSON,
		DashboardAddr:        ":8090",
	}

	mode, err := requireOneOf("EMBEDDING_MODE", "api", "local")
	if err != nil {
		return nil, err
	}
	cfg.EmbeddingMode = EmbeddingMode(mode)

	cfg.EmbeddingModel, err = require("EMBEDDING_MODEL")
	if err != nil {
		return nil, err
	}

	cfg.EmbeddingDim, err = requireInt("EMBEDDING_DIM")
	if err != nil {
		return nil, err
	}

	cfg.EmbeddingMaxLength, err = requireInt("EMBEDDING_MAX_LENGTH")
	if err != nil {
		return nil, err
	}

	if cfg.EmbeddingMode == EmbeddingModeAPI {
		cfg.EmbeddingAPIKey, err = require("EMBEDDING_API_KEY")
		if err != nil {
			return nil, err
		}
	}
	cfg.EmbeddingAPIURL = getEnvDefault("EMBEDDING_API_URL", "")

	cfg.RerankerMode = getEnvDefault("RERANKER_MODE", "local")
	cfg.RerankerModel = os.Getenv("RERANKER_MODEL")
	cfg.UseReranking = getEnvBool("USE_RERANKING", false)
	cfg.RerankerUseCalibration = getEnvBool("RERANKER_USE_CALIBRATION", false)
	cfg.RerankerAPIKey = os.Getenv("RERANKER_API_KEY")
	cfg.RerankerAPIURL = os.Getenv("RERANKER_API_URL")

	cfg.UseHybridSearch = getEnvBool("USE_HYBRID_SEARCH", false)

	cfg.ExtractorContentSelector = getEnvDefault("EXTRACTOR_CONTENT_SELECTOR", "")
	cfg.PollutionPatternsFile = os.Getenv("POLLUTION_PATTERNS_FILE")

	cfg.DatabaseDSN, err = buildDSN()
	if err != nil {
		return nil, err
	}

	cfg.TargetURL, err = require("TARGET_URL")
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("CRAWLER_BATCH_SIZE"); v != "" {
		cfg.CrawlerBatchSize, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: CRAWLER_BATCH_SIZE invalid: %w", err)
		}
	}
	if v := os.Getenv("CRAWLER_MAX_CONCURRENT"); v != "" {
		cfg.CrawlerMaxConcurrent, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: CRAWLER_MAX_CONCURRENT invalid: %w", err)
		}
	}
	if v := os.Getenv("PROCESSOR_BATCH_SIZE"); v != "" {
		cfg.ProcessorBatchSize, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PROCESSOR_BATCH_SIZE invalid: %w", err)
		}
	}
	if v := os.Getenv("CRAWL_INTERVAL"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("config: CRAWL_INTERVAL invalid: %w", err)
		}
		cfg.CrawlInterval = time.Duration(secs * float64(time.Second))
	}
	cfg.CrawlMaintenanceCron = os.Getenv("CRAWL_MAINTENANCE_SCHEDULE")

	cfg.StoreAllowANNIndex = getEnvBool("STORE_ALLOW_ANN_INDEX", false)
	cfg.LexicalIndexDir = os.Getenv("LEXICAL_INDEX_DIR")

	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		cfg.ChunkSize, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: CHUNK_SIZE invalid: %w", err)
		}
	}

	if v := os.Getenv("CONTEXT_WRAP_MODE"); v != "" {
		switch ContextWrapMode(v) {
		case ContextWrapJSON, ContextWrapConcat:
			cfg.ContextWrapMode = ContextWrapMode(v)
		default:
			return nil, fmt.Errorf("config: CONTEXT_WRAP_MODE must be %q or %q, got %q", ContextWrapJSON, ContextWrapConcat, v)
		}
	}

	if v := os.Getenv("DASHBOARD_ADDR"); v != "" {
		cfg.DashboardAddr = v
	}

	return cfg, nil
}

func require(key string) (string, error) {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("config: required environment variable %s is not set", key)
	}
	return v, nil
}

func requireInt(key string) (int, error) {
	v, err := require(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", key, v, err)
	}
	return n, nil
}

func requireOneOf(key string, allowed ...string) (string, error) {
	v, err := require(key)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("config: %s must be one of %v, got %q", key, allowed, v)
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// buildDSN assembles a Postgres DSN from discrete components, falling
// back to DATABASE_URL when set directly.
func buildDSN() (string, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}

	host, err := require("POSTGRES_HOST")
	if err != nil {
		return "", err
	}
	port := getEnvDefault("POSTGRES_PORT", "5432")
	db, err := require("POSTGRES_DATABASE")
	if err != nil {
		return "", err
	}
	user, err := require("POSTGRES_USER")
	if err != nil {
		return "", err
	}
	password := os.Getenv("POSTGRES_PASSWORD")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, password, host, port, db), nil
}
