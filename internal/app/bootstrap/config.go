// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for ProgressHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, promotion_interval, etc.
//   - Environment variables: PROGRESSHUB_MONGO_URI, PROGRESSHUB_PROMOTION_INTERVAL, etc.
//   - Command-line flags: --mongo_uri, --promotion_interval, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "progress_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Reconciler tuning
	{Name: "reconcile_workers", Default: 4, Desc: "Worker pool size for batch reconciliation runs"},

	// Scheduled promotion pipeline
	{Name: "promotion_enabled", Default: false, Desc: "Enable the scheduled promotion pipeline worker"},
	{Name: "promotion_interval", Default: "24h", Desc: "Interval between scheduled promotion runs (e.g., 24h)"},
	{Name: "promotion_degree_program", Default: "", Desc: "Degree program for the scheduled promotion cohort"},
	{Name: "promotion_from_semester", Default: 0, Desc: "Semester the scheduled promotion cohort advances from"},

	// Track choice stage table
	{Name: "track_stages", Default: "mca=5,btech=7,mtech=3", Desc: "Degree program to track-choice semester table (prog=sem,...)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
// CoreConfig comes from the shared WAFFLE layer; AppConfig is specific
// to this app and can be extended as the app grows.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, PROGRESSHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "PROGRESSHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	stages, err := parseStageTable(appValues.String("track_stages"))
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("invalid track_stages: %w", err)
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		ReconcileWorkers: appValues.Int("reconcile_workers"),

		PromotionEnabled:       appValues.Bool("promotion_enabled"),
		PromotionInterval:      appValues.Duration("promotion_interval", 24*time.Hour),
		PromotionDegreeProgram: appValues.String("promotion_degree_program"),
		PromotionFromSemester:  appValues.Int("promotion_from_semester"),

		TrackStages: stages,
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// This is the right place to enforce required fields or invariants that
// involve both the core and app configs.
//
// ProgressHub validates the MongoDB URI format to catch configuration
// errors early, before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.ReconcileWorkers < 1 {
		return fmt.Errorf("reconcile_workers must be at least 1 (got %d)", appCfg.ReconcileWorkers)
	}

	// The scheduled pipeline needs a fully specified cohort.
	if appCfg.PromotionEnabled {
		if appCfg.PromotionDegreeProgram == "" {
			return fmt.Errorf("promotion_enabled requires promotion_degree_program to be set")
		}
		if appCfg.PromotionFromSemester < 1 {
			return fmt.Errorf("promotion_enabled requires promotion_from_semester to be at least 1")
		}
		if appCfg.PromotionInterval < time.Minute {
			return fmt.Errorf("promotion_interval must be at least 1m (got %s)", appCfg.PromotionInterval)
		}
	}

	return nil
}

// parseStageTable parses "mca=5,btech=7" into a program -> semester map.
func parseStageTable(s string) (map[string]int, error) {
	stages := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		prog, semStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q is not of the form program=semester", pair)
		}
		prog = strings.ToLower(strings.TrimSpace(prog))
		sem, err := strconv.Atoi(strings.TrimSpace(semStr))
		if err != nil || sem < 1 {
			return nil, fmt.Errorf("entry %q has an invalid semester", pair)
		}
		stages[prog] = sem
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("no entries")
	}
	return stages, nil
}
