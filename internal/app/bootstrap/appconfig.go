// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration: WAFFLE's CoreConfig covers
// framework-level settings (HTTP ports, TLS, logging level, request limits),
// while AppConfig is everything specific to ProgressHub.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connection pool size
	MongoMinPoolSize uint64 // Min connection pool size

	// ReconcileWorkers bounds the fan-out of batch reconciliation runs.
	ReconcileWorkers int

	// Scheduled promotion pipeline (advance cohort, then reconcile it).
	// Disabled unless PromotionEnabled; when enabled, a background worker
	// runs the pipeline for the configured cohort on every interval tick.
	PromotionEnabled       bool
	PromotionInterval      time.Duration // e.g., 24h for a nightly run
	PromotionDegreeProgram string        // cohort degree program (e.g., "mca")
	PromotionFromSemester  int           // semester the cohort advances from

	// TrackStages maps degree program -> the semester in which students of
	// that program choose a track. Parsed from the "track_stages" key
	// ("mca=5,btech=7,mtech=3"). Programs not listed here reject choices.
	TrackStages map[string]int
}
