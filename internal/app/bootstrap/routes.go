// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	groupsfeature "github.com/campuskit/progresshub/internal/app/features/groups"
	healthfeature "github.com/campuskit/progresshub/internal/app/features/health"
	promotionfeature "github.com/campuskit/progresshub/internal/app/features/promotion"
	trackchoicefeature "github.com/campuskit/progresshub/internal/app/features/trackchoice"
	groupstore "github.com/campuskit/progresshub/internal/app/store/groups"
	projectstore "github.com/campuskit/progresshub/internal/app/store/projects"
	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/groupstatus"
	"github.com/campuskit/progresshub/internal/app/system/promote"
	"github.com/campuskit/progresshub/internal/app/system/reconcile"
	"github.com/campuskit/progresshub/internal/app/system/tasks"
	"github.com/campuskit/progresshub/internal/app/system/trackselect"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// ProgressHub builds the stores once, assembles the domain components on top
// of them, and mounts a feature router per admin surface: group status,
// track choices, and the promotion pipeline.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	students := studentstore.New(deps.MongoDatabase)
	groups := groupstore.New(deps.MongoDatabase)
	projects := projectstore.New(deps.MongoDatabase)

	engine := groupstatus.New(groups, students, logger)
	registry := trackselect.New(students, appCfg.TrackStages, logger)
	scheduler := promote.New(students, logger)
	reconciler := reconcile.New(students, groups, projects, engine, appCfg.ReconcileWorkers, logger)
	pipeline := tasks.NewPipeline(scheduler, reconciler, logger)

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Group status engine: validate, promotion readiness, audits
	groupsHandler := groupsfeature.NewHandler(engine, logger)
	r.Mount("/groups", groupsfeature.Routes(groupsHandler))

	// Track choice lifecycle: set, finalize, query
	trackHandler := trackchoicefeature.NewHandler(registry, logger)
	r.Mount("/track-choices", trackchoicefeature.Routes(trackHandler))

	// Promotion: cohort advance, reconciliation, and the combined pipeline
	promotionHandler := promotionfeature.NewHandler(scheduler, reconciler, pipeline, logger)
	r.Mount("/promotion", promotionfeature.Routes(promotionHandler))

	return r, nil
}
