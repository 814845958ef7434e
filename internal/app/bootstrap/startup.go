// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	groupstore "github.com/campuskit/progresshub/internal/app/store/groups"
	projectstore "github.com/campuskit/progresshub/internal/app/store/projects"
	studentstore "github.com/campuskit/progresshub/internal/app/store/students"
	"github.com/campuskit/progresshub/internal/app/system/groupstatus"
	"github.com/campuskit/progresshub/internal/app/system/promote"
	"github.com/campuskit/progresshub/internal/app/system/reconcile"
	"github.com/campuskit/progresshub/internal/app/system/tasks"
	"github.com/campuskit/progresshub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// promotionWorker is the background pipeline worker, started here when
// enabled and stopped again in Shutdown.
var promotionWorker *workers.Promotion

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It is the
// place to start background workers or perform any app-wide setup that
// depends on config and backends.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if !appCfg.PromotionEnabled {
		return nil
	}

	students := studentstore.New(deps.MongoDatabase)
	groups := groupstore.New(deps.MongoDatabase)
	projects := projectstore.New(deps.MongoDatabase)

	engine := groupstatus.New(groups, students, logger)
	scheduler := promote.New(students, logger)
	reconciler := reconcile.New(students, groups, projects, engine, appCfg.ReconcileWorkers, logger)
	pipeline := tasks.NewPipeline(scheduler, reconciler, logger)

	promotionWorker = workers.NewPromotion(pipeline, logger,
		appCfg.PromotionInterval, appCfg.PromotionDegreeProgram, appCfg.PromotionFromSemester)
	promotionWorker.Start()

	return nil
}
