package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/config"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/db"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/http/handlers"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/http/middleware"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/notify"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/service"

	_ "github.com/adrean-github/Proyecto-Yggdrasil/docs"
)

type Services struct {
	Agendas   *service.AgendaService
	Conflicts *service.ConflictService
	Resolver  *service.Resolver
	Dashboard *service.DashboardService
	Updater   *service.Updater
	Simulator *service.Simulator
}

func Router(cfg config.Config, store *db.Store, svcs Services, hub *notify.Hub, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:     store,
		Agendas:   svcs.Agendas,
		Conflicts: svcs.Conflicts,
		Resolver:  svcs.Resolver,
		Dashboard: svcs.Dashboard,
		Updater:   svcs.Updater,
		Simulator: svcs.Simulator,
		Hub:       hub,
		Validator: validator.New(),
		Logger:    logger,
		AdminKey:  cfg.AdminKey,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/ws", h.WebSocket)

	api := r.Group("/api")
	{
		api.GET("/agendas", h.AgendasList)
		api.GET("/conflicts", h.ConflictsList)
		api.GET("/conflicts/stats", h.ConflictsStats)
		api.POST("/conflicts/resolve", h.Resolve)
		api.GET("/boxes", h.BoxesList)
		api.GET("/boxes/free", h.BoxesFree)
		api.GET("/boxes/:id", h.BoxDetail)
		api.GET("/dashboard", h.DashboardGet)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/agendas", h.AgendaCreate)
		admin.DELETE("/agendas/:id", h.AgendaDelete)
		admin.POST("/agendas/:id/reassign", h.Reassign)
		admin.PATCH("/boxes/:id/state", h.BoxStatePatch)
		admin.POST("/dashboard/invalidate", h.DashboardInvalidate)
		admin.GET("/updater/status", h.UpdaterStatus)
		admin.POST("/simulator/upload", h.SimulatorUpload)
		admin.POST("/simulator/confirm", h.SimulatorConfirm)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
