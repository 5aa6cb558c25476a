// Package main runs the project tracking HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/firmboard/backend/config"
	"github.com/firmboard/backend/internal/auth"
	"github.com/firmboard/backend/internal/memberships"
	"github.com/firmboard/backend/internal/middleware"
	"github.com/firmboard/backend/internal/notifications"
	"github.com/firmboard/backend/internal/projects"
	"github.com/firmboard/backend/internal/rbac"
	"github.com/firmboard/backend/internal/reports"
	"github.com/firmboard/backend/internal/tasks"
	"github.com/firmboard/backend/internal/teams"
	"github.com/firmboard/backend/internal/worker"
	"github.com/firmboard/backend/pkg/database"
	"github.com/firmboard/backend/pkg/queue"
	"github.com/firmboard/backend/pkg/redis"
	"github.com/firmboard/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Role catalog and permission engine. The seeded catalog must contain
	// every default role before the server takes traffic.
	rbacStore := rbac.NewStore(pool)
	defaults, err := rbac.LoadDefaults(ctx, rbacStore)
	if err != nil {
		logger.Fatal("role catalog", zap.Error(err))
	}
	if err := rbac.EnsureFirmAdmin(ctx, pool, defaults, cfg.Bootstrap, logger); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}
	engine := rbac.NewEngine(rbacStore, rbacStore, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Membership mutation service: every write goes through it so the
	// invariants hold no matter which handler called.
	memberStore := memberships.NewPostgresStore(pool)
	notifySink := notifications.NewQueueSink(jobQueue, logger)
	memberService := memberships.NewService(memberStore, engine, rbacStore, defaults, notifySink, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Teams
	teamRepo := teams.NewRepository(pool)
	teamHandler := teams.NewHandler(teamRepo, authRepo, memberService, logger)

	// Projects
	projectRepo := projects.NewRepository(pool)
	projectHandler := projects.NewHandler(projectRepo, memberService, logger)

	// Tasks (board columns, items, comments)
	taskRepo := tasks.NewRepository(pool)
	taskHandler := tasks.NewHandler(taskRepo, engine, logger)

	// Reports
	reportRepo := reports.NewRepository(pool)
	reportHandler := reports.NewHandler(reportRepo, logger)

	// Notifications
	notificationRepo := notifications.NewRepository(pool)
	notificationHandler := notifications.NewHandler(notificationRepo, logger)

	// Delivery worker
	deliveryWorker := worker.NewNotificationProcessor(worker.NewLogSender(logger), jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Protected API (JWT required). Mutations authorize inside the
	// membership service; reads are gated at the route.
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)
		api.GET("/users", middleware.RequirePermission(engine, rbac.ActionViewTeamMembers), authHandler.List)

		// Teams
		api.POST("/teams", teamHandler.Create)
		api.GET("/teams", teamHandler.ListMine)
		api.GET("/teams/all", middleware.RequirePermission(engine, rbac.ActionViewTeamMembers), teamHandler.ListAll)
		api.GET("/teams/:team_id", middleware.RequirePermission(engine, rbac.ActionViewTeamMembers, middleware.TeamParam("team_id")), teamHandler.Get)
		api.DELETE("/teams/:team_id", teamHandler.Delete)
		api.POST("/teams/:team_id/members", teamHandler.AddMember)
		api.DELETE("/teams/:team_id/members/:user_id", teamHandler.RemoveMember)
		api.PATCH("/teams/:team_id/members/:user_id/role", teamHandler.ChangeRole)
		api.GET("/teams/:team_id/permissions", teamHandler.MyPermissions)
		api.POST("/teams/:team_id/manager-requests", teamHandler.RequestManager)
		api.GET("/teams/:team_id/manager-requests", middleware.RequirePermission(engine, rbac.ActionAssignTeamRole, middleware.TeamParam("team_id")), teamHandler.ListManagerRequests)
		api.POST("/manager-requests/:request_id/accept", teamHandler.ResolveManagerRequest(true))
		api.POST("/manager-requests/:request_id/reject", teamHandler.ResolveManagerRequest(false))
		api.GET("/teams/:team_id/projects", middleware.RequirePermission(engine, rbac.ActionViewTeamMembers, middleware.TeamParam("team_id")), teamHandler.ListProjects)
		api.POST("/teams/:team_id/projects/:project_id", teamHandler.EnrollProject)
		api.DELETE("/teams/:team_id/projects/:project_id", teamHandler.WithdrawProject)

		// Projects
		api.POST("/projects", projectHandler.Create)
		api.GET("/projects", projectHandler.ListMine)
		api.GET("/dashboard", projectHandler.Dashboard)
		api.GET("/projects/:project_id", middleware.RequirePermission(engine, rbac.ActionViewProject, middleware.ProjectParam("project_id")), projectHandler.Get)
		api.PUT("/projects/:project_id", middleware.RequirePermission(engine, rbac.ActionEditProject, middleware.ProjectParam("project_id")), projectHandler.Update)
		api.DELETE("/projects/:project_id", middleware.RequirePermission(engine, rbac.ActionDeleteProject, middleware.ProjectParam("project_id")), projectHandler.Delete)
		api.POST("/projects/:project_id/transfer", projectHandler.Transfer)
		api.GET("/projects/:project_id/progress", middleware.RequirePermission(engine, rbac.ActionViewProject, middleware.ProjectParam("project_id")), projectHandler.Progress)
		api.GET("/projects/:project_id/members", middleware.RequirePermission(engine, rbac.ActionViewProject, middleware.ProjectParam("project_id")), projectHandler.ListMembers)
		api.POST("/projects/:project_id/members", projectHandler.AddMember)
		api.DELETE("/projects/:project_id/members/:user_id", projectHandler.RemoveMember)
		api.PATCH("/projects/:project_id/members/:user_id/role", projectHandler.ChangeMemberRole)
		api.POST("/projects/:project_id/invitations", projectHandler.Invite)
		api.GET("/invitations", projectHandler.ListMyInvitations)
		api.POST("/invitations/:request_id/accept", projectHandler.ResolveInvitation(true))
		api.POST("/invitations/:request_id/reject", projectHandler.ResolveInvitation(false))
		api.POST("/projects/:project_id/join-requests", projectHandler.RequestToJoin)
		api.GET("/projects/:project_id/join-requests", middleware.RequirePermission(engine, rbac.ActionAddRemoveMembers, middleware.ProjectParam("project_id")), projectHandler.ListJoinRequests)
		api.POST("/join-requests/:request_id/accept", projectHandler.ResolveJoinRequest(true))
		api.POST("/join-requests/:request_id/reject", projectHandler.ResolveJoinRequest(false))
		api.POST("/projects/:project_id/visitor-teams/:team_id", projectHandler.GrantVisitorTeam)
		api.DELETE("/projects/:project_id/visitors", projectHandler.RevokeVisitors)

		// Board columns
		api.GET("/projects/:project_id/columns", middleware.RequirePermission(engine, rbac.ActionViewTasks, middleware.ProjectParam("project_id")), taskHandler.ListColumns)
		api.POST("/projects/:project_id/columns", middleware.RequirePermission(engine, rbac.ActionEditProject, middleware.ProjectParam("project_id")), taskHandler.CreateColumn)
		api.PATCH("/projects/:project_id/columns/:column_id", middleware.RequirePermission(engine, rbac.ActionEditProject, middleware.ProjectParam("project_id")), taskHandler.RenameColumn)
		api.DELETE("/projects/:project_id/columns/:column_id", middleware.RequirePermission(engine, rbac.ActionEditProject, middleware.ProjectParam("project_id")), taskHandler.DeleteColumn)

		// Items and comments. Edit and delete resolve the any/own pair in
		// the handler because it needs the item's reporter and assignee.
		api.GET("/projects/:project_id/items", middleware.RequirePermission(engine, rbac.ActionViewTasks, middleware.ProjectParam("project_id")), taskHandler.ListItems)
		api.POST("/projects/:project_id/items", middleware.RequirePermission(engine, rbac.ActionCreateTask, middleware.ProjectParam("project_id")), taskHandler.CreateItem)
		api.GET("/items/:item_id", middleware.RequirePermission(engine, rbac.ActionViewTasks, middleware.ProjectFromItem(taskRepo, "item_id")), taskHandler.GetItem)
		api.PUT("/items/:item_id", taskHandler.UpdateItem)
		api.DELETE("/items/:item_id", taskHandler.DeleteItem)
		api.GET("/items/:item_id/comments", middleware.RequirePermission(engine, rbac.ActionViewTasks, middleware.ProjectFromItem(taskRepo, "item_id")), taskHandler.ListComments)
		api.POST("/items/:item_id/comments", middleware.RequirePermission(engine, rbac.ActionCommentTask, middleware.ProjectFromItem(taskRepo, "item_id")), taskHandler.AddComment)

		// Reports
		api.GET("/projects/:project_id/report", middleware.RequirePermission(engine, rbac.ActionViewTasks, middleware.ProjectParam("project_id")), reportHandler.Get)

		// Notifications
		api.GET("/notifications", notificationHandler.List)
		api.PATCH("/notifications/:notification_id/read", notificationHandler.MarkRead)
		api.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go deliveryWorker.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
