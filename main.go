package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/imalive/server/config"
	"github.com/imalive/server/jobs"
	"github.com/imalive/server/realtime"
	"github.com/imalive/server/repository"
	"github.com/imalive/server/routes"
	"github.com/imalive/server/services"
	"github.com/imalive/server/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	logger, err := utils.InitLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := config.OpenDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	reader, err := config.OpenReader(db, cfg.DBDriver)
	if err != nil {
		logger.Fatal("open reader", zap.Error(err))
	}
	rc := utils.InitRedis(cfg)
	loc := cfg.Location()

	hub := realtime.NewHub(logger)
	go hub.Run()

	messages := services.NewMessageService(db, hub)
	checkins := services.NewCheckinService(repository.NewCheckinRepository(db), services.NewMoodValidator(cfg.MoodTags), loc)
	cooldown := time.Duration(cfg.FriendRemindCooldownMinutes) * time.Minute
	reminders := services.NewReminderService(db, messages, loc, time.Duration(cfg.ReminderWindowMinutes)*time.Minute)
	uploads := services.NewUploadStore(db, cfg.UploadDir, routes.UploadURLPrefix, cfg.UploadMaxMB)

	scheduler := jobs.NewScheduler(cfg, reminders, uploads, rc, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("start scheduler", zap.Error(err))
	}

	r := routes.SetupRouter(routes.Deps{
		DB:        db,
		Checkins:  checkins,
		Accounts:  services.NewAccountService(db),
		Messages:  messages,
		Ranking:   services.NewRankingService(reader, loc, cooldown),
		Reminders: reminders,
		Uploads:   uploads,
		Hub:       hub,
		Scheduler: scheduler,
		Guard:     utils.NewRegisterGuard(cfg),
	})

	srv := utils.NewServer(":"+cfg.AppPort, r)
	srv.OnShutdown(func(ctx context.Context) {
		hub.Stop()
		scheduler.Stop(ctx)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		if rc != nil {
			_ = rc.Close()
		}
	})

	logger.Info("starting server", zap.String("port", cfg.AppPort), zap.String("db", cfg.DBDriver), zap.Bool("redis", rc != nil))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}
