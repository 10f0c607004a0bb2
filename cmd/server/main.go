package main

import (
	"github.com/stef44n/messaging-app/internal/config"
	"github.com/stef44n/messaging-app/internal/db"
	applog "github.com/stef44n/messaging-app/internal/log"
	"github.com/stef44n/messaging-app/internal/notify"
	"github.com/stef44n/messaging-app/internal/server"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	_ = godotenv.Load()
	cfg := config.Load()
	applog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	hub := notify.NewHub()
	r := server.SetupRouter(cfg, gdb, hub)
	log.Info().Str("port", cfg.Port).Msg("listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
