//go:build wireinject
// +build wireinject

package di

import (
	"recruitdesk/internal/config"
	"recruitdesk/internal/dbmysql"
	"recruitdesk/internal/server"

	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Application struct {
	Config  *config.Config
	Log     *zap.SugaredLogger
	DB      *gorm.DB
	Hub     *server.Hub
	Handler *server.Handler
}

func InitializeApplication() (*Application, error) {
	wire.Build(
		config.Load,
		ProvideLogger,
		dbmysql.NewMySQL,
		dbmysql.NewNotificationStore,
		server.NewHub,
		server.NewHandler,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil
}

func ProvideLogger(cfg *config.Config) *zap.SugaredLogger {
	var log *zap.Logger
	if cfg.Server.Environment == "production" {
		log, _ = zap.NewProduction()
	} else {
		log, _ = zap.NewDevelopment()
	}
	return log.Sugar()
}
