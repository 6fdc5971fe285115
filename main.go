package main

import (
	"context"
	"fmt"

	"filecrush/compressd/api"
	"filecrush/compressd/config"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	a, err := api.NewRouter()
	if err != nil {
		panic(err)
	}

	if config.SweepNow() {
		if n, err := a.Scheduler.Sweep(context.Background()); err != nil {
			zap.L().Error("Startup sweep failed", zap.Error(err))
		} else {
			zap.L().Info("Startup sweep finished", zap.Int("reaped", n))
		}
	}

	zap.L().Info("Server starting")

	err = a.Router.Run(fmt.Sprintf(":%d", viper.GetInt("host.port")))
	if err != nil {
		panic(err)
	}
}
