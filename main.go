// @title PULS 问卷网关 API
// @version 1.0
// @description PULS 问卷应用的后端网关，转发登录、题目、提交请求并接收录制文件。

// @host localhost:3000
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"log"

	"puls_survey/internal/app"
	"puls_survey/internal/config"
	"puls_survey/pkg/logger"
)

func main() {
	// 命令行参数
	configDir := flag.String("config", "configs", "配置文件目录")
	watch := flag.Bool("watch", true, "配置文件变更时热更新上游地址")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	if *watch {
		application.WatchConfig(*configDir)
	}

	application.Run()
}
