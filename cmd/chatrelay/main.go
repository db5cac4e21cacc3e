package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stardustagi/ChatRelay/libs/conf"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/option"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/libs/uuid"
	"github.com/stardustagi/ChatRelay/services"
	"github.com/stardustagi/ChatRelay/utils"
)

var version = "dev"

func main() {
	opts := option.NewOptions()
	if err := opts.Parse(); err != nil {
		os.Exit(1)
	}
	if opts.Version {
		fmt.Println(opts.Application, version)
		return
	}
	if err := conf.Load(opts.ConfigFile); err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	// 没有 [logger] 段时按命令行参数写到 log.path 下
	def, err := utils.Struct2Bytes(logs.LoggerConfig{
		Filename: filepath.Join(opts.Log.Path, opts.Application+".log"),
		Level:    opts.LogLevel(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger config:", err)
		os.Exit(1)
	}
	logs.Init(conf.GetOr("logger", []byte(def)))
	defer logs.Sync()
	logger := logs.GetLogger("main")

	global, err := utils.Bytes2Struct[conf.Global](conf.Get("global"))
	if err != nil {
		logger.Fatal("parse [global]", logs.ErrorInfo(err))
	}
	if global.NodeID > 0 {
		uuid.SetNode(global.NodeID)
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		logger.Fatal("new server", logs.ErrorInfo(err))
	}
	app, err := services.NewApp(context.Background(), opts)
	if err != nil {
		logger.Fatal("new app", logs.ErrorInfo(err))
	}
	go func() {
		if err := app.Start(); err != nil {
			logger.Error("http server stopped", logs.ErrorInfo(err))
			srv.Shutdown()
		}
	}()
	srv.HandleSignal(app.Stop)
}
