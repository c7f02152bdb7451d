package main

import (
	"offer-storefront-engine/internal/app/server"
	"offer-storefront-engine/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel)
	server.Run(cfg)
}
