package main

import (
	"log"

	"streamchat-orchestrator/internal/bootstrap"
	"streamchat-orchestrator/internal/config"
	"streamchat-orchestrator/internal/server"
)

func main() {
	cfg := config.Load()

	container := bootstrap.NewContainer(cfg)

	srv := server.New(cfg, container)

	log.Fatal(srv.Run())
}
