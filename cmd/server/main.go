package main

import (
	"log"
	"net/http"
	"time"

	"mediqcm/internal/api"
	"mediqcm/internal/config"
	"mediqcm/internal/db"
	"mediqcm/internal/services"
	"mediqcm/internal/session"
)

func main() {
	cfg := config.Load()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	callLog := services.NewCallLog(conn)
	aiService := services.NewAIService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint, callLog)
	state := session.New()

	server := api.NewServer(aiService, state)

	log.Printf("listening on :%s", cfg.Port)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     server.Handler(),
		ReadTimeout: 30 * time.Second,
		// Generation calls block for up to two minutes.
		WriteTimeout: 3 * time.Minute,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
