package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/filegate/internal/server"
	"github.com/dmitrijs2005/filegate/internal/server/config"
	"github.com/joho/godotenv"
)

func main() {

	// a missing .env is fine
	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
