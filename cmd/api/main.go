package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"sssblog/core"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	codec, err := core.NewTokenCodec(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to initialize token codec: %v", err)
	}

	ctx := context.Background()
	db, err := core.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	store := core.NewStore(redisClient)
	users := core.NewPgUserDirectory(db)
	captcha := core.NewCaptchaService(store, cfg.CaptchaLength)
	queue := core.NewMailQueue(redisClient)
	mail := core.NewMailService(users, store, queue, cfg.MailFrom)

	router := core.NewRouter(cfg, codec, users, core.BcryptEncoder{}, captcha, mail)
	log.Printf("api listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
