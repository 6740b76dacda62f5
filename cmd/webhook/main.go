package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/app"
	"legal-rag/internal/config"
	"legal-rag/internal/helper"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, config.PurposeWebhook)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing clients")
	}
	defer a.Close()

	g, err := a.Gateway(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating gateway")
	}

	log.Info().Str("region", cfg.AWSRegion).Str("vector_store", cfg.Index.VectorStore).
		Str("token", helper.MaskSecret(cfg.Telegram.Token)).Msg("Webhook ready")
	lambda.Start(g.HandleAPIGateway)
}
