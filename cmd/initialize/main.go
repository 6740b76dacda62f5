package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/app"
	"legal-rag/internal/config"
	"legal-rag/internal/helper"
	"legal-rag/internal/indexer"
)

func main() {
	local := flag.Bool("local", false, "Run one initialization and exit instead of starting the Lambda handler")
	configFile := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, config.PurposeInitialize)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing clients")
	}
	defer a.Close()

	if *local {
		in, err := a.Initializer(ctx, true)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating initializer")
		}
		report := in.Run(ctx)
		helper.PrettyPrint(report)
		if !report.OK() {
			os.Exit(1)
		}
		return
	}

	in, initErr := a.Initializer(ctx, false)
	lambda.Start(func(ctx context.Context, _ json.RawMessage) (events.APIGatewayProxyResponse, error) {
		if initErr != nil {
			log.Error().Err(initErr).Msg("Initializer unavailable")
			return indexer.FailureReport(initErr).Response(), nil
		}
		return in.Run(ctx).Response(), nil
	})
}
