package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"legal-rag/internal/app"
	"legal-rag/internal/config"
	"legal-rag/internal/embedding"
	"legal-rag/internal/helper"
	"legal-rag/internal/parser"
	"legal-rag/internal/storage"
)

func main() {
	configFile := flag.String("config", "", "Optional YAML config file (defaults to CONFIG_FILE)")
	index := flag.Bool("index", false, "Rebuild the index from the configured documents")
	filePath := flag.String("file", "", "Path to a document to extract and chunk")
	query := flag.String("query", "", "Query to be answered")
	dryRun := flag.Bool("dry-run", false, "With -file, print the passages without embedding them")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration with secrets masked")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if cfg.Log.Format == "json" && os.Getenv("LOG_FORMAT") == "" {
		cfg.Log.Format = "console"
	}
	helper.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	if *printConfig {
		out, err := cfg.YAML()
		if err != nil {
			log.Fatal().Err(err).Msg("Error rendering config")
		}
		fmt.Print(out)
		return
	}

	actions := 0
	for _, set := range []bool{*index, *filePath != "", *query != ""} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		log.Fatal().Msg("Please provide exactly one of -index, -file or -query")
	}

	ctx := context.Background()
	if *filePath != "" && *dryRun {
		parseFile(ctx, *filePath, cfg, nil)
		return
	}

	a, err := app.New(ctx, cfg, config.PurposeCLI)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing clients")
	}
	defer a.Close()

	switch {
	case *index:
		buildIndex(ctx, a)
	case *filePath != "":
		parseFile(ctx, *filePath, cfg, a)
	case *query != "":
		performRAG(ctx, a, *query)
	}
}

func buildIndex(ctx context.Context, a *app.App) {
	in, err := a.Initializer(ctx, true)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating initializer")
	}
	report := in.Run(ctx)
	helper.PrettyPrint(report)
	if !report.OK() {
		os.Exit(1)
	}
}

// parseFile extracts and chunks one local file. With a it also embeds the
// passages, without touching the index.
func parseFile(ctx context.Context, path string, cfg *config.Config, a *app.App) {
	src := storage.NewLocalDir(filepath.Dir(path))
	doc, err := parser.LoadDocument(ctx, src, filepath.Base(path))
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	passages := parser.ChunkDocument(doc, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	log.Info().Int("pages", len(doc.Pages)).Int("passages", len(passages)).Msg("Parsed content")
	helper.PrettyPrint(passages)

	if a == nil {
		return
	}
	entries, err := embedding.GenerateEmbedding(ctx, a.Embedder, passages, embedding.Options{
		BatchSize: cfg.EmbedLLM.BatchSize,
		Retry:     a.Retry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error generating embedding")
	}
	if len(entries) > 0 {
		log.Info().Int("entries", len(entries)).Int("dimension", len(entries[0].Embedding)).Msg("Embedded passages")
	}
}

func performRAG(ctx context.Context, a *app.App, query string) {
	indexes, err := a.Indexes(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening index")
	}
	response, err := a.Pipeline(indexes).Query(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Source())

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Text)

	log.Info().Dur("duration", response.Duration).Int("passages", len(response.Passages)).Msg("Done")
}
