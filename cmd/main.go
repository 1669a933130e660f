package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"studybuddy/internal/chunker"
	"studybuddy/internal/config"
	"studybuddy/internal/embedding"
	"studybuddy/internal/helper"
	"studybuddy/internal/ingester"
	"studybuddy/internal/models"
	"studybuddy/internal/rag"
	"studybuddy/internal/registry"
	"studybuddy/internal/retriever"
	"studybuddy/internal/vectorstore"
	chromemstore "studybuddy/internal/vectorstore/chromem"
	pgstore "studybuddy/internal/vectorstore/postgres"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	filePath := flag.String("file", "", "Path to a pre-extracted document text file to ingest")
	name := flag.String("name", "", "Display name for the ingested document (defaults to the file name)")
	imagesPath := flag.String("images", "", "Path to a file with one image description per line")
	query := flag.String("query", "", "Query to retrieve chunks for")
	collection := flag.String("collection", models.TextCollection, "Collection to query")
	docs := flag.String("docs", "", "Comma-separated allowed document ids for retrieval")
	k := flag.Int("k", 0, "Number of results to retrieve (0 uses the collection's configured top_k)")
	minScore := flag.Float64("min-score", 0, "Relevance floor override (0 uses the collection default)")
	list := flag.Bool("list", false, "List ingested documents")
	deleteIDs := flag.String("delete", "", "Comma-separated document ids to delete")
	dryRun := flag.Bool("dry-run", false, "Chunk only, do not embed or store")
	export := flag.Bool("export", false, "Export an encrypted snapshot (chromem backend only)")
	importSnap := flag.Bool("import", false, "Import a previously exported snapshot (chromem backend only)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	ctx := context.Background()

	if *filePath != "" && *dryRun {
		chunkOnly(*filePath, cfg)
		return
	}

	engine, err := setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error setting up retrieval engine")
	}
	defer engine.Close()

	switch {
	case *filePath != "":
		ingestFile(ctx, engine, cfg, *filePath, *name, *imagesPath)
	case *query != "":
		runQuery(ctx, engine, cfg, *collection, *query, *docs, *k, float32(*minScore))
	case *list:
		listDocuments(ctx, engine)
	case *deleteIDs != "":
		deleteDocuments(ctx, engine, *deleteIDs)
	case *export:
		if err := engine.ExportBackup(ctx); err != nil {
			log.Fatal().Err(err).Msg("Error exporting snapshot")
		}
		log.Info().Msg("Snapshot exported")
	case *importSnap:
		if err := engine.ImportBackup(ctx); err != nil {
			log.Fatal().Err(err).Msg("Error importing snapshot")
		}
		log.Info().Msg("Snapshot imported")
	default:
		log.Fatal().Msg("Provide one of -file, -query, -list, -delete, -export or -import")
	}
}

func setup(ctx context.Context, cfg *config.Config) (*rag.Engine, error) {
	var reg *registry.Registry
	var err error
	switch cfg.Registry.Backend {
	case "postgres":
		reg = registry.NewPostgres(cfg.Store.Database.SupabaseURL, cfg.Store.Database.SupabaseKey, cfg.Store.Database.Debug)
	default:
		reg, err = registry.NewSQLite(cfg.Registry.Path)
		if err != nil {
			return nil, err
		}
	}

	var store vectorstore.Store
	switch cfg.Store.Backend {
	case "postgres":
		store = pgstore.New(cfg.Store.Database.SupabaseURL, cfg.Store.Database.SupabaseKey, cfg.Store.Database.Debug)
	default:
		if !cfg.Store.Chromem.InMemory {
			if err := helper.CreateFolder(cfg.Store.Chromem.Path); err != nil {
				return nil, err
			}
		}
		store, err = chromemstore.New(
			cfg.Store.Chromem.Path,
			cfg.Store.Chromem.InMemory,
			cfg.Store.Chromem.Compress,
			cfg.Store.Chromem.EncryptionKey,
			reg,
		)
		if err != nil {
			return nil, err
		}
	}

	textEmbed, err := embedding.NewEmbedder(cfg.TextEmbed)
	if err != nil {
		return nil, err
	}
	imageEmbed, err := embedding.NewEmbedder(cfg.ImageEmbed)
	if err != nil {
		return nil, err
	}

	return rag.New(ctx, cfg, store, reg, textEmbed, imageEmbed)
}

func chunkOnly(filePath string, cfg *config.Config) {
	text, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msgf("Failed to read file: %s", filePath)
	}
	chunks, err := chunker.Split(string(text), chunker.Config{
		Strategy:     cfg.RAG.Strategy,
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		MinParagraph: cfg.RAG.MinParagraph,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error chunking document")
	}
	log.Info().Int("chunks", len(chunks)).Msg("Dry run complete")
	helper.PrettyPrint(chunks)
}

func ingestFile(ctx context.Context, engine *rag.Engine, cfg *config.Config, filePath, name, imagesPath string) {
	text, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msgf("Failed to read file: %s", filePath)
	}

	var descriptions []string
	if imagesPath != "" {
		raw, err := os.ReadFile(imagesPath)
		if err != nil {
			log.Fatal().Err(err).Msgf("Failed to read image descriptions: %s", imagesPath)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				descriptions = append(descriptions, line)
			}
		}
	}

	if name == "" {
		name = filePath
	}

	res, err := engine.Ingest(ctx, ingester.Request{
		Name:              name,
		Text:              string(text),
		ImageDescriptions: descriptions,
		Chunk: chunker.Config{
			Strategy:     cfg.RAG.Strategy,
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
			MinParagraph: cfg.RAG.MinParagraph,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Error ingesting document")
	}
	helper.PrettyPrint(res)
}

func runQuery(ctx context.Context, engine *rag.Engine, cfg *config.Config, collection, query, docs string, k int, minScore float32) {
	var allowed []string
	for _, id := range strings.Split(docs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			allowed = append(allowed, id)
		}
	}

	if k <= 0 {
		k = cfg.TopKFor(collection)
	}

	results, err := engine.Retrieve(ctx, collection, query, allowed, k, retriever.Options{MinScore: minScore})
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	sufficiency := engine.Classify(collection, results)
	fmt.Printf("Query: %s\nSufficiency: %s\n\n", query, sufficiency)
	helper.PrettyPrint(results)
}

func listDocuments(ctx context.Context, engine *rag.Engine) {
	docs, err := engine.ListDocuments(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error listing documents")
	}
	helper.PrettyPrint(docs)
}

func deleteDocuments(ctx context.Context, engine *rag.Engine, ids string) {
	var docIDs []string
	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			docIDs = append(docIDs, id)
		}
	}
	removed, err := engine.Delete(ctx, docIDs)
	if err != nil {
		log.Fatal().Err(err).Msg("Error deleting documents")
	}
	helper.PrettyPrint(removed)
}
