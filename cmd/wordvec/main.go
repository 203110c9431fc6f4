// Package main provides the wordvec CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/diachrony/wordvec/pkg/cache"
	"github.com/diachrony/wordvec/pkg/config"
	"github.com/diachrony/wordvec/pkg/embedding"
	"github.com/diachrony/wordvec/pkg/loader"
	"github.com/diachrony/wordvec/pkg/metric"
	"github.com/diachrony/wordvec/pkg/query"
	"github.com/diachrony/wordvec/pkg/resolver"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wordvec",
		Short: "wordvec - Word-embedding cache and nearest-neighbor search engine",
		Long: `wordvec answers top-k similarity queries over word-embedding
artifacts on disk.

Features:
  • Text, word2vec, fastText and container artifact formats
  • LRU artifact cache with a bounded memory budget
  • Exact top-k neighbor, similarity, analogy and batch queries
  • Persistent collection-to-artifact mappings`,
	}

	rootCmd.PersistentFlags().Int32("database", 1, "Database ID for collection lookups")
	rootCmd.PersistentFlags().String("config", "", "YAML config file overlaying WORDVEC_* environment variables")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wordvec v%s (%s)\n", version, commit)
		},
	})

	// Neighbors command
	neighborsCmd := &cobra.Command{
		Use:   "neighbors <collection> <word>",
		Short: "Find the most similar words to a query word",
		Args:  cobra.ExactArgs(2),
		RunE:  runNeighbors,
	}
	neighborsCmd.Flags().Int("k", 0, "Number of neighbors (default 10, max 100)")
	neighborsCmd.Flags().Float64("threshold", 0, "Minimum similarity score")
	neighborsCmd.Flags().Bool("scores", true, "Include similarity scores")
	neighborsCmd.Flags().String("metric", "cosine", "Similarity metric (cosine, dot, euclidean, manhattan)")
	neighborsCmd.Flags().Bool("parallel", false, "Parallel scan for large vocabularies")
	rootCmd.AddCommand(neighborsCmd)

	// Similarity command
	similarityCmd := &cobra.Command{
		Use:   "similarity <collection> <word1> <word2>",
		Short: "Compute pairwise similarity between two words",
		Args:  cobra.ExactArgs(3),
		RunE:  runSimilarity,
	}
	similarityCmd.Flags().String("metric", "cosine", "Similarity metric")
	rootCmd.AddCommand(similarityCmd)

	// Analogy command
	analogyCmd := &cobra.Command{
		Use:   "analogy <collection> <a> <b> <c>",
		Short: "Answer \"a is to b as c is to ?\"",
		Args:  cobra.ExactArgs(4),
		RunE:  runAnalogy,
	}
	analogyCmd.Flags().Int("k", 0, "Number of candidates (default 5, max 20)")
	rootCmd.AddCommand(analogyCmd)

	// Batch command
	batchCmd := &cobra.Command{
		Use:   "batch <collection> <word>...",
		Short: "Find neighbors for several words in one call",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runBatch,
	}
	batchCmd.Flags().Int("k", 0, "Number of neighbors per word")
	batchCmd.Flags().Bool("scores", true, "Include similarity scores")
	batchCmd.Flags().String("metric", "cosine", "Similarity metric")
	rootCmd.AddCommand(batchCmd)

	// Stats command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print a cache statistics snapshot",
		RunE:  runStats,
	})

	// Collections admin commands
	collectionsCmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage collection-to-artifact mappings",
	}
	setCmd := &cobra.Command{
		Use:   "set <collection> <none|default|path>",
		Short: "Map a collection to an embedding source",
		Args:  cobra.ExactArgs(2),
		RunE:  runCollectionsSet,
	}
	collectionsCmd.AddCommand(setCmd)
	collectionsCmd.AddCommand(&cobra.Command{
		Use:   "get <collection>",
		Short: "Show the mapping for a collection",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollectionsGet,
	})
	collectionsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all mappings for the database",
		RunE:  runCollectionsList,
	})
	collectionsCmd.AddCommand(&cobra.Command{
		Use:   "delete <collection>",
		Short: "Remove the mapping for a collection",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollectionsDelete,
	})
	rootCmd.AddCommand(collectionsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// engine bundles everything a query command needs.
type engine struct {
	cfg     *config.Config
	svc     *query.Service
	store   *resolver.Store
	logger  *slog.Logger
	cleanup func()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.LoadFromEnv()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func newEngine(cmd *cobra.Command) (*engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	metrics := metric.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		store.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	loaderCfg := loader.Config{
		MaxWords:           cfg.Loader.MaxWordsPerArtifact,
		NormalizeOnLoad:    cfg.Loader.NormalizeOnLoad,
		ValidateDimensions: cfg.Loader.ValidateDimensions,
		SkipInvalidWords:   cfg.Loader.SkipInvalidWords,
	}
	paths := cache.NewPathCache(func(path string) (*embedding.Artifact, error) {
		art, _, err := loader.Load(path, loaderCfg)
		return art, err
	}, cache.Options{
		MaxEntries: cfg.Cache.MaxEmbeddingFiles,
		MaxBytes:   cfg.Cache.MaxMemoryBytes,
		Logger:     logger,
		Metrics:    metrics,
	})
	collections := cache.NewCollectionCache(paths,
		resolver.NewPooled(store, cfg.Resolver.PoolSize),
		cache.CollectionOptions{
			DefaultPath: cfg.Cache.DefaultEmbeddingPath,
			Logger:      logger,
		})

	return &engine{
		cfg:     cfg,
		svc:     query.NewService(paths, collections, query.ServiceOptions{Logger: logger, Metrics: metrics}),
		store:   store,
		logger:  logger,
		cleanup: func() { store.Close() },
	}, nil
}

func openStore(cfg *config.Config) (*resolver.Store, error) {
	return resolver.OpenStore(resolver.StoreOptions{
		DataDir:  cfg.Resolver.DataDir,
		InMemory: cfg.Resolver.InMemory,
	})
}

func collectionKey(cmd *cobra.Command, collection string) cache.CollectionKey {
	databaseID, _ := cmd.Flags().GetInt32("database")
	return cache.CollectionKey{DatabaseID: databaseID, Collection: collection}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.cleanup()

	req := query.NeighborsRequest{Word: args[1]}
	req.K, _ = cmd.Flags().GetInt("k")
	req.IncludeScores, _ = cmd.Flags().GetBool("scores")
	req.Metric, _ = cmd.Flags().GetString("metric")
	req.Parallel, _ = cmd.Flags().GetBool("parallel")
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		req.Threshold = &threshold
	}

	resp, err := eng.svc.Neighbors(context.Background(), collectionKey(cmd, args[0]), req)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runSimilarity(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.cleanup()

	metric, _ := cmd.Flags().GetString("metric")
	resp, err := eng.svc.Similarity(context.Background(), collectionKey(cmd, args[0]), args[1], args[2], metric)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runAnalogy(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.cleanup()

	k, _ := cmd.Flags().GetInt("k")
	resp, err := eng.svc.Analogy(context.Background(), collectionKey(cmd, args[0]), args[1], args[2], args[3], k)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runBatch(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.cleanup()

	params := query.NeighborsRequest{}
	params.K, _ = cmd.Flags().GetInt("k")
	params.IncludeScores, _ = cmd.Flags().GetBool("scores")
	params.Metric, _ = cmd.Flags().GetString("metric")

	resp, err := eng.svc.BatchNeighbors(context.Background(), collectionKey(cmd, args[0]), args[1:], params)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runStats(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.cleanup()
	return printJSON(eng.svc.Stats())
}

func runCollectionsSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var spec resolver.Specifier
	switch args[1] {
	case "none":
		spec = resolver.None()
	case "default":
		spec = resolver.Default()
	default:
		spec = resolver.Custom(args[1])
	}

	key := collectionKey(cmd, args[0])
	if err := store.Set(context.Background(), key.DatabaseID, key.Collection, spec); err != nil {
		return err
	}
	fmt.Printf("Mapped %s to %s\n", args[0], describeSpec(spec))
	return nil
}

func runCollectionsGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	key := collectionKey(cmd, args[0])
	spec, found, err := store.Get(context.Background(), key.DatabaseID, key.Collection)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("No mapping for %s (resolves to none)\n", args[0])
		return nil
	}
	return printJSON(spec)
}

func runCollectionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	databaseID, _ := cmd.Flags().GetInt32("database")
	mappings, err := store.List(context.Background(), databaseID)
	if err != nil {
		return err
	}
	return printJSON(mappings)
}

func runCollectionsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	key := collectionKey(cmd, args[0])
	if err := store.Delete(context.Background(), key.DatabaseID, key.Collection); err != nil {
		return err
	}
	fmt.Printf("Deleted mapping for %s\n", args[0])
	return nil
}

func describeSpec(spec resolver.Specifier) string {
	if spec.Kind == resolver.KindCustom {
		return fmt.Sprintf("custom path %s", spec.Path)
	}
	return string(spec.Kind)
}
