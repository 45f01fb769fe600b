// Package container wires the application with dig
package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/panjf2000/ants/v2"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/dig"
	"gorm.io/gorm"

	"github.com/anishgillella/serene-sub003/internal/application/cache"
	"github.com/anishgillella/serene-sub003/internal/application/repository"
	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever"
	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever/memory"
	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever/milvus"
	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever/postgres"
	qdrantrepo "github.com/anishgillella/serene-sub003/internal/application/repository/retriever/qdrant"
	"github.com/anishgillella/serene-sub003/internal/application/service/contextbuild"
	"github.com/anishgillella/serene-sub003/internal/application/service/file"
	"github.com/anishgillella/serene-sub003/internal/application/service/profile"
	"github.com/anishgillella/serene-sub003/internal/config"
	"github.com/anishgillella/serene-sub003/internal/database"
	"github.com/anishgillella/serene-sub003/internal/handler"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/models/embedding"
	"github.com/anishgillella/serene-sub003/internal/models/rerank"
	"github.com/anishgillella/serene-sub003/internal/router"
	"github.com/anishgillella/serene-sub003/internal/scheduler"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
	"github.com/anishgillella/serene-sub003/internal/utils/chunker"
)

// BuildContainer registers every provider. cfg is loaded by the caller so
// logging and tracing can start before anything connects.
func BuildContainer(container *dig.Container, cfg *config.Config, cleaner *ResourceCleaner) *dig.Container {
	must(container.Provide(func() *config.Config { return cfg }))
	must(container.Provide(func() *ResourceCleaner { return cleaner }))

	// Infrastructure
	must(container.Provide(initDatabase))
	must(container.Provide(initSegmentIndex))
	must(container.Provide(initFileService))
	must(container.Provide(initEmbedder))
	must(container.Provide(initReranker))
	must(container.Provide(initSessionCache))
	must(container.Provide(initChunker))
	must(container.Provide(initAntsPool))

	// Repositories
	must(container.Provide(repository.NewConflictRepository))
	must(container.Provide(repository.NewCalendarRepository))
	must(container.Provide(repository.NewProfileRepository))
	must(container.Provide(repository.NewSegmentTextRepository))

	// Services
	must(container.Provide(initPrimaryFetcher))
	must(container.Provide(initSecondaryFetcher))
	must(container.Provide(initSelector))
	must(container.Provide(initContextService))
	must(container.Provide(initProfileService))
	must(container.Provide(initSessionSweeper))

	// HTTP
	must(container.Provide(handler.NewContextHandler))
	must(container.Provide(handler.NewProfileHandler))
	must(container.Provide(router.NewRouter))

	return container
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func initDatabase(cfg *config.Config, cleaner *ResourceCleaner) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(context.Background(), db, cfg.Database); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	cleaner.Register(func(context.Context) error { return sqlDB.Close() })
	return db, nil
}

func initSegmentIndex(cfg *config.Config, db *gorm.DB, cleaner *ResourceCleaner) (interfaces.SegmentIndex, error) {
	ctx := context.Background()
	vs := cfg.VectorStore
	dim := cfg.Embedding.Dimensions
	maxMeta := cfg.Chunking.MaxMetadataBytes
	page := cfg.Context.ListPageSize

	switch strings.ToLower(vs.Engine) {
	case retriever.MilvusEngineType:
		c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
			Address:  vs.Milvus.Address,
			Username: vs.Milvus.Username,
			Password: vs.Milvus.Password,
			DBName:   vs.Milvus.DBName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to milvus: %w", err)
		}
		cleaner.Register(c.Close)
		return milvus.NewMilvusRetrieveEngineRepository(c, vs.Milvus.Collection, dim, maxMeta, page), nil
	case retriever.QdrantEngineType:
		c, err := qdrant.NewClient(&qdrant.Config{
			Host:   vs.Qdrant.Host,
			Port:   vs.Qdrant.Port,
			APIKey: vs.Qdrant.APIKey,
			UseTLS: vs.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		cleaner.Register(func(context.Context) error { return c.Close() })
		return qdrantrepo.NewQdrantRetrieveEngineRepository(c, vs.Qdrant.Collection, dim, maxMeta, page), nil
	case retriever.PostgresEngineType:
		return postgres.NewPostgresRetrieveEngineRepository(db, vs.Postgres.Table, maxMeta, page), nil
	case retriever.MemoryEngineType:
		logger.Warnf(ctx, "[Container] Using the in-process segment index; data is lost on restart")
		return memory.NewMemoryRetrieveEngineRepository(maxMeta, page), nil
	default:
		return nil, fmt.Errorf("unsupported vector store engine: %s", vs.Engine)
	}
}

func initFileService(cfg *config.Config) (interfaces.FileService, error) {
	s := cfg.Storage
	switch strings.ToLower(s.Type) {
	case "s3":
		return file.NewS3FileService(context.Background(),
			s.Endpoint, s.Region, s.AccessKey, s.SecretKey, s.Bucket, s.PathPrefix)
	case "minio":
		return file.NewMinioFileService(context.Background(),
			s.Endpoint, s.AccessKey, s.SecretKey, s.Bucket, s.PathPrefix, s.UseSSL)
	case "tos":
		return file.NewTosFileService(s.Endpoint, s.Region, s.AccessKey, s.SecretKey, s.Bucket, s.PathPrefix)
	case "local":
		return file.NewLocalFileService(s.LocalDir)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

func initEmbedder(cfg *config.Config) (interfaces.Embedder, error) {
	e := cfg.Embedding
	return embedding.NewEmbedder(embedding.Config{
		Provider:   e.Provider,
		BaseURL:    e.BaseURL,
		APIKey:     e.APIKey,
		Model:      e.Model,
		Dimensions: e.Dimensions,
		BatchSize:  e.BatchSize,
	})
}

func initReranker(cfg *config.Config, embedder interfaces.Embedder) (interfaces.Reranker, error) {
	r := cfg.Rerank
	return rerank.NewReranker(rerank.Config{
		Provider:          r.Provider,
		BaseURL:           r.BaseURL,
		APIKey:            r.APIKey,
		Model:             r.Model,
		RequestsPerSecond: r.RequestsPerSecond,
		Timeout:           r.Timeout,
	}, embedder)
}

func initSessionCache(cfg *config.Config) (interfaces.SessionCache, error) {
	return cache.NewSessionCache(context.Background(), cfg.Cache)
}

func initChunker(cfg *config.Config) (*chunker.Chunker, error) {
	c := cfg.Chunking
	return chunker.New(c.Encoding, c.ChunkTokens, c.OverlapTokens)
}

func initAntsPool(cfg *config.Config, cleaner *ResourceCleaner) (*ants.Pool, error) {
	workers := cfg.Ingest.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest pool: %w", err)
	}
	cleaner.RegisterFunc(pool.Release)
	return pool, nil
}

func initPrimaryFetcher(
	cfg *config.Config,
	index interfaces.SegmentIndex,
	texts interfaces.SegmentTextRepository,
	conflicts interfaces.ConflictRepository,
	files interfaces.FileService,
	embedder interfaces.Embedder,
	splitter *chunker.Chunker,
) *contextbuild.PrimaryFetcher {
	return contextbuild.NewPrimaryFetcher(index, texts, conflicts, files, embedder, splitter,
		cfg.Context.ListPageSize, cfg.Chunking.MaxMetadataBytes)
}

func initSecondaryFetcher(
	cfg *config.Config,
	index interfaces.SegmentIndex,
	texts interfaces.SegmentTextRepository,
	conflicts interfaces.ConflictRepository,
	calendar interfaces.CalendarRepository,
	sessionCache interfaces.SessionCache,
	embedder interfaces.Embedder,
) *contextbuild.SecondaryFetcher {
	c := cfg.Context
	return contextbuild.NewSecondaryFetcher(index, texts, conflicts, calendar, sessionCache, embedder,
		contextbuild.SecondaryConfig{
			SourceTimeout:    c.SecondaryTimeout,
			CalendarTimeout:  c.CalendarTimeout,
			CandidatePool:    c.CandidatePool,
			CalendarLookback: c.CalendarLookback,
			CalendarLimit:    c.CalendarLimit,
			PageSize:         c.ListPageSize,
		})
}

func initSelector(cfg *config.Config, reranker interfaces.Reranker, texts interfaces.SegmentTextRepository) *contextbuild.Selector {
	return contextbuild.NewSelector(reranker, texts, cfg.Context.TopK, cfg.Context.MinRelevance)
}

func initContextService(
	cfg *config.Config,
	primary *contextbuild.PrimaryFetcher,
	secondary *contextbuild.SecondaryFetcher,
	selector *contextbuild.Selector,
	sessionCache interfaces.SessionCache,
) interfaces.ContextService {
	return contextbuild.NewContextService(primary, secondary, selector, sessionCache, contextbuild.Config{
		TopK:           cfg.Context.TopK,
		PrimaryTimeout: cfg.Context.PrimaryTimeout,
	})
}

func initProfileService(
	cfg *config.Config,
	pool *ants.Pool,
	files interfaces.FileService,
	docs interfaces.ProfileRepository,
	texts interfaces.SegmentTextRepository,
	index interfaces.SegmentIndex,
	embedder interfaces.Embedder,
	sessionCache interfaces.SessionCache,
	splitter *chunker.Chunker,
) interfaces.ProfileService {
	return profile.NewProfileService(pool, files, docs, texts, index, embedder, sessionCache, splitter,
		profile.Config{MaxFileBytes: cfg.Ingest.MaxFileBytes})
}

func initSessionSweeper(cfg *config.Config, sessionCache interfaces.SessionCache) (*scheduler.SessionSweeper, error) {
	return scheduler.NewSessionSweeper(sessionCache, cfg.Cache.SweepSchedule, cfg.Cache.SessionIdleTTL)
}
