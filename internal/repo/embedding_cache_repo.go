package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sbk2k1/sbk-assistant/internal/model"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/dbutil"
)

const embeddingCacheTable = "embedding_cache"

type EmbeddingCacheRepo struct {
	db *sqlx.DB
}

func NewEmbeddingCacheRepo(db *sqlx.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// Get returns the cached vector. A row whose vector length does not match its
// recorded dimension is reported as a miss so it gets overwritten.
func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	const query = `
		SELECT embedding, dimension
		FROM embedding_cache
		WHERE model_name = $1 AND task_type = $2 AND content_hash = $3
	`
	var (
		embedding pgvector.Vector
		dimension int
	)
	if err := r.db.QueryRowxContext(ctx, query, modelName, taskType, contentHash).Scan(&embedding, &dimension); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	vec := embedding.Slice()
	if len(vec) != dimension {
		logutil.GetLogger(ctx).Warn("embedding cache row has wrong dimension",
			zap.String("model", modelName),
			zap.Int("want", dimension),
			zap.Int("got", len(vec)),
		)
		return nil, false, nil
	}
	return vec, true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.CachedEmbedding) error {
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, dimension, ctime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dimension = EXCLUDED.dimension,
			ctime = EXCLUDED.ctime
	`
	dimension := item.Dimension
	if dimension == 0 {
		dimension = len(item.Vector)
	}
	_, err := r.db.ExecContext(ctx, query,
		item.ModelName,
		item.TaskType,
		item.ContentHash,
		pgvector.NewVector(item.Vector),
		dimension,
		item.Ctime,
	)
	return err
}

// DeleteBefore drops rows written before cutoff (unix seconds).
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	query, args, err := dbutil.Delete(embeddingCacheTable, map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
