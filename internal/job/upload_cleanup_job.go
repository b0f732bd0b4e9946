package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sbk2k1/sbk-assistant/internal/filestore"
)

// UploadCleanupJob removes raw uploads older than maxAge. Their chunks stay in
// the index.
type UploadCleanupJob struct {
	pruner filestore.Pruner
	maxAge time.Duration
	now    func() time.Time
}

func NewUploadCleanupJob(pruner filestore.Pruner, maxAge time.Duration) *UploadCleanupJob {
	return &UploadCleanupJob{pruner: pruner, maxAge: maxAge, now: time.Now}
}

func (j *UploadCleanupJob) Name() string {
	return "upload_cleanup"
}

func (j *UploadCleanupJob) Run(ctx context.Context) error {
	if j.pruner == nil || j.maxAge <= 0 {
		return nil
	}
	before := j.now().Add(-j.maxAge)
	removed, err := j.pruner.Prune(ctx, before)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("uploads pruned", zap.Int("removed", removed), zap.Time("before", before))
	return nil
}
