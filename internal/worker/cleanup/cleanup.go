// Package cleanup は期限切れの認可コードとトークンの自動削除ジョブを提供する。
// 保持期間（認可コード24時間、トークン30日）を超えて期限切れになっている行を
// 定期的に削除する。保持期間内の期限切れ行は検索で引き続き返される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// 削除対象の種別。ログとメトリクスのラベルに使用する。
const (
	KindGrant = "grant"
	KindToken = "token"
)

// ExpiredDeleter はcutoffより前に期限切れとなった行を削除するインターフェース。
// repository.GrantRepositoryとrepository.TokenRepositoryが満たす。
type ExpiredDeleter interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeletedObserver は削除件数の記録先。
type DeletedObserver interface {
	RecordCleanupDeleted(kind string, count int64)
}

// Config はクリーンアップジョブの設定。
type Config struct {
	GrantRetention time.Duration    // 認可コードの保持期間（デフォルト: 24時間）
	TokenRetention time.Duration    // トークンの保持期間（デフォルト: 720時間）
	Now            func() time.Time // 現在時刻。nilの場合はtime.Now
}

// CleanupJob は保持期間を超過した認可コードとトークンの自動削除ジョブ。
// 冪等な削除処理であり、何度実行しても結果は変わらない。
type CleanupJob struct {
	grants   ExpiredDeleter
	tokens   ExpiredDeleter
	observer DeletedObserver
	logger   *slog.Logger

	grantRetention time.Duration
	tokenRetention time.Duration
	now            func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。observerはnilでもよい。
func NewCleanupJob(grants, tokens ExpiredDeleter, observer DeletedObserver, logger *slog.Logger, config Config) *CleanupJob {
	j := &CleanupJob{
		grants:         grants,
		tokens:         tokens,
		observer:       observer,
		logger:         logger,
		grantRetention: config.GrantRetention,
		tokenRetention: config.TokenRetention,
		now:            config.Now,
	}
	if j.grantRetention <= 0 {
		j.grantRetention = 24 * time.Hour
	}
	if j.tokenRetention <= 0 {
		j.tokenRetention = 720 * time.Hour
	}
	if j.now == nil {
		j.now = time.Now
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	return j
}

// Run は保持期間を超過した認可コードとトークンを削除する。
// 片方の削除に失敗してももう片方は実行し、最初のエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	grantErr := j.purge(ctx, KindGrant, j.grants, now.Add(-j.grantRetention), j.grantRetention)
	tokenErr := j.purge(ctx, KindToken, j.tokens, now.Add(-j.tokenRetention), j.tokenRetention)

	if grantErr != nil {
		return grantErr
	}
	return tokenErr
}

func (j *CleanupJob) purge(ctx context.Context, kind string, deleter ExpiredDeleter, cutoff time.Time, retention time.Duration) error {
	start := time.Now()

	deleted, err := deleter.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
			slog.Duration("retention", retention),
		)
		return fmt.Errorf("%sのクリーンアップに失敗: %w", kind, err)
	}

	if j.observer != nil {
		j.observer.RecordCleanupDeleted(kind, deleted)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.String("kind", kind),
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", retention),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以後interval間隔でRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
