// Package reconcile は音声がアップロードされなかった孤立セッションの整合ジョブを提供する。
// recordedのまま閾値を超えて残り、ストレージに音声オブジェクトがないセッションを
// 終端状態のfailedに更新する。行の削除は行わない。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhetor-app/rhetor/internal/metrics"
	"github.com/rhetor-app/rhetor/internal/model"
	"github.com/rhetor-app/rhetor/internal/repository"
)

// ObjectChecker はストレージ上のオブジェクトの存在を確認する。storage.Clientが実装する。
type ObjectChecker interface {
	Exists(ctx context.Context, bucket, path string) (bool, error)
}

// Options はJobの動作設定。
type Options struct {
	Bucket        string
	OrphanAfter   time.Duration // recordedのまま残っている時間の閾値
	BatchSize     int           // 1サイクルで確認する最大件数（デフォルト: 100）
	MaxConcurrent int           // ストレージ確認の最大並列数（デフォルト: 5）
}

// Result は1サイクルの実行結果。
type Result struct {
	Checked int
	Marked  int
	Skipped int
}

// Job は孤立セッションの整合ジョブ。
// ticker間隔で候補を取得し、semaphoreパターンで並列数を制御しながら確認する。
type Job struct {
	sessionRepo repository.SessionRepository
	checker     ObjectChecker
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	opts        Options
	now         func() time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(
	sessionRepo repository.SessionRepository,
	checker ObjectChecker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Job {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Job{
		sessionRepo: sessionRepo,
		checker:     checker,
		metrics:     collector,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("孤立セッション整合ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("orphan_after", j.opts.OrphanAfter),
		slog.Int("max_concurrent", j.opts.MaxConcurrent),
	)

	// 起動直後に1回実行
	j.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("孤立セッション整合ジョブを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *Job) runAndLog(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("孤立セッション整合サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は候補セッションを1回取得し、音声がないものをfailedに更新する。
// ストレージ確認に失敗したセッションは次のサイクルに持ち越す。
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	before := j.now().Add(-j.opts.OrphanAfter)

	candidates, err := j.sessionRepo.ListOrphanCandidates(ctx, before, j.opts.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("孤立セッション候補の取得に失敗: %w", err)
	}

	if len(candidates) == 0 {
		j.logger.Info("整合対象のセッションはありません")
		return Result{}, nil
	}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, j.opts.MaxConcurrent)
	var wg sync.WaitGroup
	var marked, skipped atomic.Int64

	for _, session := range candidates {
		wg.Add(1)
		sem <- struct{}{}

		go func(s *model.Session) {
			defer wg.Done()
			defer func() { <-sem }()

			ok, err := j.reconcile(ctx, s)
			if err != nil {
				skipped.Add(1)
				j.logger.Warn("孤立セッションの確認に失敗しました",
					slog.String("session_id", s.ID),
					slog.String("audio_path", s.AudioPath),
					slog.String("error", err.Error()),
				)
				return
			}
			if ok {
				marked.Add(1)
			}
		}(session)
	}

	wg.Wait()

	result := Result{
		Checked: len(candidates),
		Marked:  int(marked.Load()),
		Skipped: int(skipped.Load()),
	}
	j.metrics.RecordOrphansReconciled(result.Marked)

	j.logger.Info("孤立セッション整合サイクルが完了しました",
		slog.Int("checked_count", result.Checked),
		slog.Int("marked_count", result.Marked),
		slog.Int("skipped_count", result.Skipped),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, nil
}

// reconcile は1件のセッションを確認し、failedに更新した場合にtrueを返す。
func (j *Job) reconcile(ctx context.Context, s *model.Session) (bool, error) {
	exists, err := j.checker.Exists(ctx, j.opts.Bucket, s.AudioPath)
	if err != nil {
		return false, err
	}
	if exists {
		// 音声があるセッションの処理はこのジョブの対象外
		return false, nil
	}

	updated, err := j.sessionRepo.MarkFailed(ctx, s.ID)
	if err != nil {
		return false, err
	}
	if updated {
		j.logger.Info("孤立セッションをfailedに更新しました",
			slog.String("session_id", s.ID),
			slog.String("user_id", s.UserID),
		)
	}
	return updated, nil
}
