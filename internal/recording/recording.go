// Package recording は1回の練習セッション録音サイクルを管理する状態機械を提供する。
//
// 状態遷移:
//
//	Idle → CreatingSession → Recording → Uploading → Idle
//
// 各ステップの失敗は呼び出し元にエラーを返し、ハンドルを解放してIdleに戻る。
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rhetor-app/rhetor/internal/model"
	"github.com/rhetor-app/rhetor/internal/storage"
)

var (
	// ErrPermissionDenied は録音の許可が得られなかったことを示す。
	ErrPermissionDenied = errors.New("recording permission denied")
	// ErrSessionCreationFailed はセッション作成APIの呼び出しが失敗したことを示す。
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrCaptureFailed はセッション作成後に録音を開始できなかったことを示す。
	ErrCaptureFailed = errors.New("audio capture failed to start")
	// ErrCaptureProducedNoFile は録音停止時に音声ファイルが得られなかったことを示す。
	ErrCaptureProducedNoFile = errors.New("capture produced no file")
	// ErrDuplicateUpload はアップロード先に既にオブジェクトが存在したことを示す。
	// セッションハンドルの再利用を意味し、再試行では解決しない。
	ErrDuplicateUpload = errors.New("audio object already exists for session")
	// ErrUploadFailed は音声のアップロードが失敗したことを示す。
	ErrUploadFailed = errors.New("audio upload failed")
	// ErrClosed は処理中にRecorderが破棄されたことを示す。結果は破棄される。
	ErrClosed = errors.New("recorder closed")
)

// State は録音サイクルの状態。
type State int

const (
	StateIdle State = iota
	StateCreatingSession
	StateRecording
	StateUploading
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCreatingSession:
		return "creating_session"
	case StateRecording:
		return "recording"
	case StateUploading:
		return "uploading"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Device は音声キャプチャデバイス。
type Device interface {
	RequestPermission(ctx context.Context) (bool, error)
	StartCapture(ctx context.Context, ext string) (Capture, error)
}

// Capture は実行中の録音。
type Capture interface {
	// Stop は録音を確定しローカルファイルのパスを返す。空文字列はファイルなしを表す。
	Stop(ctx context.Context) (string, error)
	// Discard は録音を破棄しリソースを解放する。
	Discard()
}

// SessionCreator はサーバー側に練習セッションを作成する。client.Clientが実装する。
type SessionCreator interface {
	CreateSession(ctx context.Context, req model.CreateSessionRequest) (*model.CreatedSession, error)
}

// Uploader は音声をオブジェクトストレージに新規作成する。storage.Clientが実装する。
// 既存オブジェクトがある場合はstorage.ErrObjectExistsを返す。
type Uploader interface {
	Upload(ctx context.Context, bucket, path string, body []byte, contentType string) error
}

// Ticker は経過時間カウンタの駆動源。
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Options はRecorderの任意設定。
type Options struct {
	// OnRefresh はアップロード成功時に1回だけ呼ばれる。
	OnRefresh func()
	// OnTick は録音中に経過秒数が増えるたびに呼ばれる。
	OnTick func(elapsed int)
	// OnStateChange は状態が変わるたびに呼ばれる。
	OnStateChange func(State)
	Logger        *slog.Logger
	NewTicker     func(d time.Duration) Ticker
}

// Recorder は録音サイクルの状態機械。1インスタンスで同時に1サイクルのみ扱う。
type Recorder struct {
	device   Device
	creator  SessionCreator
	uploader Uploader
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	handle   SessionHandle
	capture  Capture
	elapsed  int
	stopTick chan struct{}
	closed   bool
}

// New はRecorderを生成する。
func New(device Device, creator SessionCreator, uploader Uploader, opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NewTicker == nil {
		opts.NewTicker = func(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }
	}
	return &Recorder{
		device:   device,
		creator:  creator,
		uploader: uploader,
		opts:     opts,
		logger:   logger,
		state:    StateIdle,
		handle:   absentHandle(),
	}
}

// State は現在の状態を返す。
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed は現在の録音の経過秒数を返す。
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Session は現在のセッションハンドルを返す。
func (r *Recorder) Session() SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Start は録音サイクルを開始する。
// Idle以外の状態で呼ばれた場合は何もせずnilを返す。
func (r *Recorder) Start(ctx context.Context, req model.CreateSessionRequest) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.state != StateIdle {
		r.mu.Unlock()
		return nil
	}
	r.state = StateCreatingSession
	r.handle = unresolvedHandle()
	r.elapsed = 0
	r.mu.Unlock()
	r.notify(StateCreatingSession)

	granted, err := r.device.RequestPermission(ctx)
	if err != nil || !granted {
		if r.abortIfClosed() {
			return ErrClosed
		}
		r.reset()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return ErrPermissionDenied
	}
	if r.abortIfClosed() {
		return ErrClosed
	}

	created, err := r.creator.CreateSession(ctx, req)
	if r.abortIfClosed() {
		return ErrClosed
	}
	if err != nil {
		r.reset()
		r.logger.Warn("session creation failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}

	ext := audioExtension(created, req)
	capture, err := r.device.StartCapture(ctx, ext)
	if err != nil {
		if r.abortIfClosed() {
			return ErrClosed
		}
		r.reset()
		// サーバー側のセッション行はrecordedのまま残る
		r.logger.Warn("capture failed to start",
			slog.String("session_id", created.SessionID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		capture.Discard()
		return ErrClosed
	}
	r.state = StateRecording
	r.handle = presentHandle(created)
	r.capture = capture
	r.elapsed = 0
	r.stopTick = make(chan struct{})
	ticker := r.opts.NewTicker(time.Second)
	go r.tick(ticker, r.stopTick)
	r.mu.Unlock()
	r.notify(StateRecording)

	r.logger.Info("recording started",
		slog.String("session_id", created.SessionID),
		slog.String("audio_path", created.AudioPath),
	)
	return nil
}

// Stop は録音を確定し音声をアップロードする。
// Recording以外の状態で呼ばれた場合は何もせずnilを返す。
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed || r.state != StateRecording {
		r.mu.Unlock()
		return nil
	}
	r.state = StateUploading
	close(r.stopTick)
	r.stopTick = nil
	capture := r.capture
	created := r.handle.Value
	r.mu.Unlock()
	r.notify(StateUploading)

	filePath, err := capture.Stop(ctx)
	if err != nil || filePath == "" {
		capture.Discard()
		if r.abortIfClosed() {
			return ErrClosed
		}
		r.reset()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCaptureProducedNoFile, err)
		}
		return ErrCaptureProducedNoFile
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		capture.Discard()
		if r.abortIfClosed() {
			return ErrClosed
		}
		r.reset()
		return fmt.Errorf("%w: %w", ErrCaptureProducedNoFile, err)
	}

	contentType := storage.ContentTypeForExtension(strings.TrimPrefix(path.Ext(created.AudioPath), "."))
	uploadErr := r.uploader.Upload(ctx, created.AudioBucket, created.AudioPath, data, contentType)
	capture.Discard()

	if r.abortIfClosed() {
		return ErrClosed
	}
	r.reset()

	if uploadErr != nil {
		r.logger.Warn("audio upload failed",
			slog.String("session_id", created.SessionID),
			slog.String("error", uploadErr.Error()),
		)
		if errors.Is(uploadErr, storage.ErrObjectExists) {
			return fmt.Errorf("%w: %w", ErrDuplicateUpload, uploadErr)
		}
		return fmt.Errorf("%w: %w", ErrUploadFailed, uploadErr)
	}

	r.logger.Info("audio uploaded",
		slog.String("session_id", created.SessionID),
		slog.Int("bytes", len(data)),
	)
	if r.opts.OnRefresh != nil {
		r.opts.OnRefresh()
	}
	return nil
}

// Close はRecorderを破棄する。
// 録音中の場合はアップロードせずに録音を破棄する。
// セッション作成中やアップロード中の呼び出しは完了まで待たず、その結果は無視される。
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	prev := r.state
	var capture Capture
	if prev == StateRecording {
		close(r.stopTick)
		r.stopTick = nil
		capture = r.capture
	}
	r.state = StateIdle
	r.handle = absentHandle()
	r.capture = nil
	r.mu.Unlock()

	if capture != nil {
		capture.Discard()
	}
	if prev != StateIdle {
		r.logger.Info("recorder closed", slog.String("state", prev.String()))
		r.notify(StateIdle)
	}
}

// reset はハンドルを解放してIdleに戻す。
func (r *Recorder) reset() {
	r.mu.Lock()
	r.state = StateIdle
	r.handle = absentHandle()
	r.capture = nil
	r.mu.Unlock()
	r.notify(StateIdle)
}

// abortIfClosed は処理中にCloseされていた場合にtrueを返す。
func (r *Recorder) abortIfClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) notify(s State) {
	if r.opts.OnStateChange != nil {
		r.opts.OnStateChange(s)
	}
}

// tick は録音中のみ1秒ごとに経過秒数を進める。
func (r *Recorder) tick(ticker Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			r.mu.Lock()
			if r.stopTick != stop || r.state != StateRecording {
				r.mu.Unlock()
				return
			}
			r.elapsed++
			elapsed := r.elapsed
			r.mu.Unlock()
			if r.opts.OnTick != nil {
				r.opts.OnTick(elapsed)
			}
		}
	}
}

// audioExtension はサーバーが決めた音声パスの拡張子を優先して返す。
func audioExtension(created *model.CreatedSession, req model.CreateSessionRequest) string {
	if ext := strings.TrimPrefix(path.Ext(created.AudioPath), "."); ext != "" {
		return ext
	}
	if req.AudioExt != "" {
		return req.AudioExt
	}
	return model.DefaultAudioExtension
}

// FormatElapsed は経過秒数をmm:ss形式に整形する。
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
