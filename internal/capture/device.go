// Package capture は外部の録音コマンドを使った音声キャプチャデバイスを提供する。
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rhetor-app/rhetor/internal/recording"
)

// OutputPlaceholder は引数中で出力ファイルパスに置換される文字列。
const OutputPlaceholder = "{output}"

// DefaultStopTimeout は割り込み送信後にプロセス終了を待つ時間。
const DefaultStopTimeout = 5 * time.Second

// CommandDevice は外部コマンドで録音するrecording.Deviceの実装。
// 例: Program="ffmpeg", Args=["-f","avfoundation","-i",":0","{output}"]
type CommandDevice struct {
	Program     string
	Args        []string
	StopTimeout time.Duration
}

// NewCommandDevice はcommand[0]をプログラム、残りを引数とするCommandDeviceを生成する。
func NewCommandDevice(command []string) (*CommandDevice, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("capture command is empty")
	}
	return &CommandDevice{
		Program:     command[0],
		Args:        append([]string(nil), command[1:]...),
		StopTimeout: DefaultStopTimeout,
	}, nil
}

// RequestPermission は録音プログラムがPATH上で解決できるかを返す。
func (d *CommandDevice) RequestPermission(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(d.Program); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to resolve capture program %s: %w", d.Program, err)
	}
	return true, nil
}

// StartCapture は一時ディレクトリへの録音を開始する。
func (d *CommandDevice) StartCapture(ctx context.Context, ext string) (recording.Capture, error) {
	dir, err := os.MkdirTemp("", "rhetor-capture-")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture dir: %w", err)
	}
	output := filepath.Join(dir, "session."+ext)

	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, output)
	}

	cmd := exec.Command(d.Program, args...)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to start capture program %s: %w", d.Program, err)
	}

	c := &commandCapture{
		cmd:     cmd,
		dir:     dir,
		output:  output,
		timeout: d.StopTimeout,
		done:    make(chan struct{}),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultStopTimeout
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

// commandCapture は実行中の録音プロセス。
type commandCapture struct {
	cmd     *exec.Cmd
	dir     string
	output  string
	timeout time.Duration

	done    chan struct{}
	waitErr error

	mu       sync.Mutex
	finished bool
}

// Stop は録音プロセスに割り込みを送り終了を待つ。
// タイムアウトした場合は強制終了する。出力ファイルが空または存在しない場合は空文字列を返す。
func (c *commandCapture) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return "", errors.New("capture already finished")
	}
	c.finished = true

	c.cmd.Process.Signal(os.Interrupt)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-c.done:
	case <-timer.C:
		c.cmd.Process.Kill()
		<-c.done
	case <-ctx.Done():
		c.cmd.Process.Kill()
		<-c.done
		return "", ctx.Err()
	}

	info, err := os.Stat(c.output)
	if err != nil || info.Size() == 0 {
		return "", nil
	}
	return c.output, nil
}

// Discard は録音プロセスを強制終了し、出力ファイルを削除する。
func (c *commandCapture) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finished {
		c.finished = true
		c.cmd.Process.Kill()
		<-c.done
	}
	os.RemoveAll(c.dir)
}
