package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rhetor-app/rhetor/internal/capture"
	"github.com/rhetor-app/rhetor/internal/client"
	"github.com/rhetor-app/rhetor/internal/config"
	"github.com/rhetor-app/rhetor/internal/logger"
	"github.com/rhetor-app/rhetor/internal/model"
	"github.com/rhetor-app/rhetor/internal/pod"
	"github.com/rhetor-app/rhetor/internal/recording"
	"github.com/rhetor-app/rhetor/internal/security"
	"github.com/rhetor-app/rhetor/internal/storage"
)

// downloadTimeout は署名付きURLからのダウンロードのタイムアウト。
const downloadTimeout = 2 * time.Minute

// clientOptions はクライアントコマンド共通のフラグ。
// 指定されたフラグは設定ファイルの値より優先する。
type clientOptions struct {
	configPath   string
	apiURL       string
	storageURL   string
	token        string
	logLevel     string
	allowPrivate bool
}

func (o *clientOptions) bindFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	f.StringVar(&o.configPath, "config", config.DefaultClientConfigPath(), "Client config file")
	f.StringVar(&o.apiURL, "api-url", "", "API base URL (overrides api_url)")
	f.StringVar(&o.storageURL, "storage-url", "", "Storage base URL (overrides storage_url)")
	f.StringVar(&o.token, "token", "", "Access token (overrides access_token)")
	f.StringVar(&o.logLevel, "log-level", "warn", "Client log level (debug|info|warn|error)")
	f.BoolVar(&o.allowPrivate, "allow-private-storage", false, "Allow audio downloads from private network addresses")
}

// load は設定ファイルを読み込みフラグで上書きする。
func (o *clientOptions) load(cmd *cobra.Command) (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(o.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	storageFollowsAPI := cfg.StorageURL == cfg.APIURL
	if flags.Changed("api-url") {
		cfg.APIURL = strings.TrimRight(o.apiURL, "/")
		if storageFollowsAPI {
			cfg.StorageURL = cfg.APIURL
		}
	}
	if flags.Changed("storage-url") {
		cfg.StorageURL = strings.TrimRight(o.storageURL, "/")
	}
	if flags.Changed("token") {
		cfg.AccessToken = o.token
	}
	if flags.Changed("allow-private-storage") {
		cfg.AllowPrivateStorage = o.allowPrivate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *clientOptions) logger() *slog.Logger {
	return logger.SetupText(os.Stderr, logger.ParseLevel(o.logLevel))
}

// newAPIClient はクライアント設定からAPIクライアントを生成する。
// 署名付きURLのダウンロードはallow_private_storageが無効な限り
// ストレージのホストに限定したSSRF防止クライアントを使う。
func newAPIClient(cfg *config.ClientConfig, log *slog.Logger) *client.Client {
	opts := []client.Option{client.WithLogger(log)}
	if cfg.AllowPrivateStorage {
		opts = append(opts, client.WithDownloadClient(&http.Client{Timeout: downloadTimeout}))
		return client.New(cfg.APIURL, cfg.AnonKey, cfg.AccessToken, opts...)
	}

	var guardOpts []security.GuardOption
	if u, err := url.Parse(cfg.StorageURL); err == nil && u.Hostname() != "" {
		guardOpts = append(guardOpts, security.WithAllowedHosts(u.Hostname()))
	}
	guard := security.NewSSRFGuard(guardOpts...)
	opts = append(opts,
		client.WithDownloadClient(guard.NewSafeClient(downloadTimeout)),
		client.WithURLValidator(guard.ValidateURL),
	)
	return client.New(cfg.APIURL, cfg.AnonKey, cfg.AccessToken, opts...)
}

// describeError はAPIエラーを短いメッセージに変換する。
func describeError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Action != "" {
			return fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Action)
		}
		return errors.New(apiErr.Message)
	}
	return err
}

func newDashboardCommand(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show your profile, review queue and recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			api := newAPIClient(cfg, opts.logger())

			d, err := api.Dashboard(cmd.Context())
			if err != nil {
				return describeError(err)
			}
			renderDashboard(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func newRecordCommand(opts *clientOptions) *cobra.Command {
	var (
		sessionType string
		tags        []string
		podID       string
		duration    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a practice session and upload it for review",
		Long: `Record a practice session with the configured capture_command and upload it.

Recording stops after --duration, or when Enter is pressed, or on Ctrl-C.
The capture command receives the output file path via the {output} placeholder, e.g.

  capture_command = ["ffmpeg", "-loglevel", "error", "-f", "avfoundation", "-i", ":0", "{output}"]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			log := opts.logger()
			out := cmd.OutOrStdout()

			device, err := capture.NewCommandDevice(cfg.CaptureCommand)
			if err != nil {
				return fmt.Errorf("capture_command is not configured: %w", err)
			}
			api := newAPIClient(cfg, log)
			store := storage.NewClient(&http.Client{Timeout: downloadTimeout}, log, cfg.StorageURL, cfg.AnonKey, cfg.AccessToken)

			refreshed := make(chan struct{}, 1)
			rec := recording.New(device, api, store, recording.Options{
				OnRefresh: func() { refreshed <- struct{}{} },
				OnTick: func(elapsed int) {
					fmt.Fprintf(out, "\r● %s", recording.FormatElapsed(elapsed))
				},
				Logger: log,
			})
			defer rec.Close()

			req := model.CreateSessionRequest{
				SessionType: sessionType,
				FocusTags:   tags,
				AudioExt:    cfg.AudioExt,
				PodID:       podID,
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := rec.Start(sigCtx, req); err != nil {
				return describeError(err)
			}
			session := rec.Session().Value
			fmt.Fprintf(out, "Recording session %s (%s). Press Enter to stop.\n", session.SessionID, session.SessionType)

			waitForStop(sigCtx, cmd.InOrStdin(), duration)
			fmt.Fprintln(out)

			// 割り込み後もアップロードは完了させる
			uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), downloadTimeout)
			defer cancel()
			if err := rec.Stop(uploadCtx); err != nil {
				return describeError(err)
			}
			fmt.Fprintf(out, "Uploaded %s\n", session.AudioPath)

			select {
			case <-refreshed:
				d, err := api.Dashboard(uploadCtx)
				if err != nil {
					// 直前の表示は残したまま警告のみ出す
					log.Warn("dashboard refresh failed", slog.String("error", err.Error()))
					return nil
				}
				fmt.Fprintln(out)
				renderDashboard(out, d)
			default:
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionType, "type", string(model.SessionTypePrompt), "Session type (prompt|freeform|flash_notes)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Focus tag (1-2, repeatable)")
	cmd.Flags().StringVar(&podID, "pod-id", "", "Pod to submit to (defaults to your active pod)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop automatically after this long (0 = wait for Enter)")
	return cmd
}

// waitForStop は時間経過、Enter入力、シグナルのいずれかまで待つ。
func waitForStop(ctx context.Context, in io.Reader, d time.Duration) {
	enter := make(chan struct{})
	go func() {
		bufio.NewReader(in).ReadString('\n')
		close(enter)
	}()

	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
	case <-enter:
	case <-timeout:
	}
}

func newAssignCommand(opts *clientOptions) *cobra.Command {
	var req pod.AssignRequest

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Join a pod in a cohort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.CohortID == "" && req.FocusArea == "" {
				return errors.New("either --cohort-id or --focus-area is required")
			}
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			api := newAPIClient(cfg, opts.logger())

			a, err := api.AssignToPod(cmd.Context(), req)
			if err != nil {
				return describeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned to %s (pod %s, cohort %s)\n", a.PodLabel, a.PodID, a.CohortID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.CohortID, "cohort-id", "", "Cohort ID (takes precedence over --focus-area)")
	cmd.Flags().StringVar(&req.FocusArea, "focus-area", "", "Focus area of the cohort to join")
	return cmd
}

func newProfileCommand(opts *clientOptions) *cobra.Command {
	var (
		in    model.ProfileInput
		level string
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Create or update your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			api := newAPIClient(cfg, opts.logger())

			in.ProfessionLevel = model.ProfessionLevel(level)
			p, err := api.SaveProfile(cmd.Context(), in)
			if err != nil {
				return describeError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s (credits: %d)\n", p.Pseudonym, p.Credits)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Pseudonym, "pseudonym", "", "Display name shown to your pod")
	cmd.Flags().StringVar(&in.NativeLanguage, "native-language", "", "Native language")
	cmd.Flags().StringVar(&level, "level", "", "Profession level (student|early_career|mid_level|senior|executive)")
	cmd.Flags().StringSliceVar(&in.Goals, "goal", nil, "Goal tag (up to 3, repeatable)")
	cmd.MarkFlagRequired("pseudonym")
	return cmd
}

func newAudioCommand(opts *clientOptions) *cobra.Command {
	var (
		output    string
		expiresIn int
	)

	cmd := &cobra.Command{
		Use:   "audio <session_id>",
		Short: "Get a short-lived URL for a session's audio, or download it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			api := newAPIClient(cfg, opts.logger())

			var expires *int
			if cmd.Flags().Changed("expires-in") {
				expires = &expiresIn
			}
			signed, err := api.SessionAudioURL(cmd.Context(), args[0], expires)
			if err != nil {
				return describeError(err)
			}

			out := cmd.OutOrStdout()
			if output == "" {
				fmt.Fprintf(out, "%s\n(expires in %ds)\n", signed.SignedURL, signed.ExpiresIn)
				return nil
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()

			n, err := api.DownloadAudio(cmd.Context(), signed.SignedURL, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s to %s\n", humanize.Bytes(uint64(n)), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Download the audio to this file")
	cmd.Flags().IntVar(&expiresIn, "expires-in", 0, "URL lifetime in seconds (30-600)")
	return cmd
}
