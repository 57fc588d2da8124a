package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Command はサーバー側の起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はrhetorのコマンドツリーを構築する。
// wはサーバーコマンドのログ出力先とクライアントコマンドの表示先を兼ねる。
func NewRootCommand(w io.Writer) *cobra.Command {
	opts := &clientOptions{}

	root := &cobra.Command{
		Use:   "rhetor",
		Short: "Speaking practice sessions with peer review pods",
		Long: `rhetor - API server, background worker and client CLI for recorded
speaking practice sessions reviewed by peers in small pods.

Run without a subcommand to start the API server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServerCommand(w, CommandServe)
		},
	}
	root.SetOut(w)

	root.AddCommand(
		newServerCommand(w, CommandServe, "Start the API server"),
		newServerCommand(w, CommandWorker, "Run the orphaned-session reconciliation worker"),
		newServerCommand(w, CommandMigrate, "Apply database migrations"),
		newHealthcheckCommand(),
	)

	opts.bindFlags(root)
	root.AddCommand(
		newDashboardCommand(opts),
		newRecordCommand(opts),
		newAssignCommand(opts),
		newProfileCommand(opts),
		newAudioCommand(opts),
	)

	return root
}

func newServerCommand(w io.Writer, c Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(c),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServerCommand(w, c)
		},
	}
}

// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local API server's /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(port)
		},
	}
}

// runServerCommand は設定を読み込み、指定モードで起動する。
func runServerCommand(w io.Writer, c Command) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	switch c {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}
