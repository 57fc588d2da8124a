package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ClientConfig はCLIクライアントの設定を保持する。
// ~/.config/rhetor/config.toml から読み込み、コマンドラインフラグで上書きする。
type ClientConfig struct {
	APIURL              string   `toml:"api_url"`
	StorageURL          string   `toml:"storage_url"`
	AnonKey             string   `toml:"anon_key"`
	AccessToken         string   `toml:"access_token"`
	AudioExt            string   `toml:"audio_ext"`
	CaptureCommand      []string `toml:"capture_command"`
	AllowPrivateStorage bool     `toml:"allow_private_storage"`
}

// DefaultClientConfigPath はクライアント設定ファイルの既定パスを返す。
func DefaultClientConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}
	return filepath.Join(home, ".config", "rhetor", "config.toml")
}

// LoadClient はTOMLファイルからClientConfigを読み込む。
// ファイルが存在しない場合は既定値のみの設定を返す。
func LoadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIURL:   "http://localhost:8080",
		AudioExt: "m4a",
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode client config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat client config %s: %w", path, err)
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.StorageURL = strings.TrimRight(cfg.StorageURL, "/")
	if cfg.StorageURL == "" {
		cfg.StorageURL = cfg.APIURL
	}
	if cfg.AudioExt == "" {
		cfg.AudioExt = "m4a"
	}

	return cfg, nil
}

// Validate はAPI呼び出しに必要な項目が揃っているかを検証する。
func (c *ClientConfig) Validate() error {
	var missing []string
	if c.APIURL == "" {
		missing = append(missing, "api_url")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("client config is missing: %s", strings.Join(missing, ", "))
	}
	return nil
}
