package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileConfig はCONFIG_FILEで指定するYAML設定ファイルの内容。
// 値には ${VAR} 形式で環境変数を埋め込める。
type FileConfig struct {
	TMDB  TMDBFileConfig  `yaml:"tmdb"`
	Query QueryFileConfig `yaml:"query"`
}

// TMDBFileConfig はYAMLファイルのtmdbセクション。
type TMDBFileConfig struct {
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url"`
	ImageBaseURL string   `yaml:"image_base_url"`
	Timeout      Duration `yaml:"timeout"`
	RateLimit    int      `yaml:"rate_limit"`
}

// QueryFileConfig はYAMLファイルのqueryセクション。
type QueryFileConfig struct {
	StaleTime Duration `yaml:"stale_time"`
	GCTime    Duration `yaml:"gc_time"`
}

// Duration は "30s" や "1h" 形式で記述できるtime.Duration。
type Duration time.Duration

// UnmarshalYAML はyaml.Unmarshalerを実装する。
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadFile はYAML設定ファイルを読み込み、環境変数を展開してパースする。
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var fc FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &fc, nil
}

// Watch は設定ファイルの変更を監視し、再読み込みに成功するたびにonChangeを呼び出す。
// エディタの保存方式（rename）に追従するため、ファイルではなく親ディレクトリを監視する。
// ctxがキャンセルされるまでブロックする。
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*FileConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			fc, err := LoadFile(abs)
			if err != nil {
				logger.Warn("設定ファイルの再読み込みに失敗しました",
					slog.String("path", abs),
					slog.String("error", err.Error()),
				)
				continue
			}
			logger.Info("設定ファイルを再読み込みしました", slog.String("path", abs))
			onChange(fc)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("設定ファイル監視でエラーが発生しました", slog.String("error", err.Error()))
		}
	}
}
