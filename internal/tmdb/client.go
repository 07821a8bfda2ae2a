// Package tmdb はTMDB（The Movie Database）APIのクライアントを提供する。
// 一覧・検索・詳細の取得と画像URLの組み立てを行う。リトライは行わない。
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/moviedeck/internal/model"
)

const (
	defaultBaseURL          = "https://api.themoviedb.org/3"
	defaultImageBaseURL     = "https://image.tmdb.org/t/p"
	defaultTimeout          = 10 * time.Second
	defaultMaxResponseBytes = 5 << 20
	userAgent               = "moviedeck/1.0"
)

// MetricsRecorder はリクエスト結果の記録先。
type MetricsRecorder interface {
	RecordCatalogRequest(endpoint string, statusCode int, duration time.Duration)
}

// TextSanitizer はあらすじ等のテキストを表示用に整形する。
type TextSanitizer interface {
	Sanitize(s string) string
}

// Config はClientの設定。ゼロ値の項目にはデフォルト値を使う。
type Config struct {
	APIKey            string
	BaseURL           string
	ImageBaseURL      string
	Timeout           time.Duration
	RequestsPerSecond int // 0以下の場合は送信レートを制限しない
	MaxResponseBytes  int64
	HTTPClient        *http.Client // nilの場合はTimeoutを設定したhttp.Clientを使う
	Logger            *slog.Logger
	Metrics           MetricsRecorder
	Sanitizer         TextSanitizer
}

// Client はTMDB APIのクライアント。複数ゴルーチンから同時に使用できる。
type Client struct {
	httpClient       *http.Client
	logger           *slog.Logger
	metrics          MetricsRecorder
	sanitizer        TextSanitizer
	limiter          *rate.Limiter
	baseURL          string
	imageBaseURL     string
	maxResponseBytes int64

	mu     sync.RWMutex
	apiKey string
}

// NewClient はClientを生成する。APIキーが空でもエラーにはならず、
// 各リクエストの呼び出し時にConfigurationErrorを返す。
func NewClient(cfg Config) *Client {
	c := &Client{
		httpClient:       cfg.HTTPClient,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		sanitizer:        cfg.Sanitizer,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		imageBaseURL:     strings.TrimRight(cfg.ImageBaseURL, "/"),
		maxResponseBytes: cfg.MaxResponseBytes,
		apiKey:           cfg.APIKey,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.imageBaseURL == "" {
		c.imageBaseURL = defaultImageBaseURL
	}
	if c.maxResponseBytes <= 0 {
		c.maxResponseBytes = defaultMaxResponseBytes
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	if c.sanitizer == nil {
		c.sanitizer = identitySanitizer{}
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}
	return c
}

// SetAPIKey はAPIキーを差し替える。設定ファイルの再読み込み時に使用する。
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// HasAPIKey はAPIキーが設定されているかを返す。
func (c *Client) HasAPIKey() bool {
	return c.currentAPIKey() != ""
}

func (c *Client) currentAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// ImageURL は画像の相対パスからこのクライアントの画像ベースURLを使ってURLを組み立てる。
func (c *Client) ImageURL(path string, size ImageSize) string {
	return ImageURL(c.imageBaseURL, path, size)
}

// FetchPopular は人気映画の一覧を取得する。
func (c *Client) FetchPopular(ctx context.Context, page int) (*model.Page[model.Movie], error) {
	return c.fetchPage(ctx, "popular", "/movie/popular", url.Values{"page": {strconv.Itoa(page)}})
}

// FetchTopRated は高評価映画の一覧を取得する。
func (c *Client) FetchTopRated(ctx context.Context, page int) (*model.Page[model.Movie], error) {
	return c.fetchPage(ctx, "top_rated", "/movie/top_rated", url.Values{"page": {strconv.Itoa(page)}})
}

// Search はタイトルで映画を検索する。queryの検証は行わず、そのままエンコードして送信する。
func (c *Client) Search(ctx context.Context, query string, page int) (*model.Page[model.Movie], error) {
	return c.fetchPage(ctx, "search", "/search/movie", url.Values{
		"query": {query},
		"page":  {strconv.Itoa(page)},
	})
}

// FetchDetails は映画の詳細情報を取得する。
func (c *Client) FetchDetails(ctx context.Context, id int) (*model.MovieDetails, error) {
	var resp detailsResponse
	if err := c.get(ctx, "details", "/movie/"+strconv.Itoa(id), url.Values{}, &resp); err != nil {
		return nil, err
	}
	return c.toDetails(&resp), nil
}

func (c *Client) fetchPage(ctx context.Context, endpoint, path string, params url.Values) (*model.Page[model.Movie], error) {
	var resp pageResponse
	if err := c.get(ctx, endpoint, path, params, &resp); err != nil {
		return nil, err
	}
	return c.toPage(&resp), nil
}

// get はAPIキーを付与してGETリクエストを送信し、レスポンスJSONをoutにデコードする。
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	apiKey := c.currentAPIKey()
	if apiKey == "" {
		return &ConfigurationError{Setting: "TMDB_API_KEY"}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &RemoteCatalogError{Endpoint: endpoint, Status: "request canceled", Err: err}
		}
	}

	params.Set("api_key", apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordCatalogRequest(endpoint, 0, time.Since(start))
		c.logger.Error("TMDB APIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return &RemoteCatalogError{Endpoint: endpoint, Status: "request failed", Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordCatalogRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxResponseBytes))
		c.logger.Warn("TMDB APIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return &RemoteCatalogError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return &RemoteCatalogError{Endpoint: endpoint, StatusCode: resp.StatusCode, Status: "failed to read response", Err: err}
	}
	if int64(len(body)) > c.maxResponseBytes {
		return &RemoteCatalogError{Endpoint: endpoint, StatusCode: resp.StatusCode, Status: "response too large"}
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("TMDB APIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return &RemoteCatalogError{Endpoint: endpoint, StatusCode: resp.StatusCode, Status: "invalid JSON response", Err: err}
	}

	c.logger.Debug("TMDB APIからデータを取得しました",
		slog.String("endpoint", endpoint),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordCatalogRequest(string, int, time.Duration) {}

type identitySanitizer struct{}

func (identitySanitizer) Sanitize(s string) string { return s }
