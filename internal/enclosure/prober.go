// Package enclosure はエピソードのメディアファイルにHEADリクエストを送り、
// エンクロージャーのバイト長を補完する。
package enclosure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/pubcaster/internal/podcast"
	"github.com/hitoshi/pubcaster/internal/security"
)

// defaultConcurrency は同時に送るHEADリクエスト数。
const defaultConcurrency = 4

// ErrUnknownLength はサーバーがContent-Lengthを返さなかった場合のエラー。
var ErrUnknownLength = errors.New("content length unknown")

// leveledSlog はretryablehttpのログをslogに流す。
// 再試行前提のためERRORはWARNに落とす。
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...any) { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Warn(msg string, keysAndValues ...any)  { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Info(msg string, keysAndValues ...any)  { l.inner.Debug(msg, keysAndValues...) }
func (l leveledSlog) Debug(msg string, keysAndValues ...any) { l.inner.Debug(msg, keysAndValues...) }

// Prober はエンクロージャーのバイト長を取得する。
type Prober struct {
	client      *http.Client
	validate    func(string) error
	concurrency int
	logger      *slog.Logger
}

// NewProber はSSRF対策済みのクライアントに再試行を組み合わせたProberを生成する。
// timeoutはHEADリクエスト1回あたりの上限。
func NewProber(guard security.MediaGuard, timeout time.Duration, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = guard.Client(timeout)
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger.With("subsystem", "enclosure-probe")})

	client := retryClient.StandardClient()
	client.Timeout = 3 * timeout

	return newProber(client, guard.Validate, logger)
}

func newProber(client *http.Client, validate func(string) error, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		client:      client,
		validate:    validate,
		concurrency: defaultConcurrency,
		logger:      logger,
	}
}

// Length はHEADリクエストでメディアのバイト長を取得する。
func (p *Prober) Length(ctx context.Context, mediaURL string) (int64, error) {
	if err := p.validate(mediaURL); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, mediaURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build HEAD request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", mediaURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("HEAD %s: unexpected status %d", mediaURL, resp.StatusCode)
	}
	if resp.ContentLength <= 0 {
		return 0, ErrUnknownLength
	}
	return resp.ContentLength, nil
}

// Fill は録音済みアイテムのエンクロージャー長を並行して補完する。
// ライブアイテムと取得に失敗したアイテムは長さ0のまま残す。
func (p *Prober) Fill(ctx context.Context, items []podcast.Item) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range items {
		it := &items[i]
		if it.Kind == podcast.KindLive || it.Enclosure.URL == "" || it.Enclosure.Length > 0 {
			continue
		}
		g.Go(func() error {
			n, err := p.Length(gctx, it.Enclosure.URL)
			if err != nil {
				p.logger.Debug("enclosure probe failed",
					slog.String("url", it.Enclosure.URL),
					slog.String("error", err.Error()),
				)
				return nil
			}
			it.Enclosure.Length = n
			return nil
		})
	}
	_ = g.Wait()
}
