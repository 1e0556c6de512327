package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pubcaster/internal/feed"
	"github.com/hitoshi/pubcaster/internal/model"
	"github.com/hitoshi/pubcaster/internal/podcast"
)

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	// Feed はフィード文書を返す。リレー障害時は保存済みの文書を返すことがある。
	Feed(ctx context.Context, identifier string) (*feed.Document, error)
	// Episodes は表示用のビルド結果を返す。
	Episodes(ctx context.Context, identifier string) (*feed.Result, error)
}

// FeedHandler はフィード配信のHTTPハンドラー。
type FeedHandler struct {
	service      FeedServiceInterface
	buildTimeout time.Duration
	baseURL      string
}

// NewFeedHandler はFeedHandlerを生成する。buildTimeoutが0以下なら制限しない。
func NewFeedHandler(service FeedServiceInterface, buildTimeout time.Duration, baseURL string) *FeedHandler {
	return &FeedHandler{
		service:      service,
		buildTimeout: buildTimeout,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
	}
}

// episodesResponse はエピソード一覧のAPIレスポンス。
type episodesResponse struct {
	Pubkey     string         `json:"pubkey"`
	Identifier string         `json:"identifier"`
	FeedURL    string         `json:"feed_url"`
	Profile    *model.Profile `json:"profile"`
	Episodes   []feed.Episode `json:"episodes"`
	BuiltAt    time.Time      `json:"built_at"`
}

// GetFeed はポッドキャストフィードのXMLを返す。
// GET /{identifier}/rss.xml
// GET /api/feed/{identifier}
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	identifier, ok := identifierParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.buildContext(r.Context())
	defer cancel()

	doc, err := h.service.Feed(ctx, identifier)
	if err != nil {
		handleServiceError(w, r, h.timeoutError(ctx, identifier, err))
		return
	}

	w.Header().Set("Content-Type", podcast.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if !doc.BuiltAt.IsZero() {
		w.Header().Set("Last-Modified", doc.BuiltAt.UTC().Format(http.TimeFormat))
	}
	if doc.Stale {
		w.Header().Set("X-Feed-Stale", "true")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(doc.XML)
}

// GetEpisodes はエピソード一覧をJSONで返す。
// GET /api/episodes/{identifier}
func (h *FeedHandler) GetEpisodes(w http.ResponseWriter, r *http.Request) {
	identifier, ok := identifierParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.buildContext(r.Context())
	defer cancel()

	res, err := h.service.Episodes(ctx, identifier)
	if err != nil {
		handleServiceError(w, r, h.timeoutError(ctx, identifier, err))
		return
	}

	episodes := res.Episodes
	if episodes == nil {
		episodes = []feed.Episode{}
	}
	writeJSON(w, http.StatusOK, episodesResponse{
		Pubkey:     res.Pubkey,
		Identifier: res.Identifier,
		FeedURL:    h.baseURL + "/" + res.Identifier + "/rss.xml",
		Profile:    res.Profile,
		Episodes:   episodes,
		BuiltAt:    res.BuiltAt,
	})
}

func (h *FeedHandler) buildContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.buildTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, h.buildTimeout)
}

// timeoutError は制限時間切れで失敗した場合にBUILD_TIMEOUTへ置き換える。
func (h *FeedHandler) timeoutError(ctx context.Context, identifier string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.NewBuildTimeoutError(identifier)
	}
	return err
}

// identifierParam はURLパスの識別子を取り出す。空なら400を書き込んでfalseを返す。
func identifierParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	identifier := strings.TrimSpace(chi.URLParam(r, "identifier"))
	if identifier == "" {
		handleServiceError(w, r, model.NewInvalidIdentifierError("empty identifier"))
		return "", false
	}
	return identifier, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
