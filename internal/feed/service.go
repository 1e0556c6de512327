package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/pubcaster/internal/metrics"
	"github.com/hitoshi/pubcaster/internal/model"
	"github.com/hitoshi/pubcaster/internal/relay"
)

// fallbackTimeout は保存済み文書の読み出しに使う時間の上限。
const fallbackTimeout = 3 * time.Second

// FeedBuilder はフィードを組み立てる。*Builder が満たす。
type FeedBuilder interface {
	Build(ctx context.Context, identifier string) (*Result, error)
}

// SnapshotStore は最後に成功したビルド結果の保存先。
type SnapshotStore interface {
	FindByPubkey(ctx context.Context, pubkey string) (*model.Snapshot, error)
	Upsert(ctx context.Context, snapshot *model.Snapshot) error
	Touch(ctx context.Context, pubkey string, at time.Time) error
}

// Document はHTTPで返すフィード文書。
type Document struct {
	Pubkey  string
	XML     []byte
	BuiltAt time.Time
	// Stale はリレーに到達できず保存済みの文書を返したことを示す
	Stale bool
}

// Service はビルドとスナップショット保存をまとめるサービス層。
// storeがnilの場合は毎回ビルドするだけで、フォールバックもしない。
type Service struct {
	builder         FeedBuilder
	store           SnapshotStore
	metrics         metrics.MetricsCollector
	refreshInterval time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	builder FeedBuilder,
	store SnapshotStore,
	collector metrics.MetricsCollector,
	refreshInterval time.Duration,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		builder:         builder,
		store:           store,
		metrics:         collector,
		refreshInterval: refreshInterval,
		logger:          logger,
		now:             time.Now,
	}
}

// Feed は識別子のフィード文書を返す。
// ビルドに成功すれば結果を保存し、APIError以外の理由で失敗した場合は保存済みの文書を返す。
// 保存済みの文書もなければビルドのエラーを返す。ただしオーナーのプロフィールを
// 取得できなかった場合はプロフィールが見つからないものとして扱う。
func (s *Service) Feed(ctx context.Context, identifier string) (*Document, error) {
	res, err := s.builder.Build(ctx, identifier)
	if err == nil {
		s.save(ctx, res)
		return &Document{Pubkey: res.Pubkey, XML: res.XML, BuiltAt: res.BuiltAt}, nil
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return nil, err
	}

	var snapshot *model.Snapshot
	if s.store != nil {
		snapshot = s.fallback(ctx, identifier)
	}
	if snapshot == nil {
		return nil, notFoundIfUnavailable(ctx, identifier, err)
	}
	s.metrics.RecordSnapshotFallback()
	s.logger.Warn("serving stored feed",
		slog.String("pubkey", snapshot.Pubkey),
		slog.Time("built_at", snapshot.BuiltAt),
		slog.String("error", err.Error()),
	)
	return &Document{Pubkey: snapshot.Pubkey, XML: snapshot.XML, BuiltAt: snapshot.BuiltAt, Stale: true}, nil
}

// Episodes はJSON表示用に毎回ビルドした結果を返す。
func (s *Service) Episodes(ctx context.Context, identifier string) (*Result, error) {
	res, err := s.builder.Build(ctx, identifier)
	if err != nil {
		return nil, notFoundIfUnavailable(ctx, identifier, err)
	}
	return res, nil
}

// notFoundIfUnavailable はオーナーのプロフィールを取得できなかったエラーを
// ProfileNotFoundのAPIErrorに置き換える。呼び出し側の期限が切れている場合はそのまま返す。
func notFoundIfUnavailable(ctx context.Context, identifier string, err error) error {
	if errors.Is(err, ErrProfileUnavailable) && ctx.Err() == nil {
		return model.NewProfileNotFoundError(identifier)
	}
	return err
}

func (s *Service) save(ctx context.Context, res *Result) {
	if s.store == nil {
		return
	}
	now := s.now()
	err := s.store.Upsert(ctx, &model.Snapshot{
		Pubkey:        res.Pubkey,
		Identifier:    res.Identifier,
		XML:           res.XML,
		ItemCount:     len(res.Items),
		BuiltAt:       res.BuiltAt,
		NextRefreshAt: now.Add(s.refreshInterval),
	})
	if err == nil {
		err = s.store.Touch(ctx, res.Pubkey, now)
	}
	if err != nil {
		s.logger.Error("failed to store feed snapshot",
			slog.String("pubkey", res.Pubkey),
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.RecordSnapshotStored()
}

func (s *Service) fallback(ctx context.Context, identifier string) *model.Snapshot {
	id, ok := relay.ParseIdentity(identifier)
	if !ok {
		return nil
	}
	// ビルドがタイムアウトした後でも保存済みの文書は読めるようにする
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackTimeout)
	defer cancel()
	snapshot, err := s.store.FindByPubkey(ctx, id.Pubkey)
	if err != nil {
		s.logger.Error("failed to load feed snapshot",
			slog.String("pubkey", id.Pubkey),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if snapshot == nil {
		return nil
	}
	if err := s.store.Touch(ctx, id.Pubkey, s.now()); err != nil {
		s.logger.Warn("failed to touch feed snapshot", slog.String("error", err.Error()))
	}
	return snapshot
}
