package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// MediaGuard は投稿に書かれた外部メディアURLへアクセスする前の検証と、
// 内部ネットワークへ到達できないHTTPクライアントを提供する。
type MediaGuard interface {
	// Validate はDNS解決を伴わない静的な検証を行う。
	Validate(rawURL string) error
	// Client は名前解決後のIPも検証するHTTPクライアントを返す。
	Client(timeout time.Duration) *http.Client
}

// privatePrefixes は静的検証で拒否するアドレス範囲。
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

type mediaGuard struct{}

// NewMediaGuard はMediaGuardを生成する。
func NewMediaGuard() *mediaGuard {
	return &mediaGuard{}
}

// Client はsafeurlでラップしたHTTPクライアントを返す。
// http/httpsの80/443番ポートのみ許可し、プライベートアドレスへの接続は
// ダイヤル時に拒否される。
func (g *mediaGuard) Client(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// Validate はスキーム、ホスト、IPリテラルを検証する。
func (g *mediaGuard) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported media url scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("media url has no host: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked media host: %s", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range privatePrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked media address: %s", addr)
			}
		}
	}
	return nil
}
