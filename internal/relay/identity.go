package relay

import (
	"net/url"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// DefaultIdentifier はトップページからリダイレクトする既定のフィード所有者。
const DefaultIdentifier = "npub1n00yy9y3704drtpph5wszen64w287nquftkcwcjv7gnnkpk2q54s73000n"

// DefaultRelays は接続先リレーの既定値。
var DefaultRelays = []string{
	"wss://relay.nostr.band",
	"wss://wot.dergigi.com",
	"wss://wot.utxo.one",
	"wss://relay.damus.io",
}

// Identity はURLパスなどで指定されたユーザー参照を解決した結果。
type Identity struct {
	Pubkey string
	// Relays はnprofileに含まれていたリレーヒント
	Relays []string
}

// ParseIdentity はnpub、nprofile、または64桁の16進公開鍵を解釈する。
// URLエンコードされた値はデコードしてから解釈する。
// "favicon.ico" や解釈できない値の場合はfalseを返す。
func ParseIdentity(raw string) (Identity, bool) {
	if raw == "favicon.ico" {
		return Identity{}, false
	}
	s := raw
	if decoded, err := url.PathUnescape(raw); err == nil {
		s = decoded
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Identity{}, false
	}

	if nostr.IsValid32ByteHex(s) {
		return Identity{Pubkey: strings.ToLower(s)}, true
	}

	prefix, value, err := nip19.Decode(s)
	if err != nil {
		return Identity{}, false
	}
	switch prefix {
	case "npub":
		pk, ok := value.(string)
		if !ok {
			return Identity{}, false
		}
		return Identity{Pubkey: pk}, true
	case "nprofile":
		pp, ok := value.(nostr.ProfilePointer)
		if !ok {
			return Identity{}, false
		}
		return Identity{Pubkey: pp.PublicKey, Relays: pp.Relays}, true
	default:
		return Identity{}, false
	}
}

// NormalizeURL はリレーURLの前後の空白と末尾のスラッシュを取り除く。
func NormalizeURL(u string) string {
	return strings.TrimSuffix(strings.TrimSpace(u), "/")
}

// MergeRelays はリレーURLのリストを正規化して連結し、重複を除いて返す。
// 先に渡したリストの順序が優先される。
func MergeRelays(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, u := range list {
			n := NormalizeURL(u)
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
