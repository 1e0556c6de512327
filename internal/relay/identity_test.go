package relay

import (
	"net/url"
	"testing"

	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPubkey = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"

func TestParseIdentity_Npub(t *testing.T) {
	npub, err := nip19.EncodePublicKey(testPubkey)
	require.NoError(t, err)

	id, ok := ParseIdentity(npub)
	require.True(t, ok)
	assert.Equal(t, testPubkey, id.Pubkey)
	assert.Empty(t, id.Relays)
}

func TestParseIdentity_NprofileWithRelayHints(t *testing.T) {
	nprofile, err := nip19.EncodeProfile(testPubkey, []string{"wss://hint.example/"})
	require.NoError(t, err)

	id, ok := ParseIdentity(url.PathEscape(nprofile))
	require.True(t, ok)
	assert.Equal(t, testPubkey, id.Pubkey)
	assert.Equal(t, []string{"wss://hint.example/"}, id.Relays)
}

func TestParseIdentity_Hex(t *testing.T) {
	id, ok := ParseIdentity(testPubkey)
	require.True(t, ok)
	assert.Equal(t, testPubkey, id.Pubkey)
}

func TestParseIdentity_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"favicon.ico",
		"npub1invalid",
		"alice@example.com",
		"note1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq",
	} {
		_, ok := ParseIdentity(raw)
		assert.False(t, ok, raw)
	}
}

func TestParseIdentity_DefaultIdentifier(t *testing.T) {
	id, ok := ParseIdentity(DefaultIdentifier)
	require.True(t, ok)
	assert.Len(t, id.Pubkey, 64)
}

func TestMergeRelays(t *testing.T) {
	got := MergeRelays(
		[]string{"wss://hint.example/", " wss://relay.damus.io "},
		[]string{"wss://relay.damus.io/", "", "wss://nos.lol"},
	)
	assert.Equal(t, []string{"wss://hint.example", "wss://relay.damus.io", "wss://nos.lol"}, got)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "wss://relay.example", NormalizeURL(" wss://relay.example/ "))
}
