package model

import (
	"encoding/json"
	"fmt"
)

// Profile はkind 0メタデータから得られるユーザープロフィールを表す。
type Profile struct {
	Pubkey      string `json:"pubkey"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Image       string `json:"image,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
	LUD06       string `json:"lud06,omitempty"`
	NodeID      string `json:"nodeid,omitempty"`
}

// ParseProfile はkind 0イベントのJSON本文をProfileに変換する。
// 文字列以外の値を持つフィールドは無視する。
func ParseProfile(pubkey, content string) (*Profile, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid profile metadata: %w", err)
	}

	str := func(key string) string {
		if s, ok := raw[key].(string); ok {
			return s
		}
		return ""
	}

	return &Profile{
		Pubkey:      pubkey,
		Name:        str("name"),
		DisplayName: str("display_name"),
		About:       str("about"),
		Picture:     str("picture"),
		Banner:      str("banner"),
		Image:       str("image"),
		NIP05:       str("nip05"),
		LUD16:       str("lud16"),
		LUD06:       str("lud06"),
		NodeID:      str("nodeid"),
	}, nil
}

// BestName はname、なければdisplay_nameを返す。
func (p *Profile) BestName() string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.DisplayName
}

// BestImage はpicture、image、bannerの順で最初に設定されている画像URLを返す。
func (p *Profile) BestImage() string {
	if p == nil {
		return ""
	}
	for _, v := range []string{p.Picture, p.Image, p.Banner} {
		if v != "" {
			return v
		}
	}
	return ""
}

// LightningAddress はLightningアドレス（lud16）を返す。
func (p *Profile) LightningAddress() string {
	if p == nil {
		return ""
	}
	return p.LUD16
}

// Node はkeysend用のノードIDを返す。
func (p *Profile) Node() string {
	if p == nil {
		return ""
	}
	return p.NodeID
}
