package model

// 支払い方法
const (
	PaymentMethodNode      = "node"
	PaymentMethodLNAddress = "lnaddress"
)

// ValueSplit はエピソードごとに解決された支払い先と配分率を表す。
type ValueSplit struct {
	Pubkey           string `json:"pubkey"`
	Percentage       int    `json:"percentage"`
	LightningAddress string `json:"lightning_address,omitempty"`
	NodeID           string `json:"node_id,omitempty"`
	Name             string `json:"name,omitempty"`
}

// Method はノードIDがあれば"node"、なければ"lnaddress"を返す。
func (v ValueSplit) Method() string {
	if v.NodeID != "" {
		return PaymentMethodNode
	}
	return PaymentMethodLNAddress
}

// Address は支払い先アドレスを返す。
// ノードIDもLightningアドレスもない受取人は、出力から落とさないためにプレースホルダーを返す。
func (v ValueSplit) Address() string {
	if v.NodeID != "" {
		return v.NodeID
	}
	if v.LightningAddress != "" {
		return v.LightningAddress
	}
	return "recipient@" + ShortKey(v.Pubkey) + ".ln"
}

// DisplayName は表示名、なければ公開鍵の先頭8文字から生成した名前を返す。
func (v ValueSplit) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return "Recipient " + ShortKey(v.Pubkey)
}

// ShortKey は公開鍵の先頭8文字を返す。
func ShortKey(pubkey string) string {
	if len(pubkey) > 8 {
		return pubkey[:8]
	}
	return pubkey
}
