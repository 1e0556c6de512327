package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ZapSplit はzapタグで宣言された支払い先と相対ウェイトを表す（NIP-57）。
type ZapSplit struct {
	Pubkey string
	Relay  string
	Weight float64
}

// Participant はライブ配信の参加者（pタグ）を表す。
type Participant struct {
	Pubkey string
	Relay  string
	Role   string
}

// TagSet はイベントのタグ配列を1回だけ走査して得られる構造化レコード。
// 下流のコンポーネントは生のタグ配列を再走査せずにこれを参照する。
type TagSet struct {
	Title        string
	HasTitle     bool
	Image        string
	Summary      string
	Identifier   string
	Status       LiveStatus
	Streaming    string
	Recording    string
	Starts       *time.Time
	Ends         *time.Time
	ZapSplits    []ZapSplit
	Participants []Participant
	Hashtags     []string
}

// ParseTags はタグ配列を解析してTagSetを返す。
// 単一値のタグは最初の出現を採用する。不正なzap/pタグはその場で破棄する。
func ParseTags(tags [][]string) TagSet {
	var ts TagSet
	seenParticipant := make(map[string]bool)

	for _, tag := range tags {
		if len(tag) < 2 {
			continue
		}
		name, value := tag[0], tag[1]

		switch name {
		case "title":
			if !ts.HasTitle {
				ts.Title = value
				ts.HasTitle = true
			}
		case "image":
			setOnce(&ts.Image, value)
		case "summary":
			setOnce(&ts.Summary, value)
		case "d":
			setOnce(&ts.Identifier, value)
		case "streaming":
			setOnce(&ts.Streaming, value)
		case "recording":
			setOnce(&ts.Recording, value)
		case "status":
			if ts.Status == "" {
				ts.Status = ParseLiveStatus(value)
			}
		case "starts":
			if ts.Starts == nil {
				ts.Starts = parseUnix(value)
			}
		case "ends":
			if ts.Ends == nil {
				ts.Ends = parseUnix(value)
			}
		case "zap":
			if z, ok := parseZapTag(tag); ok {
				ts.ZapSplits = append(ts.ZapSplits, z)
			}
		case "p":
			if value == "" || seenParticipant[value] {
				continue
			}
			seenParticipant[value] = true
			ts.Participants = append(ts.Participants, Participant{
				Pubkey: value,
				Relay:  at(tag, 2),
				Role:   at(tag, 3),
			})
		case "t":
			if value != "" {
				ts.Hashtags = append(ts.Hashtags, value)
			}
		}
	}

	return ts
}

// parseZapTag は ["zap", pubkey, relay?, weight?] 形式のタグを解析する。
// ウェイト省略時は1。数値でない・有限でない・0以下の場合は破棄する。
func parseZapTag(tag []string) (ZapSplit, bool) {
	pubkey := strings.TrimSpace(tag[1])
	if pubkey == "" {
		return ZapSplit{}, false
	}

	weight := 1.0
	if len(tag) >= 4 {
		w, err := strconv.ParseFloat(strings.TrimSpace(tag[3]), 64)
		if err != nil || math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
			return ZapSplit{}, false
		}
		weight = w
	}

	return ZapSplit{Pubkey: pubkey, Relay: at(tag, 2), Weight: weight}, true
}

// parseUnix はUNIX秒の文字列を時刻に変換する。0以下や不正値はnil。
func parseUnix(value string) *time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func setOnce(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func at(tag []string, i int) string {
	if len(tag) > i {
		return tag[i]
	}
	return ""
}
