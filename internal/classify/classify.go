// Package classify は投稿やURLが音声・動画・未知のどれを指すかを判定する。
package classify

import (
	"regexp"
	"strings"
)

// Category はメディアの分類を表す。
type Category string

const (
	CategoryAudio   Category = "audio"
	CategoryVideo   Category = "video"
	CategoryUnknown Category = "unknown"
)

// MediaInfo はURLから判定したMIMEタイプと分類。
type MediaInfo struct {
	MimeType string   `json:"mime_type"`
	Category Category `json:"category"`
}

// fallbackInfo は未知の拡張子に対する既定値。
var fallbackInfo = MediaInfo{MimeType: "audio/mpeg", Category: CategoryUnknown}

// typeTable は拡張子（小文字、ドット付き）から分類へのマッピング。
// ストリーミングマニフェスト（.m3u8, .mpd）は動画ファイルではないがvideoとして扱う。
var typeTable = []struct {
	ext  string
	info MediaInfo
}{
	{".m3u8", MediaInfo{"application/x-mpegURL", CategoryVideo}},
	{".mpd", MediaInfo{"application/dash+xml", CategoryVideo}},
	{".mp4", MediaInfo{"video/mp4", CategoryVideo}},
	{".webm", MediaInfo{"video/webm", CategoryVideo}},
	{".mov", MediaInfo{"video/quicktime", CategoryVideo}},
	{".avi", MediaInfo{"video/x-msvideo", CategoryVideo}},
	{".mkv", MediaInfo{"video/x-matroska", CategoryVideo}},
	{".mp3", MediaInfo{"audio/mpeg", CategoryAudio}},
	{".m4a", MediaInfo{"audio/mp4", CategoryAudio}},
	{".aac", MediaInfo{"audio/mp4", CategoryAudio}},
	{".wav", MediaInfo{"audio/wav", CategoryAudio}},
	{".ogg", MediaInfo{"audio/ogg", CategoryAudio}},
	{".flac", MediaInfo{"audio/flac", CategoryAudio}},
}

var (
	audioMarkers = []string{".mp3", ".m4a", ".wav", ".ogg"}
	videoMarkers = []string{".mp4", ".webm", ".mov"}

	audioURLPattern = regexp.MustCompile(`(?i)https?://[^\s]+\.(?:mp3|m4a|wav|ogg)`)
	videoURLPattern = regexp.MustCompile(`(?i)https?://[^\s]+\.(?:mp4|webm|mov)`)
	imageURLPattern = regexp.MustCompile(`(?i)https?://[^\s]+\.(?:jpg|jpeg|png|gif|webp)`)
)

// TypeInfo はURLの拡張子からMIMEタイプと分類を返す。
// 判定は大文字小文字を区別しない末尾一致で行い、未知の場合は(audio/mpeg, unknown)。
func TypeInfo(url string) MediaInfo {
	lower := strings.ToLower(url)
	for _, e := range typeTable {
		if strings.HasSuffix(lower, e.ext) {
			return e.info
		}
	}
	return fallbackInfo
}

// IsHLSStream はURLがHLSマニフェストかどうかを返す。
func IsHLSStream(url string) bool {
	return TypeInfo(url).MimeType == "application/x-mpegURL"
}

// IsMediaEvent は本文のどこかに音声または動画の拡張子が含まれていればtrueを返す。
// URLに限定しない単純な部分一致のため、誤検出もそのまま許容する。
func IsMediaEvent(content string) bool {
	return containsAny(content, audioMarkers) || containsAny(content, videoMarkers)
}

// IsAudioEvent は本文に音声の拡張子が含まれていればtrueを返す。
func IsAudioEvent(content string) bool {
	return containsAny(content, audioMarkers)
}

// ExtractAudioURL は本文中で最初に現れる音声ファイルURLを返す。
func ExtractAudioURL(content string) string {
	return audioURLPattern.FindString(content)
}

// ExtractVideoURL は本文中で最初に現れる動画ファイルURLを返す。
func ExtractVideoURL(content string) string {
	return videoURLPattern.FindString(content)
}

// ExtractMediaURL は主メディアURLを返す。音声と動画の両方がある場合は動画を優先する。
func ExtractMediaURL(content string) string {
	if v := ExtractVideoURL(content); v != "" {
		return v
	}
	return ExtractAudioURL(content)
}

// ExtractImageURL は本文中で最初に現れる画像URLを返す。
func ExtractImageURL(content string) string {
	return imageURLPattern.FindString(content)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
