// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// SourceType is the platform a signal originates from. It routes ingestion
// and enables per-type policies; it never enters the scoring math.
type SourceType int

const (
	SourceTypeTwitter SourceType = iota
	SourceTypeReddit
	SourceTypeNews
	SourceTypeYouTube
	SourceTypeTelegram
	SourceTypeDiscord
	SourceTypeTikTok
	SourceTypeGitHub
	SourceTypeOnChain
	SourceTypeFarcaster
	SourceTypeLens
	SourceTypeOther
)

var sourceTypeNames = [...]string{ //nolint:gochecknoglobals // enum name table
	SourceTypeTwitter:   "twitter",
	SourceTypeReddit:    "reddit",
	SourceTypeNews:      "news",
	SourceTypeYouTube:   "youtube",
	SourceTypeTelegram:  "telegram",
	SourceTypeDiscord:   "discord",
	SourceTypeTikTok:    "tiktok",
	SourceTypeGitHub:    "github",
	SourceTypeOnChain:   "onchain",
	SourceTypeFarcaster: "farcaster",
	SourceTypeLens:      "lens",
	SourceTypeOther:     "other",
}

func (t SourceType) String() string {
	if t < 0 || int(t) >= len(sourceTypeNames) {
		return fmt.Sprintf("SourceType(%d)", int(t))
	}
	return sourceTypeNames[t]
}

// ParseSourceType maps a platform name (case-insensitive) to its SourceType.
func ParseSourceType(s string) (SourceType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range sourceTypeNames {
		if n == name {
			return SourceType(i), nil
		}
	}
	return SourceTypeOther, fmt.Errorf("%w: %q", ErrUnknownSourceType, s)
}

// SourceTypes returns every SourceType in declaration order.
func SourceTypes() []SourceType {
	out := make([]SourceType, len(sourceTypeNames))
	for i := range sourceTypeNames {
		out[i] = SourceType(i)
	}
	return out
}
