// Package creatives classifies, validates and matches creative assets
// against package placeholders before any upstream upload.
package creatives

import (
	"strings"

	"github.com/openadsales/gateway/internal/models"
)

// Kind is the creative type a submission resolves to.
type Kind string

const (
	KindVAST         Kind = "vast"
	KindThirdParty   Kind = "third_party_tag"
	KindNative       Kind = "native"
	KindHTML5        Kind = "html5"
	KindHostedImage  Kind = "hosted_image"
	KindHostedVideo  Kind = "hosted_video"
	KindUnclassified Kind = "unclassified"
)

var htmlExtensions = []string{".html", ".htm", ".html5", ".zip"}

var videoExtensions = []string{".mp4", ".webm", ".mov", ".m4v", ".mpg", ".mpeg", ".avi"}

// Classify resolves the creative kind. First match wins:
// VAST snippet types, then any snippet type as a third-party tag, then
// template variables as native, then media assets split into HTML5 versus
// hosted image/video, then a legacy URL-only fallback.
func Classify(c *models.Creative) Kind {
	switch c.SnippetType {
	case models.SnippetTypeVASTXML, models.SnippetTypeVASTURL:
		return KindVAST
	}
	if c.SnippetType != "" {
		return KindThirdParty
	}
	if len(c.TemplateVariables) > 0 {
		return KindNative
	}

	if c.MediaURL != "" || len(c.MediaData) > 0 {
		if isHTML5(c) {
			return KindHTML5
		}
		if isVideo(c) {
			return KindHostedVideo
		}
		return KindHostedImage
	}

	// Legacy URL-only submissions: sniff what the snippet body holds.
	if c.Snippet != "" {
		trimmed := strings.TrimSpace(c.Snippet)
		lowered := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lowered, "<script") || strings.HasPrefix(lowered, "<iframe") ||
			strings.HasPrefix(lowered, "<ins") || strings.HasPrefix(lowered, "<div"):
			return KindThirdParty
		case strings.Contains(lowered, "vast") || strings.HasSuffix(lowered, ".xml"):
			return KindVAST
		case strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://"):
			if hasAnySuffix(lowered, videoExtensions) {
				return KindHostedVideo
			}
			if hasAnySuffix(lowered, htmlExtensions) {
				return KindHTML5
			}
			return KindHostedImage
		}
	}
	return KindUnclassified
}

func isHTML5(c *models.Creative) bool {
	format := strings.ToLower(c.Format)
	if strings.Contains(format, "html5") || strings.Contains(format, "rich_media") {
		return true
	}
	url := strings.ToLower(c.MediaURL)
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return hasAnySuffix(url, htmlExtensions)
}

func isVideo(c *models.Creative) bool {
	format := strings.ToLower(c.Format)
	if strings.Contains(format, "video") {
		return true
	}
	url := strings.ToLower(c.MediaURL)
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return hasAnySuffix(url, videoExtensions)
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
