package creatives

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openadsales/gateway/internal/models"
)

// Validate applies type-agnostic checks and then per-kind rules. A failed
// creative is never submitted upstream; the rest of the batch continues.
func Validate(c *models.Creative, kind Kind) error {
	if c.Name == "" {
		return fmt.Errorf("creative name is required")
	}

	switch kind {
	case KindUnclassified:
		return fmt.Errorf("creative could not be classified: provide a snippet, template variables or a media asset")
	case KindHostedVideo:
		if c.DurationSeconds == nil {
			return fmt.Errorf("video creatives require duration_seconds")
		}
	case KindHostedImage:
		if clickURLOf(c) == "" {
			return fmt.Errorf("hosted image creatives require a click_url")
		}
		if c.MediaURL != "" && !isHTTPURL(c.MediaURL) {
			return fmt.Errorf("image media_url must be an http(s) URL")
		}
		if c.MediaURL == "" && len(c.MediaData) > 0 {
			return fmt.Errorf("inline image data is not accepted: host the asset and provide media_url")
		}
	case KindThirdParty:
		if strings.TrimSpace(c.Snippet) == "" {
			return fmt.Errorf("third-party tag creatives require a snippet")
		}
	case KindVAST:
		if strings.TrimSpace(c.Snippet) == "" {
			return fmt.Errorf("vast creatives require a snippet (document or URL)")
		}
	}
	return nil
}

// clickURLOf tolerates the legacy field names some buyers still send.
func clickURLOf(c *models.Creative) string {
	if c.ClickURL != "" {
		return c.ClickURL
	}
	for _, key := range []string{"landing_url", "clickthrough_url"} {
		if v := c.TemplateVariables[key]; v != "" {
			return v
		}
	}
	return ""
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// DurationMillis converts the buyer-facing seconds value to the
// milliseconds upstream expects.
func DurationMillis(c *models.Creative) int64 {
	if c.DurationSeconds == nil {
		return 0
	}
	return int64(*c.DurationSeconds * 1000)
}

var packageProductPattern = regexp.MustCompile(`^pkg_(prod_[A-Za-z0-9]+)_`)

// ProductIDFromPackageID parses a product ID embedded in a package ID of
// the form pkg_<prod_XXXXXX>_..., tolerating line-item naming conventions.
func ProductIDFromPackageID(packageID string) (string, bool) {
	m := packageProductPattern.FindStringSubmatch(packageID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MatchPlaceholder reports whether any placeholder accepts the creative's
// size. A 1x1 placeholder is a wildcard.
func MatchPlaceholder(placeholders []models.Size, c *models.Creative) bool {
	size := c.Size()
	for _, ph := range placeholders {
		if ph.IsWildcard() {
			return true
		}
		if ph.Width == size.Width && ph.Height == size.Height {
			return true
		}
	}
	return false
}

// ResolvePlaceholders looks up the placeholder list for a package. When
// the package ID is not in the map, it falls back to the product ID parsed
// from the package ID pattern.
func ResolvePlaceholders(byPackage map[string][]models.Size, byProduct map[string][]models.Size, packageID string) ([]models.Size, bool) {
	if ph, ok := byPackage[packageID]; ok {
		return ph, true
	}
	if productID, ok := ProductIDFromPackageID(packageID); ok {
		if ph, ok := byProduct[productID]; ok {
			return ph, true
		}
	}
	return nil, false
}
