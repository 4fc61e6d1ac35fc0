package creatives

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openadsales/gateway/internal/models"
)

func TestClassifyFirstMatchWins(t *testing.T) {
	cases := []struct {
		name string
		c    models.Creative
		want Kind
	}{
		{
			name: "vast xml snippet",
			c:    models.Creative{SnippetType: models.SnippetTypeVASTXML, Snippet: "<VAST/>"},
			want: KindVAST,
		},
		{
			name: "vast url snippet",
			c:    models.Creative{SnippetType: models.SnippetTypeVASTURL, Snippet: "https://ads.example.com/vast"},
			want: KindVAST,
		},
		{
			name: "html snippet type is third party",
			c:    models.Creative{SnippetType: models.SnippetTypeHTML, Snippet: "<script/>"},
			want: KindThirdParty,
		},
		{
			name: "template variables mean native",
			c:    models.Creative{TemplateVariables: map[string]string{"headline": "Buy now"}},
			want: KindNative,
		},
		{
			name: "zip media url is html5",
			c:    models.Creative{MediaURL: "https://cdn.example.com/bundle.zip"},
			want: KindHTML5,
		},
		{
			name: "rich media format string is html5",
			c:    models.Creative{Format: "display_rich_media", MediaURL: "https://cdn.example.com/asset"},
			want: KindHTML5,
		},
		{
			name: "mp4 media url is hosted video",
			c:    models.Creative{MediaURL: "https://cdn.example.com/spot.mp4"},
			want: KindHostedVideo,
		},
		{
			name: "video format string is hosted video",
			c:    models.Creative{Format: "video_instream", MediaURL: "https://cdn.example.com/asset"},
			want: KindHostedVideo,
		},
		{
			name: "plain media url is hosted image",
			c:    models.Creative{MediaURL: "https://cdn.example.com/banner.png"},
			want: KindHostedImage,
		},
		{
			name: "legacy script snippet",
			c:    models.Creative{Snippet: "<script src='https://tag.example.com'></script>"},
			want: KindThirdParty,
		},
		{
			name: "legacy vast url in snippet",
			c:    models.Creative{Snippet: "https://ads.example.com/vast.xml"},
			want: KindVAST,
		},
		{
			name: "legacy bare image url in snippet",
			c:    models.Creative{Snippet: "https://cdn.example.com/banner.jpg"},
			want: KindHostedImage,
		},
		{
			name: "nothing provided",
			c:    models.Creative{Name: "empty"},
			want: KindUnclassified,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(&tc.c))
		})
	}
}

func TestValidateVideoRequiresDuration(t *testing.T) {
	c := models.Creative{Name: "spot", MediaURL: "https://cdn.example.com/spot.mp4"}
	err := Validate(&c, KindHostedVideo)
	assert.ErrorContains(t, err, "duration_seconds")

	dur := 15.0
	c.DurationSeconds = &dur
	assert.NoError(t, Validate(&c, KindHostedVideo))
	assert.EqualValues(t, 15000, DurationMillis(&c))
}

func TestValidateHostedImageRequiresClickURL(t *testing.T) {
	c := models.Creative{Name: "banner", MediaURL: "https://cdn.example.com/banner.png"}
	assert.ErrorContains(t, Validate(&c, KindHostedImage), "click_url")

	c.ClickURL = "https://example.com/landing"
	assert.NoError(t, Validate(&c, KindHostedImage))
}

func TestValidateHostedImageLegacyClickFields(t *testing.T) {
	c := models.Creative{
		Name:              "banner",
		MediaURL:          "https://cdn.example.com/banner.png",
		TemplateVariables: map[string]string{"landing_url": "https://example.com"},
	}
	assert.NoError(t, Validate(&c, KindHostedImage))
}

func TestValidateHostedImageRejectsNonHTTP(t *testing.T) {
	c := models.Creative{Name: "banner", ClickURL: "https://example.com", MediaURL: "ftp://cdn.example.com/banner.png"}
	assert.ErrorContains(t, Validate(&c, KindHostedImage), "http(s)")
}

func TestValidateRejectsInlineImageData(t *testing.T) {
	c := models.Creative{Name: "banner", ClickURL: "https://example.com", MediaData: []byte{0xFF, 0xD8}}
	assert.ErrorContains(t, Validate(&c, KindHostedImage), "inline image data")
}

func TestMatchPlaceholderExactAndWildcard(t *testing.T) {
	c := models.Creative{Width: 300, Height: 250}

	exact := []models.Size{{Width: 728, Height: 90}, {Width: 300, Height: 250}}
	assert.True(t, MatchPlaceholder(exact, &c))

	wildcard := []models.Size{{Width: 1, Height: 1}}
	assert.True(t, MatchPlaceholder(wildcard, &c))

	none := []models.Size{{Width: 728, Height: 90}}
	assert.False(t, MatchPlaceholder(none, &c))
}

func TestResolvePlaceholdersProductFallback(t *testing.T) {
	byPackage := map[string][]models.Size{
		"pkg_known": {{Width: 300, Height: 250}},
	}
	byProduct := map[string][]models.Size{
		"prod_abc123": {{Width: 728, Height: 90}},
	}

	ph, ok := ResolvePlaceholders(byPackage, byProduct, "pkg_known")
	assert.True(t, ok)
	assert.Equal(t, 300, ph[0].Width)

	ph, ok = ResolvePlaceholders(byPackage, byProduct, "pkg_prod_abc123_0")
	assert.True(t, ok)
	assert.Equal(t, 728, ph[0].Width)

	_, ok = ResolvePlaceholders(byPackage, byProduct, "pkg_prod_missing_0")
	assert.False(t, ok)
}

func TestProductIDFromPackageID(t *testing.T) {
	id, ok := ProductIDFromPackageID("pkg_prod_abc123_0")
	assert.True(t, ok)
	assert.Equal(t, "prod_abc123", id)

	_, ok = ProductIDFromPackageID("pkg_0")
	assert.False(t, ok)
}
