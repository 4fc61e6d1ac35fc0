// Package policy classifies promoted offerings against tenant-configured
// prohibition lists.
package policy

import (
	"fmt"
	"path"
	"strings"

	"github.com/openadsales/gateway/internal/models"
)

// Status is the outcome of a policy check.
type Status string

const (
	StatusAllowed        Status = "allowed"
	StatusReviewRequired Status = "review_required"
	StatusRejected       Status = "rejected"
)

// Result carries the check outcome plus the rules that fired.
type Result struct {
	Status  Status   `json:"status"`
	Reasons []string `json:"details,omitempty"`
}

// Check evaluates a promoted offering against tenant policy. Prohibited
// advertisers and categories match as case-insensitive substrings; tactics
// are shell-style patterns. Rejections win over review flags.
func Check(offering string, settings models.PolicySettings) Result {
	if strings.TrimSpace(offering) == "" {
		return Result{Status: StatusAllowed}
	}
	lowered := strings.ToLower(offering)

	var reasons []string
	for _, adv := range settings.ProhibitedAdvertisers {
		if adv != "" && strings.Contains(lowered, strings.ToLower(adv)) {
			reasons = append(reasons, fmt.Sprintf("prohibited advertiser: %s", adv))
		}
	}
	for _, cat := range settings.ProhibitedCategories {
		if cat != "" && strings.Contains(lowered, strings.ToLower(cat)) {
			reasons = append(reasons, fmt.Sprintf("prohibited category: %s", cat))
		}
	}
	if len(reasons) > 0 {
		return Result{Status: StatusRejected, Reasons: reasons}
	}

	for _, tactic := range settings.ProhibitedTactics {
		if tactic == "" {
			continue
		}
		if matchTactic(strings.ToLower(tactic), lowered) {
			reasons = append(reasons, fmt.Sprintf("flagged tactic: %s", tactic))
		}
	}
	if len(reasons) > 0 {
		return Result{Status: StatusReviewRequired, Reasons: reasons}
	}
	return Result{Status: StatusAllowed}
}

// matchTactic matches a tactic pattern against the offering text. A bare
// word matches as a substring; patterns with wildcards match any word in
// the text via path.Match.
func matchTactic(pattern, text string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return strings.Contains(text, pattern)
	}
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ';' || r == '\n'
	}) {
		if ok, err := path.Match(pattern, word); err == nil && ok {
			return true
		}
	}
	return false
}
