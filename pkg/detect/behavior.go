package detect

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/formward/formward/pkg/model"
)

// BehaviorDetector scores request-level signals: submission timing, user
// agent, referrer and a lexical language-consistency heuristic. All ambient
// data comes from the caller; the detector never inspects the request
// itself.
//
// Failure semantics are asymmetric on purpose: a missing timer value means
// the timing check cannot run (undetected), while a missing referrer is
// itself weak evidence and still scores.
type BehaviorDetector struct {
	policy        Policy
	minSubmitTime time.Duration
	expectedLang  string // base language code, e.g. "de"
}

// NewBehaviorDetector builds a detector. expectedLocale may be any BCP 47
// tag ("de-AT", "en_US"); only the base language is kept. An unparseable or
// empty locale disables the language check.
func NewBehaviorDetector(policy Policy, minSubmitTime time.Duration, expectedLocale string) *BehaviorDetector {
	lang := ""
	if expectedLocale != "" {
		if tag, err := language.Parse(strings.ReplaceAll(expectedLocale, "_", "-")); err == nil {
			base, _ := tag.Base()
			lang = base.String()
		}
	}
	return &BehaviorDetector{policy: policy, minSubmitTime: minSubmitTime, expectedLang: lang}
}

func (d *BehaviorDetector) Name() string { return "behavior" }

func (d *BehaviorDetector) Analyze(sub *model.Submission, amb model.AmbientContext) []model.DetectorResult {
	checks := []struct {
		name string
		run  func(*model.Submission, model.AmbientContext) model.DetectorResult
	}{
		{"submission_time", d.checkSubmissionTime},
		{"language", d.checkLanguage},
		{"user_agent", d.checkUserAgent},
		{"referrer", d.checkReferrer},
		{"spam_referrer", d.checkSpamReferrer},
	}

	var results []model.DetectorResult
	for _, c := range checks {
		if r, ok := safeRun(c.name, func() model.DetectorResult { return c.run(sub, amb) }); ok && r.Detected {
			r.Check = c.name
			results = append(results, r)
		}
	}
	return results
}

func (d *BehaviorDetector) checkSubmissionTime(_ *model.Submission, amb model.AmbientContext) model.DetectorResult {
	if !amb.HasElapsed {
		// No timer value: the check cannot run.
		return notDetected()
	}
	if amb.Elapsed < time.Second {
		return model.DetectorResult{
			Score: 70, Detected: true,
			Reason:   "form submitted in less than 1 second",
			Evidence: map[string]any{"elapsed_ms": amb.Elapsed.Milliseconds()},
		}
	}
	if amb.Elapsed < d.minSubmitTime {
		return model.DetectorResult{
			Score: 50, Detected: true,
			Reason:   fmt.Sprintf("form submitted too quickly (%.0fs)", amb.Elapsed.Seconds()),
			Evidence: map[string]any{"elapsed_ms": amb.Elapsed.Milliseconds()},
		}
	}
	return notDetected()
}

// checkLanguage compares the submission text against tiny common-word lists.
// It is a tie-breaker, not a language identifier: it only fires when another
// language clearly outweighs the expected one.
func (d *BehaviorDetector) checkLanguage(sub *model.Submission, _ model.AmbientContext) model.DetectorResult {
	if d.expectedLang == "" {
		return notDetected()
	}
	content := " " + strings.ToLower(sub.AllText()) + " "
	if len(strings.TrimSpace(content)) < 10 {
		return notDetected()
	}

	best, bestCount := "", 0
	for lang, words := range languageWordlists {
		count := 0
		for _, w := range words {
			count += strings.Count(content, " "+w+" ")
		}
		if count > bestCount {
			best, bestCount = lang, count
		}
	}
	if bestCount < 2 || best == d.expectedLang {
		return notDetected()
	}
	return model.DetectorResult{
		Score: 20, Detected: true,
		Reason:   fmt.Sprintf("language mismatch (expected %s, detected %s)", d.expectedLang, best),
		Evidence: map[string]any{"expected": d.expectedLang, "detected": best},
	}
}

func (d *BehaviorDetector) checkUserAgent(_ *model.Submission, amb model.AmbientContext) model.DetectorResult {
	ua := strings.TrimSpace(amb.UserAgent)
	if ua == "" {
		return model.DetectorResult{
			Score: 30, Detected: true,
			Reason: "no user agent provided",
		}
	}
	lower := strings.ToLower(ua)
	for _, sig := range botUserAgents {
		if strings.Contains(lower, sig) {
			return model.DetectorResult{
				Score: 40, Detected: true,
				Reason:   "bot user agent detected (" + sig + ")",
				Evidence: map[string]any{"user_agent": ua},
			}
		}
	}
	return notDetected()
}

func (d *BehaviorDetector) checkReferrer(_ *model.Submission, amb model.AmbientContext) model.DetectorResult {
	ref := strings.TrimSpace(amb.Referrer)
	if ref == "" {
		return model.DetectorResult{
			Score: 10, Detected: true,
			Reason: "no referrer provided",
		}
	}
	if amb.SiteOrigin != "" && !strings.HasPrefix(ref, amb.SiteOrigin) {
		return model.DetectorResult{
			Score: 15, Detected: true,
			Reason:   "external referrer",
			Evidence: map[string]any{"referrer": ref},
		}
	}
	return notDetected()
}

func (d *BehaviorDetector) checkSpamReferrer(_ *model.Submission, amb model.AmbientContext) model.DetectorResult {
	ref := strings.ToLower(strings.TrimSpace(amb.Referrer))
	if ref == "" {
		return notDetected()
	}
	for _, host := range d.policy.SpamReferrers {
		if strings.Contains(ref, host) {
			return model.DetectorResult{
				Score: 60, Detected: true,
				Reason:   "spam referrer detected: " + host,
				Evidence: map[string]any{"referrer": amb.Referrer},
			}
		}
	}
	for _, pattern := range d.policy.RefererPatterns {
		if strings.Contains(ref, pattern) {
			return model.DetectorResult{
				Score: 40, Detected: true,
				Reason:   "suspicious referrer pattern: " + pattern,
				Evidence: map[string]any{"referrer": amb.Referrer},
			}
		}
	}
	return notDetected()
}
