package detect

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/formward/formward/pkg/model"
)

// PatternDetector scores submitted field values with stateless content
// heuristics. Analyze is a pure function: no I/O, no mutation, safe for
// concurrent use.
type PatternDetector struct {
	policy Policy
}

func NewPatternDetector(policy Policy) *PatternDetector {
	return &PatternDetector{policy: policy}
}

func (d *PatternDetector) Name() string { return "pattern" }

type patternCheck struct {
	name string
	run  func(*PatternDetector, *model.Submission) model.DetectorResult
}

// patternChecks is the fixed check-family list. Each family reports at most
// one result; families are independent and aggregated by max downstream.
var patternChecks = []patternCheck{
	{"min_words", (*PatternDetector).checkMinWords},
	{"url_in_text", (*PatternDetector).checkURLInText},
	{"email_in_text", (*PatternDetector).checkEmailInText},
	{"phone_in_text", (*PatternDetector).checkPhoneInText},
	{"text_length", (*PatternDetector).checkTextLength},
	{"text_min_length", (*PatternDetector).checkTextMinLength},
	{"link_density", (*PatternDetector).checkLinkDensity},
	{"keywords", (*PatternDetector).checkKeywords},
	{"excessive_caps", (*PatternDetector).checkExcessiveCaps},
	{"char_repetition", (*PatternDetector).checkCharRepetition},
	{"word_density", (*PatternDetector).checkWordDensity},
	{"structure", (*PatternDetector).checkStructure},
	{"all_caps_sentence", (*PatternDetector).checkAllCapsSentences},
	{"exclamations", (*PatternDetector).checkExclamations},
	{"business_terms", (*PatternDetector).checkBusinessTerms},
	{"email_in_message", (*PatternDetector).checkEmailInMessage},
	{"email_field", (*PatternDetector).checkEmailFields},
	{"url_field", (*PatternDetector).checkURLFields},
}

// Analyze runs every check family and returns the triggered results. A
// panicking check is swallowed and contributes nothing: one broken heuristic
// must never fail the whole evaluation.
func (d *PatternDetector) Analyze(sub *model.Submission) []model.DetectorResult {
	if len(d.policy.ExcludedFields) > 0 {
		sub = model.NewSubmission(sub.Fields(), model.WithExcludedFields(d.policy.ExcludedFields))
	}

	var results []model.DetectorResult
	for _, c := range patternChecks {
		if r, ok := safeRun(c.name, func() model.DetectorResult { return c.run(d, sub) }); ok && r.Detected {
			r.Check = c.name
			results = append(results, r)
		}
	}
	return results
}

func safeRun(name string, fn func() model.DetectorResult) (r model.DetectorResult, ok bool) {
	defer func() {
		if recover() != nil {
			r, ok = model.DetectorResult{}, false
		}
	}()
	return fn(), true
}

func notDetected() model.DetectorResult { return model.DetectorResult{} }

// checkMinWords counts word-like tokens across long-text fields. Below the
// minimum the result is decisive (80): empty and gibberish submissions are
// rejected outright, moderation never gets called for them.
func (d *PatternDetector) checkMinWords(sub *model.Submission) model.DetectorResult {
	texts := sub.Values(model.KindLongText)
	if len(texts) == 0 {
		// Fallback when no grouping reached us: any long-ish value that
		// is not an email or URL counts as message text.
		for _, f := range sub.Fields() {
			if f.Kind == model.KindEmail || f.Kind == model.KindURL {
				continue
			}
			if len(f.Value) >= 20 {
				texts = append(texts, f.Value)
			}
		}
	}

	words := 0
	for _, t := range texts {
		for _, tok := range strings.Fields(t) {
			if reWord.MatchString(tok) {
				words++
			}
		}
	}
	if words >= d.policy.MinWords {
		return notDetected()
	}
	return model.DetectorResult{
		Score:    80,
		Detected: true,
		Reason:   fmt.Sprintf("not enough words in text fields (%d < %d)", words, d.policy.MinWords),
		Evidence: map[string]any{"word_count": words, "minimum": d.policy.MinWords},
	}
}

func (d *PatternDetector) checkURLInText(sub *model.Submission) model.DetectorResult {
	content := sub.Joined(model.KindShortText)
	if content == "" || !reLink.MatchString(content) {
		return notDetected()
	}
	return model.DetectorResult{
		Score: 40, Detected: true, SoftWarning: true,
		Reason: "URL found in short text field",
	}
}

func (d *PatternDetector) checkEmailInText(sub *model.Submission) model.DetectorResult {
	content := sub.Joined(model.KindShortText)
	if content == "" || !reEmail.MatchString(content) {
		return notDetected()
	}
	return model.DetectorResult{
		Score: 40, Detected: true, SoftWarning: true,
		Reason: "email address found in short text field",
	}
}

func (d *PatternDetector) checkPhoneInText(sub *model.Submission) model.DetectorResult {
	content := sub.Joined(model.KindShortText)
	if content == "" || !rePhone.MatchString(content) {
		return notDetected()
	}
	return model.DetectorResult{
		Score: 40, Detected: true, SoftWarning: true,
		Reason: "phone number found in short text field",
	}
}

// checkTextLength enforces sensible bounds on short text fields: soft
// warning past the warn thresholds, a stronger signal past the block
// thresholds.
func (d *PatternDetector) checkTextLength(sub *model.Submission) model.DetectorResult {
	level := 0
	var samples []string
	for _, v := range sub.Values(model.KindShortText) {
		chars := len(v)
		words := len(strings.Fields(v))
		switch {
		case chars > d.policy.TextBlockChars || words > d.policy.TextBlockWords:
			level = 2
			samples = append(samples, fmt.Sprintf("%.50s (%d chars, %d words)", v, chars, words))
		case chars > d.policy.TextWarnChars || words > d.policy.TextWarnWords:
			if level < 1 {
				level = 1
			}
			samples = append(samples, fmt.Sprintf("%.50s (%d chars, %d words)", v, chars, words))
		}
	}
	switch level {
	case 1:
		return model.DetectorResult{
			Score: 20, Detected: true, SoftWarning: true,
			Reason:   "long content in short text field",
			Evidence: map[string]any{"samples": samples},
		}
	case 2:
		return model.DetectorResult{
			Score: 40, Detected: true,
			Reason:   "excessively long content in short text field",
			Evidence: map[string]any{"samples": samples},
		}
	}
	return notDetected()
}

func (d *PatternDetector) checkTextMinLength(sub *model.Submission) model.DetectorResult {
	min := d.policy.TextMinChars
	if min < 1 {
		min = 1
	}
	for _, v := range sub.Values(model.KindShortText) {
		n := len(strings.TrimSpace(v))
		if n > 0 && n < min {
			return model.DetectorResult{
				Score: 20, Detected: true, SoftWarning: true,
				Reason: fmt.Sprintf("short text field under %d chars", min),
			}
		}
	}
	return notDetected()
}

// checkLinkDensity scans message content (short and long text, never
// dedicated URL fields). A single link is a correctable soft warning; two or
// more escalate with each extra link.
func (d *PatternDetector) checkLinkDensity(sub *model.Submission) model.DetectorResult {
	content := sub.Joined(model.KindShortText, model.KindLongText)
	if content == "" {
		return notDetected()
	}
	links := len(reLink.FindAllString(content, -1))
	switch {
	case links == 1:
		return model.DetectorResult{
			Score: 20, Detected: true, SoftWarning: true,
			Reason:   "single link in message field",
			Evidence: map[string]any{"link_count": 1},
		}
	case links > 1:
		score := 30 + 10*float64(links-2)
		if score > 60 {
			score = 60
		}
		return model.DetectorResult{
			Score: score, Detected: true,
			Reason:   fmt.Sprintf("multiple links detected (%d)", links),
			Evidence: map[string]any{"link_count": links},
		}
	}
	return notDetected()
}

func (d *PatternDetector) checkKeywords(sub *model.Submission) model.DetectorResult {
	content := strings.ToLower(sub.AllText())
	var found []string
	for _, kw := range d.policy.SpamKeywords {
		if strings.Contains(content, kw) {
			found = append(found, kw)
		}
	}
	if len(found) == 0 {
		return notDetected()
	}
	score := float64(len(found)) * 15
	if score > 50 {
		score = 50
	}
	return model.DetectorResult{
		Score: score, Detected: true,
		Reason:   "suspicious keywords found: " + strings.Join(found, ", "),
		Evidence: map[string]any{"keywords": found},
	}
}

func (d *PatternDetector) checkExcessiveCaps(sub *model.Submission) model.DetectorResult {
	content := sub.AllText()
	if len(content) < 20 {
		return notDetected()
	}
	upper, lower := 0, 0
	for _, r := range content {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		}
	}
	total := upper + lower
	if total == 0 {
		return notDetected()
	}
	ratio := float64(upper) / float64(total)
	if ratio <= 0.5 {
		return notDetected()
	}
	return model.DetectorResult{
		Score: 20, Detected: true,
		Reason:   fmt.Sprintf("excessive capital letters (%.0f%%)", ratio*100),
		Evidence: map[string]any{"caps_ratio": ratio},
	}
}

// checkCharRepetition flags 6+ consecutive identical word characters.
// RE2 has no backreferences, so this is a linear scan.
func (d *PatternDetector) checkCharRepetition(sub *model.Submission) model.DetectorResult {
	const threshold = 6
	run := 0
	var prev rune
	for _, r := range sub.AllText() {
		if r == prev && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			run++
			if run >= threshold {
				return model.DetectorResult{
					Score: 25, Detected: true,
					Reason: "excessive character repetition",
				}
			}
		} else {
			run = 1
		}
		prev = r
	}
	return notDetected()
}

// checkWordDensity flags a single word (over 3 chars) making up more than
// 15% of all tokens.
func (d *PatternDetector) checkWordDensity(sub *model.Submission) model.DetectorResult {
	tokens := strings.Fields(sub.AllText())
	if len(tokens) < 7 {
		return notDetected()
	}
	counts := make(map[string]int)
	for _, t := range tokens {
		counts[strings.ToLower(t)]++
	}
	for word, n := range counts {
		if len(word) <= 3 {
			continue
		}
		density := float64(n) / float64(len(tokens)) * 100
		if density > 15 {
			return model.DetectorResult{
				Score: 15, Detected: true,
				Reason:   fmt.Sprintf("word %q repeated %d times (%.1f%% of text)", word, n, density),
				Evidence: map[string]any{"word": word, "count": n},
			}
		}
	}
	return notDetected()
}

func (d *PatternDetector) checkStructure(sub *model.Submission) model.DetectorResult {
	content := sub.Joined(model.KindShortText, model.KindLongText)
	if content == "" {
		content = sub.AllText()
	}
	for _, p := range structuralPatterns {
		if p.re.MatchString(content) {
			return model.DetectorResult{Score: 25, Detected: true, Reason: p.reason}
		}
	}
	return notDetected()
}

func (d *PatternDetector) checkAllCapsSentences(sub *model.Submission) model.DetectorResult {
	content := sub.Joined(model.KindLongText)
	if content == "" {
		return notDetected()
	}
	for _, sentence := range reSentenceEnd.Split(content, -1) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= 10 {
			continue
		}
		letters := reNonLetter.ReplaceAllString(sentence, "")
		if letters != "" && letters == strings.ToUpper(letters) {
			return model.DetectorResult{
				Score: 25, Detected: true,
				Reason: "all-caps sentence detected",
			}
		}
	}
	return notDetected()
}

func (d *PatternDetector) checkExclamations(sub *model.Submission) model.DetectorResult {
	if !reExclamation.MatchString(sub.Joined(model.KindLongText)) {
		return notDetected()
	}
	return model.DetectorResult{
		Score: 15, Detected: true,
		Reason: "excessive exclamation marks",
	}
}

func (d *PatternDetector) checkBusinessTerms(sub *model.Submission) model.DetectorResult {
	content := strings.ToLower(sub.Joined(model.KindLongText))
	if content == "" {
		return notDetected()
	}
	var found []string
	for _, term := range d.policy.BusinessTerms {
		if strings.Contains(content, term) {
			found = append(found, term)
		}
	}
	if len(found) == 0 {
		return notDetected()
	}
	score := float64(len(found)) * 5
	if score > 20 {
		score = 20
	}
	return model.DetectorResult{
		Score: score, Detected: true,
		Reason:   "business terminology found: " + strings.Join(found, ", "),
		Evidence: map[string]any{"terms": found},
	}
}

func (d *PatternDetector) checkEmailInMessage(sub *model.Submission) model.DetectorResult {
	content := sub.Joined(model.KindLongText)
	if content == "" || !reEmail.MatchString(content) {
		return notDetected()
	}
	return model.DetectorResult{
		Score: 20, Detected: true, SoftWarning: true,
		Reason: "email address found in message content",
	}
}

// checkEmailFields validates email-classified fields: they must parse as
// addresses, must not contain URLs and must not use disposable domains.
func (d *PatternDetector) checkEmailFields(sub *model.Submission) model.DetectorResult {
	emails := sub.Values(model.KindEmail)
	if len(emails) == 0 {
		return notDetected()
	}
	score := 0.0
	var issues []string
	for _, e := range emails {
		if reURLScheme.MatchString(e) {
			issues = append(issues, "URL found in email field")
			score = max(score, 40)
			continue
		}
		if _, err := mail.ParseAddress(e); err != nil {
			issues = append(issues, "invalid email address format")
			score = max(score, 40)
			continue
		}
		at := strings.LastIndex(e, "@")
		domain := strings.ToLower(e[at+1:])
		for _, disp := range d.policy.DisposableEmail {
			if domain == disp {
				issues = append(issues, "disposable email address detected")
				score = max(score, 40)
				break
			}
		}
	}
	if len(issues) == 0 {
		return notDetected()
	}
	if score > 60 {
		score = 60
	}
	return model.DetectorResult{
		Score: score, Detected: true,
		Reason: strings.Join(dedupe(issues), "; "),
	}
}

// checkURLFields runs the strict rules on url-classified fields: query
// parameters, shorteners, throwaway TLDs and raw IP hosts all elevate risk.
func (d *PatternDetector) checkURLFields(sub *model.Submission) model.DetectorResult {
	urls := sub.Values(model.KindURL)
	if len(urls) == 0 {
		return notDetected()
	}
	score := 0.0
	soft := false
	var reasons []string
	for _, u := range urls {
		lower := strings.ToLower(u)

		if reEmail.MatchString(u) {
			score = max(score, 40)
			reasons = append(reasons, "email address in website field")
			continue
		}
		if strings.Contains(u, "?") {
			score = max(score, 80)
			reasons = append(reasons, "URL with query parameters in website field")
		}
		for _, s := range urlShorteners {
			if strings.Contains(lower, s) {
				score = max(score, 60)
				reasons = append(reasons, "URL shortener detected ("+s+")")
				break
			}
		}
		host := strings.TrimSuffix(strings.SplitN(lower, "?", 2)[0], "/")
		for _, tld := range suspiciousTLDs {
			if strings.HasSuffix(host, tld) {
				score = max(score, 50)
				reasons = append(reasons, "suspicious TLD ("+tld+")")
				break
			}
		}
		if reIPHost.MatchString(u) {
			score = max(score, 60)
			reasons = append(reasons, "IP address in URL")
		}
		if score == 0 && !reBareHost.MatchString(strings.TrimSpace(u)) {
			score = max(score, 20)
			soft = true
			reasons = append(reasons, "invalid website URL format")
		}
	}
	if score == 0 {
		return notDetected()
	}
	if score > 100 {
		score = 100
	}
	return model.DetectorResult{
		Score: score, Detected: true, SoftWarning: soft && score <= 20,
		Reason: strings.Join(dedupe(reasons), ", "),
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
