// Package detect implements the local spam detectors: content pattern
// heuristics, behavioral signals and duplicate-submission checks. All
// detectors are pure over their inputs and never perform network I/O; the
// duplicate detector is the only one that reads a store.
//
// Design principles follow the rest of the codebase:
// - COMPILE ONCE: every regex is a package-level compiled pattern
// - MAX, NOT SUM: each check family contributes its maximum score
// - PLUGGABLE: keyword and referrer lists are injected via Policy
package detect

import "regexp"

// Pre-compiled patterns shared across checks.
var (
	// reLink catches http(s) URLs, www. forms and bare domain.tld tokens
	// (spammers routinely drop the scheme).
	reLink = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/\S*)?)`)

	reEmail = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	// rePhone is conservative: 7+ digits allowing common separators, so
	// ordinary small numbers in prose do not trip it.
	rePhone = regexp.MustCompile(`(?:(?:\+|00)?\d{1,3}[\s.-]?)?(?:\(?\d{2,4}\)?[\s.-]?)?\d(?:[\s.-]?\d){6,}`)

	// reWord matches word-like tokens: two or more letters, Unicode-aware.
	reWord = regexp.MustCompile(`\p{L}{2,}`)

	reURLScheme = regexp.MustCompile(`(?i)https?://|www\.`)
	reBareHost  = regexp.MustCompile(`(?i)^(?:https?://)?(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/\S*)?$`)
	reIPHost    = regexp.MustCompile(`(?i)https?://\d{1,3}(?:\.\d{1,3}){3}`)

	reSpecialRun  = regexp.MustCompile(`[^\w\s]{5,}`)
	reDigitRun    = regexp.MustCompile(`\d{10,}`)
	reScriptTag   = regexp.MustCompile(`(?i)<script`)
	reBBCodeLink  = regexp.MustCompile(`(?i)\[url=`)
	reBrokenLink  = regexp.MustCompile(`(?i)\{link:`)
	reExclamation = regexp.MustCompile(`!{5,}`)
	reSentenceEnd = regexp.MustCompile(`[.!?]+`)
	reNonLetter   = regexp.MustCompile(`[^a-zA-Z]`)
)

// structuralPatterns are anomalies that each score 25 on first match.
var structuralPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{reScriptTag, "script tag detected"},
	{reBBCodeLink, "BBCode link detected"},
	{reBrokenLink, "malformed link syntax"},
	{reSpecialRun, "excessive special characters"},
	{reDigitRun, "suspicious number sequence"},
}

// defaultSpamKeywords are matched case-insensitively as substrings.
var defaultSpamKeywords = []string{
	"viagra", "cialis", "casino", "poker", "lottery", "winner",
	"click here", "buy now", "limited time", "act now", "order now",
	"free money", "double your", "guarantee", "no risk", "discount",
	"pharmacy", "replica", "rolex", "weight loss", "make money",
	"work from home", "earn $", "seo service", "backlinks", "cheap",
}

// defaultBusinessTerms are weak commercial-spam markers, scored lightly.
var defaultBusinessTerms = []string{
	"net 30", "credit application", "purchasing officer", "payment term",
	"dear sales team", "kind regards", "best regards",
}

var defaultDisposableEmailDomains = []string{
	"tempmail.com", "throwaway.email", "guerrillamail.com", "mailinator.com",
	"10minutemail.com", "temp-mail.org", "yopmail.com", "maildrop.cc",
	"trashmail.com",
}

var urlShorteners = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd",
	"buff.ly", "adf.ly",
}

var suspiciousTLDs = []string{
	".xyz", ".top", ".work", ".click", ".link", ".gq", ".ml", ".ga",
	".cf", ".tk",
}

var botUserAgents = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python", "java", "perl", "ruby", "go-http",
}

// defaultSpamReferrers are known referrer-spam hosts; a hit is a strong
// signal (60). The looser defaultReferrerPatterns score 40.
var defaultSpamReferrers = []string{
	"syndicatedsearch.goog", "free-share-buttons", "social-buttons.com",
	"buttons-for-website.com", "semalt.com", "kambanat.com",
	"ranksonic.com", "get-free-traffic", "free-social-buttons",
	"darodar.com", "bestwebsitesawards.com", "buttons-for-your-website",
	"seo-platform.com", "simple-share-buttons",
}

var defaultReferrerPatterns = []string{
	"free-", "get-free", "best-seo", "seo-service", "social-button",
	"share-button",
}

// languageWordlists hold high-frequency words per language for the lexical
// mismatch heuristic. Deliberately tiny: this is a cheap tie-breaker, not a
// language identifier.
var languageWordlists = map[string][]string{
	"de": {"und", "der", "die", "das", "ich", "ist", "nicht", "mit", "für", "auf"},
	"en": {"the", "and", "for", "are", "but", "not", "you", "with", "from", "this"},
	"fr": {"le", "la", "les", "et", "de", "un", "une", "est", "pour", "dans"},
	"es": {"el", "la", "los", "las", "de", "un", "una", "es", "en", "para"},
	"it": {"il", "la", "di", "e", "un", "una", "per", "con", "non", "che"},
}

// Policy carries the caller-injectable lists and thresholds. The zero value
// is not usable; start from DefaultPolicy and override.
type Policy struct {
	MinWords        int // minimum word-like tokens across long-text fields
	TextWarnChars   int
	TextBlockChars  int
	TextWarnWords   int
	TextBlockWords  int
	TextMinChars    int
	SpamKeywords    []string
	BusinessTerms   []string
	DisposableEmail []string
	SpamReferrers   []string
	RefererPatterns []string
	ExcludedFields  []string // field IDs dropped before analysis
}

// DefaultPolicy returns the built-in lists and thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinWords:        5,
		TextWarnChars:   120,
		TextBlockChars:  240,
		TextWarnWords:   12,
		TextBlockWords:  24,
		TextMinChars:    3,
		SpamKeywords:    defaultSpamKeywords,
		BusinessTerms:   defaultBusinessTerms,
		DisposableEmail: defaultDisposableEmailDomains,
		SpamReferrers:   defaultSpamReferrers,
		RefererPatterns: defaultReferrerPatterns,
	}
}
