package detect

import (
	"strings"
	"testing"

	"github.com/formward/formward/pkg/model"
)

func message(text string) *model.Submission {
	return model.NewSubmission([]model.Field{
		{ID: "message", Kind: model.KindLongText, Value: text},
	})
}

func resultFor(t *testing.T, results []model.DetectorResult, check string) *model.DetectorResult {
	t.Helper()
	for i := range results {
		if results[i].Check == check {
			return &results[i]
		}
	}
	return nil
}

func TestMinWords(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	tests := []struct {
		name     string
		text     string
		detected bool
	}{
		{"gibberish", "asdf qw", true},
		{"empty submission", "", true},
		{"four words", "this is too short", true},
		{"five words", "hello there how are you", false},
		{"normal message", "I would like a quote for two units please", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resultFor(t, d.Analyze(message(tt.text)), "min_words")
			if tt.detected {
				if r == nil {
					t.Fatal("min_words should fire")
				}
				if r.Score != 80 {
					t.Errorf("score = %v, want 80", r.Score)
				}
			} else if r != nil {
				t.Errorf("min_words fired on %q: %v", tt.text, r.Reason)
			}
		})
	}
}

func TestMinWordsIgnoresOtherFieldContent(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())
	sub := model.NewSubmission([]model.Field{
		{ID: "email", Kind: model.KindEmail, Value: "a@example.com"},
		{ID: "message", Kind: model.KindLongText, Value: "xx yy"},
	})
	r := resultFor(t, d.Analyze(sub), "min_words")
	if r == nil || r.Score != 80 {
		t.Fatalf("min_words should score 80 regardless of other fields, got %+v", r)
	}
}

func TestContactInfoInShortText(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	tests := []struct {
		name  string
		value string
		check string
	}{
		{"url", "visit https://spam.example now", "url_in_text"},
		{"email", "write me at joe@spam.example please", "email_in_text"},
		{"phone", "call +1 555 123 4567 today", "phone_in_text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := model.NewSubmission([]model.Field{
				{ID: "subject", Kind: model.KindShortText, Value: tt.value},
				{ID: "message", Kind: model.KindLongText, Value: "a perfectly ordinary question about your opening hours"},
			})
			r := resultFor(t, d.Analyze(sub), tt.check)
			if r == nil {
				t.Fatalf("%s should fire on %q", tt.check, tt.value)
			}
			if !r.SoftWarning {
				t.Errorf("%s should be a soft warning", tt.check)
			}
			if r.Score != 40 {
				t.Errorf("score = %v, want 40", r.Score)
			}
		})
	}
}

func TestLinkDensity(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	tests := []struct {
		name      string
		text      string
		wantScore float64
		wantSoft  bool
	}{
		{"one link", "please have a look at example.com for more details thanks", 20, true},
		{"two links", "see foo.example.com and also bar.example.com for details today", 30, false},
		{"four links", "a.example.com b.example.com c.example.com d.example.com plus some words here", 50, false},
		{"many links capped", strings.Repeat("spam.example.com ", 10) + "buy from all of these now", 60, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resultFor(t, d.Analyze(message(tt.text)), "link_density")
			if r == nil {
				t.Fatal("link_density should fire")
			}
			if r.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", r.Score, tt.wantScore)
			}
			if r.SoftWarning != tt.wantSoft {
				t.Errorf("soft_warning = %v, want %v", r.SoftWarning, tt.wantSoft)
			}
		})
	}
}

func TestSingleLinkCleanMessageIsSoftOnly(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())
	results := d.Analyze(message("Hello, I'd like a quote for your services, thanks! See example.com"))

	link := resultFor(t, results, "link_density")
	if link == nil || !link.SoftWarning || link.Score != 20 {
		t.Fatalf("expected soft single-link result, got %+v", link)
	}
	for _, r := range results {
		if r.Score >= 30 {
			t.Errorf("check %s scored %v, nothing should reach 30 here", r.Check, r.Score)
		}
	}
}

func TestKeywords(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	r := resultFor(t, d.Analyze(message("buy now our cheap viagra pharmacy with great discount deals")), "keywords")
	if r == nil {
		t.Fatal("keywords should fire")
	}
	if r.Score != 50 {
		t.Errorf("five keyword hits should cap at 50, got %v", r.Score)
	}

	r = resultFor(t, d.Analyze(message("there is a single discount mentioned in this long enough message")), "keywords")
	if r == nil || r.Score != 15 {
		t.Fatalf("one keyword should score 15, got %+v", r)
	}
}

func TestExcessiveCaps(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	if r := resultFor(t, d.Analyze(message("CHECK OUT THIS AMAZING OFFER RIGHT NOW friends")), "excessive_caps"); r == nil || r.Score != 20 {
		t.Fatalf("mostly-caps text should score 20, got %+v", r)
	}
	if r := resultFor(t, d.Analyze(message("A normal sentence with Ordinary Capitalization in it")), "excessive_caps"); r != nil {
		t.Errorf("normal text should not fire, got %+v", r)
	}
	// Short shouting is ignored, the ratio is meaningless on tiny input.
	if r := resultFor(t, d.Analyze(message("HI THERE")), "excessive_caps"); r != nil {
		t.Errorf("short text should not fire, got %+v", r)
	}
}

func TestCharRepetition(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	if r := resultFor(t, d.Analyze(message("this is soooooooo great you would not believe it")), "char_repetition"); r == nil || r.Score != 25 {
		t.Fatalf("character flood should score 25, got %+v", r)
	}
	if r := resultFor(t, d.Analyze(message("a normal message with bookkeeper and coffee in it today")), "char_repetition"); r != nil {
		t.Errorf("double letters should not fire, got %+v", r)
	}
	// Punctuation runs belong to the structure check, not this one.
	if r := resultFor(t, d.Analyze(message("wait for it......... here is my completely normal question")), "char_repetition"); r != nil {
		t.Errorf("punctuation run should not fire char_repetition, got %+v", r)
	}
}

func TestWordDensity(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	text := "casino casino casino casino also some other words here today friends"
	if r := resultFor(t, d.Analyze(message(text)), "word_density"); r == nil || r.Score != 15 {
		t.Fatalf("repeated word should score 15, got %+v", r)
	}
}

func TestStructure(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	tests := []struct {
		name string
		text string
	}{
		{"script tag", "hello <script>alert(1)</script> this message has enough words"},
		{"bbcode", "[url=http://spam.example]click[/url] plus several more ordinary words here"},
		{"digit run", "reference 12345678901234 and some more words to pass the minimum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resultFor(t, d.Analyze(message(tt.text)), "structure")
			if r == nil || r.Score != 25 {
				t.Fatalf("structure should score 25, got %+v", r)
			}
		})
	}
}

func TestAllCapsSentenceAndExclamations(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	r := resultFor(t, d.Analyze(message("Greetings. BUY FROM OUR STORE TODAY. more ordinary words follow here")), "all_caps_sentence")
	if r == nil || r.Score != 25 {
		t.Fatalf("all-caps sentence should score 25, got %+v", r)
	}

	r = resultFor(t, d.Analyze(message("this is absolutely incredible you have to see it!!!!!")), "exclamations")
	if r == nil || r.Score != 15 {
		t.Fatalf("exclamation run should score 15, got %+v", r)
	}
}

func TestEmailFields(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	tests := []struct {
		name      string
		email     string
		wantScore float64
	}{
		{"valid", "jamie@example.com", 0},
		{"invalid format", "not-an-email", 40},
		{"url in email field", "https://spam.example", 40},
		{"disposable domain", "x@mailinator.com", 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := model.NewSubmission([]model.Field{
				{ID: "email", Kind: model.KindEmail, Value: tt.email},
				{ID: "message", Kind: model.KindLongText, Value: "a perfectly ordinary question about your opening hours"},
			})
			r := resultFor(t, d.Analyze(sub), "email_field")
			if tt.wantScore == 0 {
				if r != nil {
					t.Fatalf("email_field should not fire, got %+v", r)
				}
				return
			}
			if r == nil || r.Score != tt.wantScore {
				t.Fatalf("score = %+v, want %v", r, tt.wantScore)
			}
		})
	}
}

func TestURLFields(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	tests := []struct {
		name      string
		url       string
		wantScore float64
		wantSoft  bool
	}{
		{"clean", "https://example.com/about", 0, false},
		{"query params", "https://example.com/?ref=spam", 80, false},
		{"shortener", "https://bit.ly/3xyzzy", 60, false},
		{"suspicious tld", "https://win-prizes.xyz", 50, false},
		{"ip host", "http://203.0.113.9/offer", 60, false},
		{"not a url", "just some words", 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := model.NewSubmission([]model.Field{
				{ID: "website", Kind: model.KindURL, Value: tt.url},
				{ID: "message", Kind: model.KindLongText, Value: "a perfectly ordinary question about your opening hours"},
			})
			r := resultFor(t, d.Analyze(sub), "url_field")
			if tt.wantScore == 0 {
				if r != nil {
					t.Fatalf("url_field should not fire, got %+v", r)
				}
				return
			}
			if r == nil {
				t.Fatal("url_field should fire")
			}
			if r.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", r.Score, tt.wantScore)
			}
			if r.SoftWarning != tt.wantSoft {
				t.Errorf("soft_warning = %v, want %v", r.SoftWarning, tt.wantSoft)
			}
		})
	}
}

func TestTextLengthBounds(t *testing.T) {
	d := NewPatternDetector(DefaultPolicy())

	long := strings.Repeat("word ", 15) // 15 words, past warn (12), under block (24)
	sub := model.NewSubmission([]model.Field{
		{ID: "subject", Kind: model.KindShortText, Value: long},
		{ID: "message", Kind: model.KindLongText, Value: "a perfectly ordinary question about your opening hours"},
	})
	r := resultFor(t, d.Analyze(sub), "text_length")
	if r == nil || r.Score != 20 || !r.SoftWarning {
		t.Fatalf("warn-level length should be soft 20, got %+v", r)
	}

	veryLong := strings.Repeat("word ", 30)
	sub = model.NewSubmission([]model.Field{
		{ID: "subject", Kind: model.KindShortText, Value: veryLong},
		{ID: "message", Kind: model.KindLongText, Value: "a perfectly ordinary question about your opening hours"},
	})
	r = resultFor(t, d.Analyze(sub), "text_length")
	if r == nil || r.Score != 40 || r.SoftWarning {
		t.Fatalf("block-level length should be hard 40, got %+v", r)
	}
}

func TestExcludedFieldsPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.ExcludedFields = []string{"tracking_ref"}
	d := NewPatternDetector(policy)

	sub := model.NewSubmission([]model.Field{
		{ID: "tracking_ref", Kind: model.KindShortText, Value: "https://tracker.example/c?id=1"},
		{ID: "message", Kind: model.KindLongText, Value: "a perfectly ordinary question about your opening hours"},
	})
	if r := resultFor(t, d.Analyze(sub), "url_in_text"); r != nil {
		t.Errorf("excluded field should not be analyzed, got %+v", r)
	}
}
