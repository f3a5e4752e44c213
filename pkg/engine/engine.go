// Package engine orchestrates the detectors into a single spam verdict per
// submission: cheap local checks first, the external moderation call only
// when those are inconclusive, then max-aggregation, the soft-warning
// classification and the strike transition.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formward/formward/pkg/config"
	"github.com/formward/formward/pkg/detect"
	"github.com/formward/formward/pkg/model"
	"github.com/formward/formward/pkg/moderation"
	"github.com/formward/formward/pkg/store"
)

// hardSpamFloor is the raw score at or above which a check disqualifies
// the evidence bundle from soft-warning-only treatment.
const hardSpamFloor = 30

// Moderator is the slice of the moderation client the engine needs.
type Moderator interface {
	Classify(ctx context.Context, sub *model.Submission, submitterKey string) (model.ModerationSignal, error)
}

// Engine evaluates submissions. It holds no per-submission state; the only
// shared mutable resources are the strike counter and the log store, both
// injected.
type Engine struct {
	cfg      *config.Config
	pattern  *detect.PatternDetector
	behavior *detect.BehaviorDetector
	dup      *detect.DuplicateDetector
	mod      Moderator
	strikes  store.Counter
	logs     store.LogStore
	logger   *slog.Logger
}

// Deps carries the engine's injected collaborators. Mod may be nil when
// moderation is disabled or unconfigured.
type Deps struct {
	Pattern  *detect.PatternDetector
	Behavior *detect.BehaviorDetector
	Dup      *detect.DuplicateDetector
	Mod      Moderator
	Strikes  store.Counter
	Logs     store.LogStore
	Logger   *slog.Logger
}

func New(cfg *config.Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		pattern:  deps.Pattern,
		behavior: deps.Behavior,
		dup:      deps.Dup,
		mod:      deps.Mod,
		strikes:  deps.Strikes,
		logs:     deps.Logs,
		logger:   logger,
	}
}

func strikeKey(formID, submitterKey string) string {
	return "strikes:" + formID + ":" + submitterKey
}

// Evaluate produces the verdict for one submission. It never returns an
// error: when every signal is inconclusive or broken the verdict defaults
// to allow. Availability beats precision here; a dead moderation
// integration must not block legitimate traffic.
func (e *Engine) Evaluate(ctx context.Context, sub *model.Submission, amb model.AmbientContext, formID, submitterKey string) model.Verdict {
	verdict := model.Verdict{
		ID:     uuid.NewString(),
		Action: model.ActionAllow,
		Evidence: model.AggregateResult{
			Signals: map[string][]model.DetectorResult{},
		},
	}
	if !e.cfg.Enabled {
		return verdict
	}

	agg := &verdict.Evidence

	// Cheap local detectors first.
	if e.cfg.PatternCheckEnabled && e.pattern != nil {
		if results := e.pattern.Analyze(sub); len(results) > 0 {
			agg.Signals[e.pattern.Name()] = results
		}
	}
	if e.behavior != nil {
		results := e.filterBehavior(e.behavior.Analyze(sub, amb))
		if len(results) > 0 {
			agg.Signals[e.behavior.Name()] = results
		}
	}
	if e.cfg.DuplicateCheckEnabled && e.dup != nil {
		r, err := e.dup.Check(ctx, sub, formID, submitterKey)
		if err != nil {
			e.logger.Warn("duplicate check failed", "form_id", formID, "error", err)
		} else if r.Detected {
			agg.DuplicateHit = true
			agg.Signals["duplicate"] = []model.DetectorResult{r}
		}
	}

	preliminary := e.maxNormalized(agg.Signals)
	if agg.DuplicateHit {
		// An identical resubmission is maximal evidence on its own.
		preliminary = 1.0
	}

	final := preliminary
	if e.cfg.ModerationEnabled && e.mod != nil && preliminary < e.cfg.AIThreshold {
		sig, err := e.mod.Classify(ctx, sub, submitterKey)
		var cfgErr *moderation.ConfigError
		switch {
		case err == nil:
			// ok
		case errors.As(err, &cfgErr):
			e.logger.Debug("moderation skipped", "reason", err)
		default:
			e.logger.Warn("moderation degraded", "form_id", formID, "error", err)
		}
		agg.Moderation = sig
		agg.ModerationInvoked = sig.Invoked
		if sig.Invoked {
			final = max(final, sig.Score)
		}
	}

	agg.NormalizedScore = final
	verdict.Score = final
	verdict.IsSpam = final >= e.cfg.AIThreshold

	softOnly := e.softWarningOnly(agg)

	strikes := e.currentStrikes(ctx, formID, submitterKey)
	verdict.Strikes = strikes

	switch {
	case softOnly && strikes == 0:
		verdict.Action = model.ActionSoftWarning
		if n, err := e.strikes.IncrementWithTTL(ctx, strikeKey(formID, submitterKey), e.cfg.StrikeTTL); err != nil {
			e.logger.Warn("strike write failed", "form_id", formID, "error", err)
		} else {
			verdict.Strikes = n
		}
	case softOnly:
		// Repeat offense inside the strike window loses the benefit of
		// the doubt.
		verdict.Action = model.ActionBlock
	case verdict.IsSpam:
		verdict.Action = model.ActionBlock
	default:
		verdict.Action = model.ActionAllow
	}

	if verdict.Action != model.ActionAllow {
		e.logVerdict(ctx, sub, formID, submitterKey, verdict)
	}
	return verdict
}

// filterBehavior drops results for behavior checks the configuration has
// switched off.
func (e *Engine) filterBehavior(results []model.DetectorResult) []model.DetectorResult {
	kept := results[:0]
	for _, r := range results {
		if r.Check == "submission_time" && !e.cfg.TimeCheckEnabled {
			continue
		}
		if r.Check == "language" && !e.cfg.LanguageCheckEnabled {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// maxNormalized takes the maximum raw check score across all detectors and
// normalizes it to [0,1]. Scores never add up: a pile of weak correlated
// signals must not outrank one high-confidence check.
func (e *Engine) maxNormalized(signals map[string][]model.DetectorResult) float64 {
	var raw float64
	for _, results := range signals {
		for _, r := range results {
			raw = max(raw, r.Score)
		}
	}
	return min(raw/100, 1)
}

// softWarningOnly reports whether the evidence qualifies for the
// correctable soft-warning path: at least one triggered soft-warning
// check, nothing at or above the hard-spam floor, and the moderation
// signal, when invoked, neither flagged spam nor crossed the threshold.
// Moderation takes priority: an AI-confirmed spam signal always escalates
// to a hard block no matter what the local checks flagged.
func (e *Engine) softWarningOnly(agg *model.AggregateResult) bool {
	anySoft := false
	for _, results := range agg.Signals {
		for _, r := range results {
			if r.Score >= hardSpamFloor {
				return false
			}
			if r.SoftWarning {
				anySoft = true
			}
		}
	}
	if !anySoft {
		return false
	}
	if agg.ModerationInvoked {
		if agg.Moderation.IsSpam || agg.Moderation.Score >= e.cfg.AIThreshold {
			return false
		}
	}
	return true
}

func (e *Engine) currentStrikes(ctx context.Context, formID, submitterKey string) int {
	if e.strikes == nil {
		return 0
	}
	n, err := e.strikes.Get(ctx, strikeKey(formID, submitterKey))
	if err != nil {
		e.logger.Warn("strike read failed", "form_id", formID, "error", err)
		return 0
	}
	return n
}

// ClearStrikes handles the caller's "successful correction" event: a
// submitter with strikes who later submits clean content is forgiven.
func (e *Engine) ClearStrikes(ctx context.Context, formID, submitterKey string) error {
	if e.strikes == nil {
		return nil
	}
	if err := e.strikes.Clear(ctx, strikeKey(formID, submitterKey)); err != nil {
		return err
	}
	if e.logs != nil {
		_, err := e.logs.Insert(ctx, store.LogEntry{
			FormID:       formID,
			SubmitterKey: submitterKey,
			Action:       "corrected",
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			e.logger.Warn("correction log write failed", "form_id", formID, "error", err)
		}
	}
	return nil
}

// logVerdict records the non-allow outcome. A lost log write is non-fatal
// to the evaluation.
func (e *Engine) logVerdict(ctx context.Context, sub *model.Submission, formID, submitterKey string, v model.Verdict) {
	if e.logs == nil {
		return
	}

	action := string(v.Action)
	if v.Action == model.ActionBlock {
		if e.cfg.BlockAction == config.ActionReject {
			action = "rejected"
		} else {
			action = "marked"
		}
	}

	details, err := json.Marshal(v.Evidence)
	if err != nil {
		details = []byte("{}")
	}
	if _, err := e.logs.Insert(ctx, store.LogEntry{
		ID:           v.ID,
		FormID:       formID,
		SubmitterKey: submitterKey,
		PayloadHash:  sub.PayloadHash(),
		Score:        v.Score,
		Method:       methodNames(v.Evidence),
		Details:      string(details),
		Action:       action,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		e.logger.Warn("spam log write failed", "form_id", formID, "error", err)
	}

	e.logger.Info("submission flagged",
		"form_id", formID,
		"action", v.Action,
		"score", v.Score,
		"strikes", v.Strikes,
		"methods", methodNames(v.Evidence),
	)
}

// methodNames joins the detector names that contributed evidence, in
// stable order.
func methodNames(agg model.AggregateResult) string {
	names := make([]string, 0, len(agg.Signals)+1)
	for name := range agg.Signals {
		names = append(names, name)
	}
	if agg.ModerationInvoked && !agg.Moderation.Error {
		names = append(names, "moderation")
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
