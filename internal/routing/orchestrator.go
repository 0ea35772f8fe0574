package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default request budgets.
const (
	// DefaultRequestBudget is the soft per-request time target.
	DefaultRequestBudget = 5 * time.Second
	// DefaultHardCap bounds the whole request regardless of progress.
	DefaultHardCap = 10 * time.Second
	// DefaultModeTimeout bounds a single per-mode provider call. A mode
	// that exceeds it is dropped, not retried.
	DefaultModeTimeout = 4 * time.Second
)

// ValidationError reports field-level request validation failures.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "invalid route request: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// OrchestratorConfig holds the orchestrator's collaborators.
type OrchestratorConfig struct {
	// Builder converts provider output into route candidates (required).
	Builder *CandidateBuilder

	// Enricher applies real-time transit overlays (optional).
	Enricher StepEnricher

	// Closures screens candidates against road closures (optional).
	Closures ClosureAvoider

	// Scoring ranks the final candidate set (required).
	Scoring *ScoringEngine

	// Rewards receives the finalized top route, fire-and-forget (optional).
	Rewards RewardDispatcher

	// Logger for orchestration.
	Logger zerolog.Logger

	// RequestBudget, HardCap, and ModeTimeout override the defaults.
	RequestBudget time.Duration
	HardCap       time.Duration
	ModeTimeout   time.Duration
}

// Orchestrator coordinates the routing pipeline per request:
// builder (parallel per mode) → enricher → closure filter → scoring.
// It is stateless between requests.
type Orchestrator struct {
	builder  *CandidateBuilder
	enricher StepEnricher
	closures ClosureAvoider
	scoring  *ScoringEngine
	rewards  RewardDispatcher
	logger   zerolog.Logger

	requestBudget time.Duration
	hardCap       time.Duration
	modeTimeout   time.Duration
}

// NewOrchestrator creates a routing orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	budget := cfg.RequestBudget
	if budget == 0 {
		budget = DefaultRequestBudget
	}
	hardCap := cfg.HardCap
	if hardCap == 0 {
		hardCap = DefaultHardCap
	}
	modeTimeout := cfg.ModeTimeout
	if modeTimeout == 0 {
		modeTimeout = DefaultModeTimeout
	}

	return &Orchestrator{
		builder:       cfg.Builder,
		enricher:      cfg.Enricher,
		closures:      cfg.Closures,
		scoring:       cfg.Scoring,
		rewards:       cfg.Rewards,
		logger:        cfg.Logger,
		requestBudget: budget,
		hardCap:       hardCap,
		modeTimeout:   modeTimeout,
	}
}

// ComputeRoutes runs the full pipeline for one request. Partial data source
// failures never block the response; only total inability to produce any
// route is an error.
func (o *Orchestrator) ComputeRoutes(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if fieldErrs := req.Validate(); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	ctx, cancel := context.WithTimeout(ctx, o.hardCap)
	defer cancel()

	requestID := uuid.New().String()
	logger := o.logger.With().Str("request_id", requestID).Logger()

	sources := newSourceSet()
	var warnings []string

	cond := o.builder.FetchConditions(ctx, req.Origin, req.DepartureTime)
	sources.add(cond.Sources...)

	candidates, modeWarnings := o.buildCandidates(ctx, logger, req, cond)
	warnings = append(warnings, modeWarnings...)
	sources.add(o.builder.ProviderName())

	// Fallback: retry once with only the first requested mode. Never an
	// implicit default mode.
	if len(candidates) == 0 {
		first := req.Modes[0]
		logger.Warn().
			Str("fallback_mode", string(first)).
			Msg("no routes from any mode, retrying first requested mode")

		fallback, err := o.builder.BuildForMode(ctx, req, first, cond)
		if err != nil || len(fallback) == 0 {
			warnings = append(warnings, fmt.Sprintf("fallback via %s failed", first))
			return nil, fmt.Errorf("%w: all requested modes failed (sources: %s)",
				ErrNoRouteFound, strings.Join(sources.list(), ", "))
		}
		candidates = fallback
	}

	if o.enricher != nil {
		for _, route := range candidates {
			sources.add(o.enricher.Enrich(ctx, route)...)
		}
	}

	if o.closures != nil {
		result := o.closures.Avoid(ctx, req.Origin, req.Destination, candidates, o.builder.Detour(ctx, req, cond))
		sources.add(result.DataSources...)
		if len(result.Removed) > 0 {
			logger.Info().
				Int("removed", len(result.Removed)).
				Int("detours", len(result.Detours)).
				Msg("closure avoidance filtered candidates")
			warnings = append(warnings, fmt.Sprintf("%d route(s) removed due to road closures", len(result.Removed)))
		}
		candidates = append(result.Kept, result.Detours...)
		if len(candidates) == 0 {
			// Everything crossed a closure and no detour worked; fall back
			// to the unfiltered set rather than returning nothing.
			candidates = result.Removed
			warnings = append(warnings, "all candidates cross active closures")
		}
	}

	ranked := o.scoring.Rank(candidates, req.Preferences)

	resp := &Response{
		RequestID:      requestID,
		TopRoutes:      ranked.Top,
		Alternatives:   ranked.Alternatives,
		ProcessingTime: time.Since(start),
		DataSources:    sources.list(),
		Warnings:       warnings,
	}

	if elapsed := time.Since(start); elapsed > o.requestBudget {
		logger.Warn().
			Dur("elapsed", elapsed).
			Dur("budget", o.requestBudget).
			Msg("request exceeded soft budget")
	}

	o.dispatchRewards(requestID, req, ranked)

	return resp, nil
}

// buildCandidates fans out one provider call per distinct travel mode.
// Modes mapping to the same provider mode (all transit modes, bike/scooter)
// are requested once; each candidate's steps are classified individually.
func (o *Orchestrator) buildCandidates(ctx context.Context, logger zerolog.Logger, req Request, cond Conditions) ([]*Route, []string) {
	type modeResult struct {
		mode   TransportMode
		routes []*Route
		err    error
	}

	requested := dedupeByTravelMode(req.Modes)
	results := make(chan modeResult, len(requested))

	var wg sync.WaitGroup
	for _, mode := range requested {
		wg.Add(1)
		go func(mode TransportMode) {
			defer wg.Done()

			modeCtx, cancel := context.WithTimeout(ctx, o.modeTimeout)
			defer cancel()

			routes, err := o.builder.BuildForMode(modeCtx, req, mode, cond)
			results <- modeResult{mode: mode, routes: routes, err: err}
		}(mode)
	}

	wg.Wait()
	close(results)

	var candidates []*Route
	var warnings []string
	for res := range results {
		if res.err != nil {
			logger.Warn().Err(res.err).
				Str("mode", string(res.mode)).
				Msg("mode produced no routes")
			warnings = append(warnings, fmt.Sprintf("mode %s unavailable", res.mode))
			continue
		}
		candidates = append(candidates, res.routes...)
	}

	// Channel drain order is nondeterministic; restore a stable order
	// before scoring so identical requests rank identically.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].TotalDurationSeconds != candidates[j].TotalDurationSeconds {
			return candidates[i].TotalDurationSeconds < candidates[j].TotalDurationSeconds
		}
		return candidates[i].TotalDistanceMeters < candidates[j].TotalDistanceMeters
	})

	return candidates, warnings
}

// dedupeByTravelMode keeps the first requested mode per provider travel
// mode, preserving request order.
func dedupeByTravelMode(modes []TransportMode) []TransportMode {
	seen := make(map[TravelMode]struct{}, len(modes))
	var out []TransportMode
	for _, m := range modes {
		tm := travelModeFor(m)
		if _, ok := seen[tm]; ok {
			continue
		}
		seen[tm] = struct{}{}
		out = append(out, m)
	}
	return out
}

// dispatchRewards hands the primary top route to the reward dispatcher.
// The dispatcher is fire-and-forget; its failure never affects the response.
func (o *Orchestrator) dispatchRewards(requestID string, req Request, ranked RankResult) {
	if o.rewards == nil || len(req.Preferences) == 0 {
		return
	}
	top, ok := ranked.Top[req.Preferences[0]]
	if !ok {
		return
	}

	// Detached context: the reward pipeline outlives the request.
	dispatchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		defer cancel()
		o.rewards.Dispatch(dispatchCtx, requestID, top)
	}()
}

// sourceSet is a small ordered set of consulted data source names.
type sourceSet struct {
	seen  map[string]struct{}
	order []string
}

func newSourceSet() *sourceSet {
	return &sourceSet{seen: make(map[string]struct{})}
}

func (s *sourceSet) add(names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := s.seen[n]; ok {
			continue
		}
		s.seen[n] = struct{}{}
		s.order = append(s.order, n)
	}
}

func (s *sourceSet) list() []string {
	return s.order
}
