package routing

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// DefaultEntropySwitchThreshold is the cached-entropy level above
	// which an active route is considered unstable and always replaced.
	DefaultEntropySwitchThreshold = 0.4

	// DefaultSwitchProbabilityDelta is the minimum selection-probability
	// improvement a new candidate needs over the active route before a
	// switch is triggered on probability alone.
	DefaultSwitchProbabilityDelta = 0.15

	// DefaultEntropyImprovementDelta is the minimum entropy reduction a
	// new candidate needs over the active route before a switch is
	// triggered on stability alone.
	DefaultEntropyImprovementDelta = 0.1

	// DefaultBandwidthBonus is the fixed weight of the bottleneck
	// bandwidth bonus term. It sits outside the user priorities so a
	// fat pipe always counts for something.
	DefaultBandwidthBonus = 0.1

	// maxRawScore bounds the final candidate score.
	maxRawScore = 10.0
)

// Trust tiers for the anonymity sub-score. A path only earns full anonymity
// credit when every node on it is highly trusted; paths through marginal
// nodes are progressively discounted.
const (
	trustTierFull = 0.8
	trustTierGood = 0.5
	trustTierLow  = 0.2

	tierFullMultiplier = 1.0
	tierGoodMultiplier = 0.75
	tierLowMultiplier  = 0.5
	tierQuarantineMult = 0.1
)

// Priorities are the user's relative preference weights over the four
// routing objectives. They need not sum to one; the router normalizes them
// before scoring.
type Priorities struct {
	Latency     float64
	Anonymity   float64
	Cost        float64
	Reliability float64
}

// SpeedFirst favors low latency above all else.
func SpeedFirst() Priorities {
	return Priorities{Latency: 0.7, Anonymity: 0.1, Cost: 0.1,
		Reliability: 0.1}
}

// AnonymityFirst favors long, highly trusted paths.
func AnonymityFirst() Priorities {
	return Priorities{Latency: 0.1, Anonymity: 0.7, Cost: 0.1,
		Reliability: 0.1}
}

// Balanced weighs latency and reliability slightly above the rest.
func Balanced() Priorities {
	return Priorities{Latency: 0.3, Anonymity: 0.2, Cost: 0.2,
		Reliability: 0.3}
}

// Normalize scales the weights to sum to one. All-zero priorities are
// returned unchanged.
func (p Priorities) Normalize() Priorities {
	total := p.Latency + p.Anonymity + p.Cost + p.Reliability
	if total <= 0 {
		return p
	}

	return Priorities{
		Latency:     p.Latency / total,
		Anonymity:   p.Anonymity / total,
		Cost:        p.Cost / total,
		Reliability: p.Reliability / total,
	}
}

// Decision is the outcome of one routing query. A decision with no chosen
// route is a valid terminal outcome meaning the destination is unreachable,
// not an error.
type Decision struct {
	// Destination is the node the query was for.
	Destination string

	// Chosen is the selected candidate, if any candidate existed.
	Chosen fn.Option[RouteCandidate]

	// Candidates holds every scored candidate, sorted by selection
	// probability descending.
	Candidates []RouteCandidate

	// Reason is a human-readable rationale for the decision.
	Reason string

	// ShouldSwitch reports whether the caller should replace the
	// currently active route for this destination.
	ShouldSwitch bool

	// ChosenEntropy is the entropy of the chosen candidate, or +Inf when
	// no route was found. It is compared against the next decision for
	// this destination.
	ChosenEntropy float64

	// DecidedAt is when the decision was made.
	DecidedAt time.Time
}

// Stats is a point-in-time summary of the router's cached state.
type Stats struct {
	// CachedRoutes is the number of destinations with a cached decision.
	CachedRoutes int

	// UnstableRoutes is the number of cached routes whose entropy
	// exceeds the switch threshold.
	UnstableRoutes int

	// AvgEntropy is the mean entropy across all cached routes.
	AvgEntropy float64
}

// Config houses the tunable parameters of the Router. Zero values are
// replaced with the package defaults.
type Config struct {
	// EntropySwitchThreshold overrides DefaultEntropySwitchThreshold.
	EntropySwitchThreshold float64

	// SwitchProbabilityDelta overrides DefaultSwitchProbabilityDelta.
	SwitchProbabilityDelta float64

	// EntropyImprovementDelta overrides DefaultEntropyImprovementDelta.
	EntropyImprovementDelta float64

	// BandwidthBonus overrides DefaultBandwidthBonus.
	BandwidthBonus float64

	// Clock is the time source used to stamp decisions.
	Clock clock.Clock
}

func (c *Config) fillDefaults() {
	if c.EntropySwitchThreshold == 0 {
		c.EntropySwitchThreshold = DefaultEntropySwitchThreshold
	}
	if c.SwitchProbabilityDelta == 0 {
		c.SwitchProbabilityDelta = DefaultSwitchProbabilityDelta
	}
	if c.EntropyImprovementDelta == 0 {
		c.EntropyImprovementDelta = DefaultEntropyImprovementDelta
	}
	if c.BandwidthBonus == 0 {
		c.BandwidthBonus = DefaultBandwidthBonus
	}
	if c.Clock == nil {
		c.Clock = clock.NewDefaultClock()
	}
}

// Router scores route candidates against user priorities and decides, with
// switch hysteresis, which path should carry traffic to each destination.
// All methods are safe for concurrent use.
type Router struct {
	cfg Config

	mtx sync.Mutex

	// cache holds the last decision per destination so the next query
	// can be compared against the currently active route.
	cache map[string]Decision
}

// NewRouter creates a Router with the given configuration.
func NewRouter(cfg Config) *Router {
	cfg.fillDefaults()

	return &Router{
		cfg:   cfg,
		cache: make(map[string]Decision),
	}
}

// scoringContext holds the per-candidate-set maxima the sub-scores are
// normalized against.
type scoringContext struct {
	maxLatencyMs     float64
	maxBandwidthMbps float64
	maxCost          float64
	maxHops          float64
}

func newScoringContext(candidates []RouteCandidate) scoringContext {
	ctx := scoringContext{
		maxLatencyMs:     1,
		maxBandwidthMbps: 1,
		maxCost:          1,
		maxHops:          1,
	}
	for _, c := range candidates {
		ctx.maxLatencyMs = math.Max(ctx.maxLatencyMs, c.TotalLatencyMs)
		ctx.maxBandwidthMbps = math.Max(
			ctx.maxBandwidthMbps, c.BottleneckBandwidthMbps,
		)
		ctx.maxCost = math.Max(ctx.maxCost, c.TotalCost)
		ctx.maxHops = math.Max(ctx.maxHops, float64(c.Hops()))
	}

	return ctx
}

// trustTierMultiplier maps the minimum trust along a path to the anonymity
// discount for that path.
func trustTierMultiplier(minTrust float64) float64 {
	switch {
	case minTrust >= trustTierFull:
		return tierFullMultiplier
	case minTrust >= trustTierGood:
		return tierGoodMultiplier
	case minTrust >= trustTierLow:
		return tierLowMultiplier
	default:
		return tierQuarantineMult
	}
}

// scoreCandidate computes the raw score of a single candidate. Each
// sub-score lives in [0, 1]; the weighted sum is then dampened by the path's
// minimum trust so an untrusted path can never out-score a trusted one on
// raw metrics alone, and bounded into [0, maxRawScore].
func (r *Router) scoreCandidate(c *RouteCandidate, p Priorities,
	ctx scoringContext) float64 {

	latencyScore := 1 - math.Min(c.TotalLatencyMs/ctx.maxLatencyMs, 1)
	bandwidthScore := math.Min(
		c.BottleneckBandwidthMbps/ctx.maxBandwidthMbps, 1,
	)
	reliabilityScore := c.StabilityScore
	costScore := 1 - math.Min(c.TotalCost/ctx.maxCost, 1)

	// Longer paths hide the endpoints better, but only when every hop is
	// trustworthy.
	anonymityScore := float64(c.Hops()) / ctx.maxHops *
		trustTierMultiplier(c.MinTrust)

	base := p.Latency*latencyScore +
		p.Anonymity*anonymityScore +
		p.Cost*costScore +
		p.Reliability*reliabilityScore +
		r.cfg.BandwidthBonus*bandwidthScore

	raw := base * (0.6 + 0.4*c.MinTrust)

	return math.Max(0, math.Min(raw, maxRawScore))
}

// softmax converts raw scores into a probability distribution. The max score
// is subtracted before exponentiating so large scores cannot overflow; a
// degenerate zero total mass falls back to the uniform distribution.
func softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}

	probs := make([]float64, len(scores))
	var total float64
	for i, s := range scores {
		probs[i] = math.Exp(s - maxScore)
		total += probs[i]
	}

	if total == 0 {
		uniform := 1 / float64(len(scores))
		for i := range probs {
			probs[i] = uniform
		}
		return probs
	}

	for i := range probs {
		probs[i] /= total
	}

	return probs
}

// SelectRoute scores the given candidates against the priorities and returns
// a routing decision for the destination. The decision is cached so the next
// query for the same destination can apply switch hysteresis against it.
func (r *Router) SelectRoute(destination string,
	candidates []RouteCandidate, priorities Priorities) Decision {

	now := r.cfg.Clock.Now()

	if len(candidates) == 0 {
		log.Debugf("No route candidates for %v", destination)

		return Decision{
			Destination:   destination,
			Chosen:        fn.None[RouteCandidate](),
			Reason:        "no routes available",
			ChosenEntropy: math.Inf(1),
			DecidedAt:     now,
		}
	}

	priorities = priorities.Normalize()
	ctx := newScoringContext(candidates)

	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = r.scoreCandidate(&candidates[i], priorities, ctx)
	}
	probs := softmax(scores)
	for i := range candidates {
		candidates[i].RawScore = scores[i]
		candidates[i].Probability = probs[i]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Probability > candidates[j].Probability
	})

	best := candidates[0]

	r.mtx.Lock()
	defer r.mtx.Unlock()

	shouldSwitch, switchReason := r.checkShouldSwitch(destination, best)

	reason := fmt.Sprintf("route %v selected (p=%.3f, latency=%.1fms, "+
		"entropy=%.4f, stability=%.3f): %s", best.Path,
		best.Probability, best.TotalLatencyMs, best.Entropy,
		best.StabilityScore, switchReason)

	log.Debugf("Routing decision for %v: %s", destination, reason)

	decision := Decision{
		Destination:   destination,
		Chosen:        fn.Some(best),
		Candidates:    candidates,
		Reason:        reason,
		ShouldSwitch:  shouldSwitch,
		ChosenEntropy: best.Entropy,
		DecidedAt:     now,
	}

	r.cache[destination] = decision

	return decision
}

// checkShouldSwitch applies the hysteresis policy: replace the active route
// only when it has become unstable, or when the new best candidate beats it
// by more than the probability delta, or when the new best candidate is more
// stable by more than the improvement delta. This must be called with the
// router mutex held.
func (r *Router) checkShouldSwitch(destination string,
	best RouteCandidate) (bool, string) {

	cached, ok := r.cache[destination]
	if !ok {
		return false, "first route for destination"
	}

	if cached.Chosen.IsNone() {
		return false, "no previously active route"
	}
	active := cached.Chosen.UnsafeFromSome()

	if cached.ChosenEntropy > r.cfg.EntropySwitchThreshold {
		log.Warnf("Active route to %v unstable: entropy=%.4f "+
			"exceeds threshold %.2f", destination,
			cached.ChosenEntropy, r.cfg.EntropySwitchThreshold)

		return true, fmt.Sprintf("switching, active route entropy "+
			"%.4f above threshold", cached.ChosenEntropy)
	}

	if samePath(active.Path, best.Path) {
		return false, "keeping active route"
	}

	probDelta := best.Probability - active.Probability
	if probDelta > r.cfg.SwitchProbabilityDelta {
		log.Infof("Better route to %v found: probability delta %.3f",
			destination, probDelta)

		return true, fmt.Sprintf("switching, probability improved "+
			"by %.3f", probDelta)
	}

	entropyDelta := cached.ChosenEntropy - best.Entropy
	if entropyDelta > r.cfg.EntropyImprovementDelta {
		log.Infof("More stable route to %v found: entropy delta %.4f",
			destination, entropyDelta)

		return true, fmt.Sprintf("switching, entropy improved "+
			"by %.4f", entropyDelta)
	}

	return false, "keeping active route, improvement below thresholds"
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ActiveRoute returns the cached decision for a destination, if any.
func (r *Router) ActiveRoute(destination string) fn.Option[Decision] {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	decision, ok := r.cache[destination]
	if !ok {
		return fn.None[Decision]()
	}

	return fn.Some(decision)
}

// AuditActiveRoutes returns the destinations whose cached route entropy
// currently exceeds the switch threshold.
func (r *Router) AuditActiveRoutes() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var unstable []string
	for destination, decision := range r.cache {
		if decision.Chosen.IsNone() {
			continue
		}
		if decision.ChosenEntropy > r.cfg.EntropySwitchThreshold {
			unstable = append(unstable, destination)
		}
	}
	sort.Strings(unstable)

	return unstable
}

// Stats summarizes the router's cached state.
func (r *Router) Stats() Stats {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var stats Stats
	var totalEntropy float64
	for _, decision := range r.cache {
		if decision.Chosen.IsNone() {
			continue
		}

		stats.CachedRoutes++
		totalEntropy += decision.ChosenEntropy
		if decision.ChosenEntropy > r.cfg.EntropySwitchThreshold {
			stats.UnstableRoutes++
		}
	}
	if stats.CachedRoutes > 0 {
		stats.AvgEntropy = totalEntropy / float64(stats.CachedRoutes)
	}

	return stats
}
