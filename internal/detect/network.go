package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Network thresholds.
const (
	maxProviderClaims    = 10
	maxProviderClaimants = 5
	maxClaimantClaims    = 3
	maxClaimantProviders = 3
	ringMinGraphNodes    = 10
	ringMinSize          = 5
	ringMinDensity       = 0.3
	rapidClaimDays       = 7
)

var knownFraudProviders = []string{"quick fix garage", "questionable clinic", "fake provider"}

// networkSnapshot is an immutable view of one tenant's recent claims.
type networkSnapshot struct {
	graph       *graph.Graph
	communities [][]string
	submitted   map[string]time.Time // claim id -> submission time
	builtAt     time.Time
}

// NetworkAnalyzer looks for suspicious relationships between claimants,
// providers and shared contact details across a tenant's recent claims.
// Each tenant's graph is rebuilt at most once per refresh interval by a
// single writer; scoring only reads the current snapshot.
type NetworkAnalyzer struct {
	source domain.ClaimSource
	cfg    domain.NetworkConfig
	now    func() time.Time

	refreshMu sync.Mutex
	mu        sync.RWMutex
	snapshots map[string]*networkSnapshot
}

// NewNetworkAnalyzer creates a network analyzer backed by source.
func NewNetworkAnalyzer(source domain.ClaimSource, cfg domain.NetworkConfig) *NetworkAnalyzer {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 90 * 24 * time.Hour
	}
	if cfg.MaxClaims <= 0 {
		cfg.MaxClaims = 1000
	}
	return &NetworkAnalyzer{
		source:    source,
		cfg:       cfg,
		now:       time.Now,
		snapshots: make(map[string]*networkSnapshot),
	}
}

// Name implements Detector.
func (n *NetworkAnalyzer) Name() string { return domain.DetectorNetwork }

// Detect implements Detector. A failed refresh yields an empty result.
func (n *NetworkAnalyzer) Detect(ctx context.Context, claim domain.Claim) (domain.DetectorResult, error) {
	snap, err := n.snapshot(ctx, claim.TenantID)
	if err != nil {
		slog.Warn("network graph refresh failed",
			"tenant_id", claim.TenantID,
			"claim_id", claim.ID,
			"error", err,
		)
		return domain.DetectorResult{Detector: n.Name()}, nil
	}

	var indicators []domain.Indicator
	indicators = append(indicators, n.providerChecks(snap, claim)...)
	indicators = append(indicators, n.claimantChecks(snap, claim)...)
	indicators = append(indicators, ringChecks(snap, claim)...)
	if ind, ok := rapidClaims(snap, claim); ok {
		indicators = append(indicators, ind)
	}

	var score float64
	for _, ind := range indicators {
		score += ind.ScoreImpact
	}
	return result(n.Name(), score, CapNetwork, indicators), nil
}

// Refresh rebuilds the tenant's graph unconditionally.
func (n *NetworkAnalyzer) Refresh(ctx context.Context, tenantID string) error {
	n.refreshMu.Lock()
	defer n.refreshMu.Unlock()
	_, err := n.rebuild(ctx, tenantID)
	return err
}

// Stats returns node and edge counts of the tenant's current snapshot.
func (n *NetworkAnalyzer) Stats(tenantID string) (nodes, edges int, builtAt time.Time) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if s, ok := n.snapshots[tenantID]; ok {
		return s.graph.NodeCount(), s.graph.EdgeCount(), s.builtAt
	}
	return 0, 0, time.Time{}
}

// snapshot returns a fresh enough snapshot, rebuilding it when stale.
func (n *NetworkAnalyzer) snapshot(ctx context.Context, tenantID string) (*networkSnapshot, error) {
	if s := n.current(tenantID); s != nil {
		return s, nil
	}

	n.refreshMu.Lock()
	defer n.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if s := n.current(tenantID); s != nil {
		return s, nil
	}
	return n.rebuild(ctx, tenantID)
}

func (n *NetworkAnalyzer) current(tenantID string) *networkSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.snapshots[tenantID]
	if !ok || n.now().Sub(s.builtAt) >= n.cfg.RefreshInterval {
		return nil
	}
	return s
}

// rebuild must be called with refreshMu held.
func (n *NetworkAnalyzer) rebuild(ctx context.Context, tenantID string) (*networkSnapshot, error) {
	now := n.now()
	var claims []*domain.Claim
	if n.source != nil {
		var err error
		claims, err = n.source.ListClaimsSince(ctx, tenantID, now.Add(-n.cfg.Lookback), n.cfg.MaxClaims)
		if err != nil {
			return nil, fmt.Errorf("failed to load recent claims: %w", err)
		}
	}

	snap := buildSnapshot(claims)
	snap.builtAt = now

	n.mu.Lock()
	n.snapshots[tenantID] = snap
	n.mu.Unlock()

	slog.Debug("network graph rebuilt",
		"tenant_id", tenantID,
		"claims", len(claims),
		"nodes", snap.graph.NodeCount(),
		"edges", snap.graph.EdgeCount(),
		"communities", len(snap.communities),
		"modularity", snap.graph.Modularity(snap.communities),
	)
	return snap, nil
}

func buildSnapshot(claims []*domain.Claim) *networkSnapshot {
	g := graph.New()
	submitted := make(map[string]time.Time, len(claims))

	for _, c := range claims {
		if c == nil {
			continue
		}
		if d, ok := parseDate(c.SubmissionDate); ok {
			submitted[c.ID] = d.Time
		}

		claimant := partyKey(graph.NodeClaimant, c.Claimant)
		provider := partyKey(graph.NodeProvider, c.Provider)
		attorney := partyKey(graph.NodeAttorney, c.Attorney)
		phone := attrKey(graph.NodePhone, c.Claimant.Phone)
		email := attrKey(graph.NodeEmail, c.Claimant.Email)
		address := attrKey(graph.NodeAddress, c.Claimant.Address)

		add := func(id string, typ graph.NodeType, label string) {
			if id != "" {
				g.AddNode(id, typ, label, c.ID)
			}
		}
		add(claimant, graph.NodeClaimant, c.Claimant.Name)
		add(provider, graph.NodeProvider, c.Provider.Name)
		add(attorney, graph.NodeAttorney, c.Attorney.Name)
		add(phone, graph.NodePhone, c.Claimant.Phone)
		add(email, graph.NodeEmail, c.Claimant.Email)
		add(address, graph.NodeAddress, c.Claimant.Address)

		if claimant == "" {
			continue
		}
		for _, e := range []struct {
			to  string
			typ graph.EdgeType
		}{
			{provider, graph.EdgeClaimantProvider},
			{attorney, graph.EdgeClaimantAttorney},
			{phone, graph.EdgeHasPhone},
			{email, graph.EdgeHasEmail},
			{address, graph.EdgeHasAddress},
		} {
			if e.to != "" {
				g.AddEdge(claimant, e.to, e.typ, c.ID)
			}
		}
	}

	snap := &networkSnapshot{graph: g, submitted: submitted}
	if g.NodeCount() >= ringMinGraphNodes {
		snap.communities = g.Communities()
	}
	return snap
}

func (n *NetworkAnalyzer) providerChecks(snap *networkSnapshot, claim domain.Claim) []domain.Indicator {
	var out []domain.Indicator

	if name := strings.ToLower(strings.TrimSpace(claim.Provider.Name)); name != "" {
		for _, known := range knownFraudProviders {
			if name == known {
				out = append(out, indicator(domain.IndicatorKnownFraudProvider, domain.SeverityCritical, 0.3, 0.95,
					fmt.Sprintf("Provider '%s' is on fraud watchlist", claim.Provider.Name)))
				break
			}
		}
	}

	node, ok := snap.graph.Node(partyKey(graph.NodeProvider, claim.Provider))
	if !ok {
		return out
	}
	days := int(n.cfg.Lookback.Hours() / 24)

	if count := len(node.ClaimIDs); count > maxProviderClaims {
		out = append(out, withMeta(indicator(domain.IndicatorHighVolumeProvider, domain.SeverityHigh, 0.2, 0.9,
			fmt.Sprintf("Provider has %d claims in last %d days", count, days)),
			"claim_count", count))
	}
	if claimants := snap.graph.NeighborsOfType(node.ID, graph.NodeClaimant); len(claimants) > maxProviderClaimants {
		out = append(out, withMeta(indicator(domain.IndicatorProviderNetwork, domain.SeverityHigh, 0.15, 0.85,
			fmt.Sprintf("Provider connected to %d different claimants", len(claimants))),
			"claimant_count", len(claimants)))
	}
	return out
}

func (n *NetworkAnalyzer) claimantChecks(snap *networkSnapshot, claim domain.Claim) []domain.Indicator {
	claimantID := partyKey(graph.NodeClaimant, claim.Claimant)
	node, ok := snap.graph.Node(claimantID)
	if !ok {
		return nil
	}
	var out []domain.Indicator
	days := int(n.cfg.Lookback.Hours() / 24)

	if count := len(node.ClaimIDs); count > maxClaimantClaims {
		out = append(out, withMeta(indicator(domain.IndicatorFrequentClaimant, domain.SeverityHigh, 0.2, 0.85,
			fmt.Sprintf("Claimant has %d claims in last %d days", count, days)),
			"claim_count", count))
	}
	if providers := snap.graph.NeighborsOfType(claimantID, graph.NodeProvider); len(providers) > maxClaimantProviders {
		out = append(out, withMeta(indicator(domain.IndicatorProviderShopping, domain.SeverityMedium, 0.15, 0.8,
			fmt.Sprintf("Claimant has used %d different providers", len(providers))),
			"provider_count", len(providers)))
	}

	if phone := attrKey(graph.NodePhone, claim.Claimant.Phone); phone != "" {
		var others []string
		for _, id := range snap.graph.NeighborsOfType(phone, graph.NodeClaimant) {
			if id != claimantID {
				others = append(others, id)
			}
		}
		if len(others) > 0 {
			out = append(out, withMeta(indicator(domain.IndicatorSharedPhone, domain.SeverityHigh, 0.2, 0.9,
				fmt.Sprintf("Phone number shared with %d other claimant(s)", len(others))),
				"shared_with", others))
		}
	}
	return out
}

// ringChecks reports each dense community that holds the claimant or the
// provider.
func ringChecks(snap *networkSnapshot, claim domain.Claim) []domain.Indicator {
	if len(snap.communities) == 0 {
		return nil
	}
	var out []domain.Indicator
	seen := make(map[string]bool)
	for _, id := range []string{
		partyKey(graph.NodeClaimant, claim.Claimant),
		partyKey(graph.NodeProvider, claim.Provider),
	} {
		community, ok := graph.CommunityOf(snap.communities, id)
		if !ok || len(community) <= ringMinSize || seen[community[0]] {
			continue
		}
		seen[community[0]] = true

		density := snap.graph.Subgraph(community).Density()
		if density <= ringMinDensity {
			continue
		}
		out = append(out, withMeta(indicator(domain.IndicatorFraudRing, domain.SeverityCritical, 0.2, 0.8,
			fmt.Sprintf("Entities part of dense fraud ring (%d nodes, density: %.2f)", len(community), density)),
			"ring_size", len(community), "density", density))
	}
	return out
}

// rapidClaims fires once when two of the claimant's recent submissions are
// less than a week apart.
func rapidClaims(snap *networkSnapshot, claim domain.Claim) (domain.Indicator, bool) {
	node, ok := snap.graph.Node(partyKey(graph.NodeClaimant, claim.Claimant))
	if !ok || len(node.ClaimIDs) < 2 {
		return domain.Indicator{}, false
	}

	var times []time.Time
	for _, id := range node.ClaimIDs {
		if t, ok := snap.submitted[id]; ok {
			times = append(times, t)
		}
	}
	if len(times) < 2 {
		return domain.Indicator{}, false
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	for i := 1; i < len(times); i++ {
		if days := daysBetween(times[i-1], times[i]); days < rapidClaimDays {
			return withMeta(indicator(domain.IndicatorRapidSuccessiveClaims, domain.SeverityHigh, 0.15, 0.85,
				fmt.Sprintf("Claims filed only %d days apart", days)),
				"days_apart", days), true
		}
	}
	return domain.Indicator{}, false
}

// partyKey identifies a party by name, falling back to its id.
func partyKey(typ graph.NodeType, p domain.Party) string {
	key := strings.ToLower(strings.TrimSpace(p.Name))
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(p.ID))
	}
	if key == "" {
		return ""
	}
	return string(typ) + ":" + key
}

func attrKey(typ graph.NodeType, v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if typ == graph.NodePhone {
		v = strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '+' {
				return r
			}
			return -1
		}, v)
	}
	if v == "" {
		return ""
	}
	return string(typ) + ":" + v
}
