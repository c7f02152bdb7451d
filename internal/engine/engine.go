package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"offer-storefront-engine/internal/cache"
	"offer-storefront-engine/internal/lifecycle"
	"offer-storefront-engine/internal/storage"
)

type snapshot struct {
	products []Product
	byID     map[string]int
}

// ProductSource loads the active product/rule configuration. Satisfied by
// *storage.Store and by test doubles.
type ProductSource interface {
	LoadActiveProducts(ctx context.Context) ([]storage.ProductRow, error)
}

// Engine evaluates customer attributes against the configured rule sets.
// Evaluation reads a lock-free snapshot; rebuilds swap the whole snapshot.
type Engine struct{ snap cache.Snapshot[snapshot] }

func NewEngine() *Engine { return &Engine{} }

// Options gates optional evaluation purposes. Consumer prequalification is a
// capability flag owned by the caller, not the engine.
type Options struct {
	IncludePrequalification bool
}

// BuildSnapshot loads active products with their rule sets and swaps in a
// fresh evaluation snapshot.
func (e *Engine) BuildSnapshot(ctx context.Context, src ProductSource) error {
	rows, err := src.LoadActiveProducts(ctx)
	if err != nil {
		return err
	}
	products := make([]Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, normalizeProduct(r))
	}
	e.SetProducts(products)
	log.Debug().Int("products", len(products)).Msg("snapshot rebuilt")
	return nil
}

// SetProducts installs a snapshot directly. Products are sorted by ID so
// evaluation output order is deterministic.
func (e *Engine) SetProducts(products []Product) {
	ps := slices.Clone(products)
	slices.SortFunc(ps, func(a, b Product) int { return strings.Compare(a.ID, b.ID) })
	byID := make(map[string]int, len(ps))
	for i, p := range ps {
		byID[p.ID] = i
	}
	e.snap.Store(snapshot{products: ps, byID: byID})
}

// Products returns the current snapshot's products.
func (e *Engine) Products() []Product {
	s, _ := e.snap.Load()
	return s.products
}

// ProductByID looks up one product in the current snapshot.
func (e *Engine) ProductByID(id string) (Product, bool) {
	s, ok := e.snap.Load()
	if !ok {
		return Product{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Product{}, false
	}
	return s.products[i], true
}

// Evaluate produces a Decision for every active product in the snapshot.
// Calls are independent and idempotent; the engine holds no per-customer
// state.
func (e *Engine) Evaluate(attrs CustomerAttributes, opts Options) []Decision {
	s, _ := e.snap.Load()
	out := make([]Decision, 0, len(s.products))
	for _, p := range s.products {
		if p.Status != "ACTIVE" {
			continue
		}
		out = append(out, EvaluateProduct(p, attrs, opts))
	}
	return out
}

// EvaluateProduct resolves every purpose-specific rule set for one product.
// Pure: no I/O, no side effects, never panics on malformed rule data.
func EvaluateProduct(p Product, attrs CustomerAttributes, opts Options) Decision {
	d := Decision{
		ProductID:   p.ID,
		ProductName: p.Name,
		ProductType: p.ProductType,
		Visible:     resolveVisibility(p, attrs),
	}
	d.PreapprovalLimit = resolveHighestLimit(p.PreapprovalRules, attrs)
	if p.ProductType.introRateEligible() {
		d.IntroRateTerms = resolveIntroRate(p.IntroRateRules, attrs)
	}
	if opts.IncludePrequalification {
		d.PrequalLimit = resolveHighestLimit(p.ConsumerPrequalRules, attrs)
	}
	if d.Visible {
		if d.PreapprovalLimit != nil {
			d.OfferKind = OfferPreapproved
		} else {
			d.OfferKind = OfferInvitedToApply
		}
	}
	return d
}

// resolveVisibility: default campaign products are visible unconditionally
// and their product rules are never consulted. Otherwise at least one rule
// must match; a targeted product with no rules is effectively disabled.
func resolveVisibility(p Product, attrs CustomerAttributes) bool {
	if p.IsDefaultCampaignProduct {
		return true
	}
	return anyRuleMatches(p.ProductRules, attrs)
}

// ruleMatches ANDs a rule's clauses, short-circuiting on the first miss.
// A rule with zero clauses never matches; vacuous rules must not make every
// customer eligible.
func ruleMatches(r Rule, attrs CustomerAttributes) bool {
	if len(r.Clauses) == 0 {
		return false
	}
	for _, c := range r.Clauses {
		if !clauseMatches(c, attrs) {
			return false
		}
	}
	return true
}

func anyRuleMatches(rules []Rule, attrs CustomerAttributes) bool {
	for _, r := range rules {
		if ruleMatches(r, attrs) {
			return true
		}
	}
	return false
}

// resolveHighestLimit evaluates every rule and keeps the highest limit among
// the matches; a customer may satisfy multiple tiers. Matching rules without
// a limit contribute nothing (never coerced to 0). Nil when no rule matches.
func resolveHighestLimit(rules []Rule, attrs CustomerAttributes) *float64 {
	var best *float64
	for _, r := range rules {
		if r.PreapprovalLimit == nil || !ruleMatches(r, attrs) {
			continue
		}
		if best == nil || *r.PreapprovalLimit > *best {
			v := *r.PreapprovalLimit
			best = &v
		}
	}
	return best
}

// resolveIntroRate takes the FIRST matching rule in list order; intro-rate
// rules are campaign-authored in priority order, not tiered by magnitude.
func resolveIntroRate(rules []Rule, attrs CustomerAttributes) *IntroRateTerms {
	for _, r := range rules {
		if !ruleMatches(r, attrs) {
			continue
		}
		terms := &IntroRateTerms{}
		if r.OfferIntroRateOnPurchases && r.IntroRate != nil && r.IntroTermLength != nil {
			terms.Purchases = &IntroRate{
				Rate:       *r.IntroRate,
				TermLength: *r.IntroTermLength,
				TermUnit:   r.IntroTermUnit,
			}
		}
		if r.OfferIntroRateOnBalanceTransfers && r.BalanceTransferIntroRate != nil && r.BalanceTransferTermLength != nil {
			terms.BalanceTransfers = &IntroRate{
				Rate:       *r.BalanceTransferIntroRate,
				TermLength: *r.BalanceTransferTermLength,
				TermUnit:   r.BalanceTransferTermUnit,
			}
		}
		if terms.Purchases == nil && terms.BalanceTransfers == nil {
			return nil
		}
		return terms
	}
	return nil
}

// normalizeProduct canonicalizes admin-entered rows at snapshot time so
// evaluation never has to trim or case-fold.
func normalizeProduct(r storage.ProductRow) Product {
	p := Product{
		ID:                       r.ID,
		Name:                     r.Name,
		ProductType:              ProductType(strings.ToLower(strings.TrimSpace(r.ProductType))),
		CampaignID:               r.CampaignID,
		Status:                   strings.ToUpper(strings.TrimSpace(r.Status)),
		IsDefaultCampaignProduct: r.IsDefaultCampaignProduct,
		AddedAt:                  r.AddedAt,
	}
	p.ProductRules = normalizeRules(r.Rules[storage.PurposeProduct])
	p.PreapprovalRules = normalizeRules(r.Rules[storage.PurposePreapproval])
	p.IntroRateRules = normalizeRules(r.Rules[storage.PurposeIntroRate])
	p.ConsumerPrequalRules = normalizeRules(r.Rules[storage.PurposeConsumerPrequal])

	if r.Perpetual != nil {
		p.Perpetual = &lifecycle.Settings{
			Trigger:            lifecycle.Trigger(strings.ToLower(strings.TrimSpace(r.Perpetual.ExpirationTrigger))),
			Days:               r.Perpetual.ExpirationDays,
			Redemptions:        r.Perpetual.ExpirationRedemptions,
			Behavior:           lifecycle.ReplacementBehavior(strings.ToLower(strings.TrimSpace(r.Perpetual.ReplacementBehavior))),
			ReplaceOfferID:     r.Perpetual.ReplaceOfferID,
			Action:             lifecycle.ExpirationAction(strings.ToLower(strings.TrimSpace(r.Perpetual.ExpirationAction))),
			ReplacementOfferID: r.Perpetual.ReplacementOfferID,
		}
		if r.Perpetual.ExpirationDate != nil {
			p.Perpetual.Date = *r.Perpetual.ExpirationDate
		}
	}
	return p
}

func normalizeRules(rows []storage.RuleRow) []Rule {
	if len(rows) == 0 {
		return nil
	}
	rules := make([]Rule, 0, len(rows))
	for _, rr := range rows {
		rule := Rule{
			ID:                               rr.ID,
			PreapprovalLimit:                 rr.PreapprovalLimit,
			IntroRate:                        rr.IntroRate,
			IntroTermLength:                  rr.IntroTermLength,
			IntroTermUnit:                    strings.ToLower(strings.TrimSpace(rr.IntroTermUnit)),
			OfferIntroRateOnPurchases:        rr.OfferIntroRateOnPurchases,
			OfferIntroRateOnBalanceTransfers: rr.OfferIntroRateOnBalanceTransfers,
			BalanceTransferIntroRate:         rr.BalanceTransferIntroRate,
			BalanceTransferTermLength:        rr.BalanceTransferTermLength,
			BalanceTransferTermUnit:          strings.ToLower(strings.TrimSpace(rr.BalanceTransferTermUnit)),
		}
		for _, cr := range rr.Clauses {
			rule.Clauses = append(rule.Clauses, Clause{
				ID:        cr.ID,
				Attribute: strings.TrimSpace(cr.Attribute),
				Operator:  Operator(strings.ToLower(strings.TrimSpace(cr.Operator))),
				Value:     strings.TrimSpace(cr.Value),
			})
		}
		rules = append(rules, rule)
	}
	return rules
}
