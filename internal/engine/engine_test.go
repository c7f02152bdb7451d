package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offer-storefront-engine/internal/storage"
)

func f64(v float64) *float64 { return &v }
func iptr(v int) *int        { return &v }

func scoreRule(id string, op Operator, threshold string, limit *float64) Rule {
	return Rule{
		ID:               id,
		Clauses:          []Clause{{ID: id + "-c1", Attribute: "Credit Score", Operator: op, Value: threshold}},
		PreapprovalLimit: limit,
	}
}

func TestRuleMatches(t *testing.T) {
	attrs := CustomerAttributes{"Credit Score": 750.0, "Has Auto Loan": true}

	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{
			name: "empty clause list never matches",
			rule: Rule{ID: "r1"},
			want: false,
		},
		{
			name: "single matching clause",
			rule: scoreRule("r2", OpGreaterThanOrEqual, "720", nil),
			want: true,
		},
		{
			name: "all clauses must match",
			rule: Rule{ID: "r3", Clauses: []Clause{
				{Attribute: "Credit Score", Operator: OpGreaterThanOrEqual, Value: "720"},
				{Attribute: "Has Auto Loan", Operator: OpIsFalse},
			}},
			want: false,
		},
		{
			name: "two matching clauses",
			rule: Rule{ID: "r4", Clauses: []Clause{
				{Attribute: "Credit Score", Operator: OpGreaterThanOrEqual, Value: "720"},
				{Attribute: "Has Auto Loan", Operator: OpIsTrue},
			}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ruleMatches(tt.rule, attrs))
		})
	}
}

func TestResolveVisibility(t *testing.T) {
	gate := []Rule{scoreRule("r1", OpGreaterThanOrEqual, "680", nil)}

	tests := []struct {
		name  string
		p     Product
		attrs CustomerAttributes
		want  bool
	}{
		{
			name:  "default product ignores rules entirely",
			p:     Product{IsDefaultCampaignProduct: true, ProductRules: gate},
			attrs: CustomerAttributes{"Credit Score": 500.0},
			want:  true,
		},
		{
			name:  "default product with empty rules",
			p:     Product{IsDefaultCampaignProduct: true},
			attrs: CustomerAttributes{},
			want:  true,
		},
		{
			name:  "targeted product with no rules is disabled",
			p:     Product{},
			attrs: CustomerAttributes{"Credit Score": 800.0},
			want:  false,
		},
		{
			name:  "targeted product matching rule",
			p:     Product{ProductRules: gate},
			attrs: CustomerAttributes{"Credit Score": 700.0},
			want:  true,
		},
		{
			name:  "targeted product failing rule",
			p:     Product{ProductRules: gate},
			attrs: CustomerAttributes{"Credit Score": 600.0},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveVisibility(tt.p, tt.attrs))
		})
	}
}

func TestResolveHighestLimit(t *testing.T) {
	tiers := []Rule{
		scoreRule("tier1", OpGreaterThanOrEqual, "720", f64(50000)),
		scoreRule("tier2", OpGreaterThanOrEqual, "680", f64(35000)),
	}

	tests := []struct {
		name  string
		rules []Rule
		attrs CustomerAttributes
		want  *float64
	}{
		{"both tiers match, highest wins", tiers, CustomerAttributes{"Credit Score": 750.0}, f64(50000)},
		{"only lower tier matches", tiers, CustomerAttributes{"Credit Score": 700.0}, f64(35000)},
		{"no tier matches", tiers, CustomerAttributes{"Credit Score": 600.0}, nil},
		{
			name: "matching rule without a limit contributes nothing",
			rules: []Rule{
				scoreRule("r1", OpGreaterThanOrEqual, "600", nil),
			},
			attrs: CustomerAttributes{"Credit Score": 700.0},
			want:  nil,
		},
		{
			name: "zero limit is a real limit, not absence",
			rules: []Rule{
				scoreRule("r1", OpGreaterThanOrEqual, "600", f64(0)),
			},
			attrs: CustomerAttributes{"Credit Score": 700.0},
			want:  f64(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveHighestLimit(tt.rules, tt.attrs)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func TestResolveIntroRate_FirstMatchWins(t *testing.T) {
	rules := []Rule{
		{
			ID: "promo-a",
			Clauses: []Clause{
				{Attribute: "Credit Score", Operator: OpGreaterThanOrEqual, Value: "720"},
			},
			IntroRate:                 f64(0),
			IntroTermLength:           iptr(15),
			IntroTermUnit:             "months",
			OfferIntroRateOnPurchases: true,
		},
		{
			ID: "promo-b",
			Clauses: []Clause{
				{Attribute: "Credit Score", Operator: OpGreaterThanOrEqual, Value: "680"},
			},
			IntroRate:                        f64(2.9),
			IntroTermLength:                  iptr(12),
			IntroTermUnit:                    "months",
			OfferIntroRateOnPurchases:        true,
			OfferIntroRateOnBalanceTransfers: true,
			BalanceTransferIntroRate:         f64(3.9),
			BalanceTransferTermLength:        iptr(6),
			BalanceTransferTermUnit:          "months",
		},
	}

	t.Run("both match, list order wins over magnitude", func(t *testing.T) {
		terms := resolveIntroRate(rules, CustomerAttributes{"Credit Score": 760.0})
		require.NotNil(t, terms)
		require.NotNil(t, terms.Purchases)
		assert.Equal(t, 0.0, terms.Purchases.Rate)
		assert.Equal(t, 15, terms.Purchases.TermLength)
		assert.Nil(t, terms.BalanceTransfers)
	})

	t.Run("second rule carries both sides", func(t *testing.T) {
		terms := resolveIntroRate(rules, CustomerAttributes{"Credit Score": 700.0})
		require.NotNil(t, terms)
		require.NotNil(t, terms.Purchases)
		require.NotNil(t, terms.BalanceTransfers)
		assert.Equal(t, 2.9, terms.Purchases.Rate)
		assert.Equal(t, 3.9, terms.BalanceTransfers.Rate)
		assert.Equal(t, 6, terms.BalanceTransfers.TermLength)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, resolveIntroRate(rules, CustomerAttributes{"Credit Score": 500.0}))
	})

	t.Run("matching rule with no gated terms", func(t *testing.T) {
		bare := []Rule{scoreRule("r1", OpGreaterThanOrEqual, "600", nil)}
		assert.Nil(t, resolveIntroRate(bare, CustomerAttributes{"Credit Score": 700.0}))
	})
}

func TestEvaluateProduct(t *testing.T) {
	card := Product{
		ID:          "card-1",
		Name:        "Rewards Card",
		ProductType: ProductCreditCard,
		Status:      "ACTIVE",
		ProductRules: []Rule{
			scoreRule("vis", OpGreaterThanOrEqual, "680", nil),
		},
		PreapprovalRules: []Rule{
			scoreRule("tier1", OpGreaterThanOrEqual, "720", f64(50000)),
			scoreRule("tier2", OpGreaterThanOrEqual, "680", f64(35000)),
		},
		IntroRateRules: []Rule{
			{
				ID:                        "intro",
				Clauses:                   []Clause{{Attribute: "Credit Score", Operator: OpGreaterThanOrEqual, Value: "700"}},
				IntroRate:                 f64(0),
				IntroTermLength:           iptr(12),
				IntroTermUnit:             "months",
				OfferIntroRateOnPurchases: true,
			},
		},
		ConsumerPrequalRules: []Rule{
			scoreRule("pq", OpGreaterThanOrEqual, "680", f64(20000)),
		},
	}

	t.Run("strong profile gets preapproved with intro terms", func(t *testing.T) {
		d := EvaluateProduct(card, CustomerAttributes{"Credit Score": 750.0}, Options{})
		assert.True(t, d.Visible)
		assert.Equal(t, OfferPreapproved, d.OfferKind)
		require.NotNil(t, d.PreapprovalLimit)
		assert.Equal(t, 50000.0, *d.PreapprovalLimit)
		require.NotNil(t, d.IntroRateTerms)
		assert.Nil(t, d.PrequalLimit, "prequalification is opt-in")
	})

	t.Run("mid profile gets lower tier", func(t *testing.T) {
		d := EvaluateProduct(card, CustomerAttributes{"Credit Score": 700.0}, Options{})
		assert.True(t, d.Visible)
		require.NotNil(t, d.PreapprovalLimit)
		assert.Equal(t, 35000.0, *d.PreapprovalLimit)
	})

	t.Run("weak profile sees nothing", func(t *testing.T) {
		d := EvaluateProduct(card, CustomerAttributes{"Credit Score": 600.0}, Options{})
		assert.False(t, d.Visible)
		assert.Empty(t, d.OfferKind)
		assert.Nil(t, d.PreapprovalLimit)
		assert.Nil(t, d.IntroRateTerms)
	})

	t.Run("prequalification resolved when requested", func(t *testing.T) {
		d := EvaluateProduct(card, CustomerAttributes{"Credit Score": 750.0}, Options{IncludePrequalification: true})
		require.NotNil(t, d.PrequalLimit)
		assert.Equal(t, 20000.0, *d.PrequalLimit)
	})

	t.Run("intro terms withheld from non-revolving products", func(t *testing.T) {
		auto := card
		auto.ProductType = ProductAutoLoan
		d := EvaluateProduct(auto, CustomerAttributes{"Credit Score": 750.0}, Options{})
		assert.Nil(t, d.IntroRateTerms)
	})

	t.Run("boolean attribute drives visibility", func(t *testing.T) {
		p := Product{
			ID:          "auto-1",
			ProductType: ProductAutoLoan,
			ProductRules: []Rule{
				{ID: "r1", Clauses: []Clause{{Attribute: "Has Auto Loan", Operator: OpIsTrue}}},
			},
		}
		d := EvaluateProduct(p, CustomerAttributes{"Has Auto Loan": true}, Options{})
		assert.True(t, d.Visible)
		assert.Equal(t, OfferInvitedToApply, d.OfferKind, "visible without a limit is an ITA offer")
	})

	t.Run("idempotent over the same inputs", func(t *testing.T) {
		attrs := CustomerAttributes{"Credit Score": 750.0}
		first := EvaluateProduct(card, attrs, Options{IncludePrequalification: true})
		second := EvaluateProduct(card, attrs, Options{IncludePrequalification: true})
		assert.Equal(t, first, second)
	})
}

type stubSource struct {
	rows []storage.ProductRow
	err  error
}

func (s *stubSource) LoadActiveProducts(context.Context) ([]storage.ProductRow, error) {
	return s.rows, s.err
}

func TestBuildSnapshot(t *testing.T) {
	limit := 35000.0
	src := &stubSource{rows: []storage.ProductRow{
		{
			ID:          "card-1",
			Name:        "Rewards Card",
			ProductType: " Credit_Card ",
			Status:      "active",
			Rules: map[string][]storage.RuleRow{
				storage.PurposeProduct: {{
					ID: "r1",
					Clauses: []storage.ClauseRow{
						{ID: "c1", Attribute: " Credit Score ", Operator: " GREATER_THAN_OR_EQUAL ", Value: " 680 "},
					},
				}},
				storage.PurposePreapproval: {{
					ID:               "r2",
					PreapprovalLimit: &limit,
					Clauses: []storage.ClauseRow{
						{ID: "c2", Attribute: "Credit Score", Operator: "greater_than_or_equal", Value: "680"},
					},
				}},
			},
			Perpetual: &storage.PerpetualRow{
				ExpirationTrigger: "Days",
				ExpirationDays:    90,
				ExpirationAction:  "remove",
			},
		},
	}}

	eng := NewEngine()
	require.NoError(t, eng.BuildSnapshot(context.Background(), src))

	p, ok := eng.ProductByID("card-1")
	require.True(t, ok)
	assert.Equal(t, ProductCreditCard, p.ProductType)
	assert.Equal(t, "ACTIVE", p.Status)
	require.NotNil(t, p.Perpetual)
	assert.Equal(t, 90, p.Perpetual.Days)

	decisions := eng.Evaluate(CustomerAttributes{"Credit Score": 700.0}, Options{})
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Visible)
	require.NotNil(t, decisions[0].PreapprovalLimit)
	assert.Equal(t, limit, *decisions[0].PreapprovalLimit)
}

func TestEvaluate_SkipsInactiveProducts(t *testing.T) {
	eng := NewEngine()
	eng.SetProducts([]Product{
		{ID: "a", Status: "ACTIVE", IsDefaultCampaignProduct: true},
		{ID: "b", Status: "INACTIVE", IsDefaultCampaignProduct: true},
	})

	decisions := eng.Evaluate(CustomerAttributes{"x": 1.0}, Options{})
	require.Len(t, decisions, 1)
	assert.Equal(t, "a", decisions[0].ProductID)
}
