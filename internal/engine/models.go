package engine

import (
	"time"

	"offer-storefront-engine/internal/lifecycle"
)

// CustomerAttributes maps attribute names ("Credit Score", "Has Auto Loan")
// to number, boolean, or string values. Supplied per evaluation by the
// caller; never cached by the engine.
type CustomerAttributes map[string]any

// Operator is a clause comparison operator. Canonicalized to lower case at
// snapshot time.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpIsTrue             Operator = "is_true"
	OpIsFalse            Operator = "is_false"
)

// Clause is a single attribute/operator/value predicate. Value is stored as
// a string regardless of operator and coerced to the comparison type at
// evaluation time.
type Clause struct {
	ID        string
	Attribute string
	Operator  Operator
	Value     string
}

// Rule is an AND-combination of clauses. A rule with zero clauses never
// matches. The limit and intro-rate fields only apply when the rule is used
// in the corresponding rule set.
type Rule struct {
	ID      string
	Clauses []Clause

	PreapprovalLimit *float64

	IntroRate                        *float64
	IntroTermLength                  *int
	IntroTermUnit                    string
	OfferIntroRateOnPurchases        bool
	OfferIntroRateOnBalanceTransfers bool
	BalanceTransferIntroRate         *float64
	BalanceTransferTermLength        *int
	BalanceTransferTermUnit          string
}

// Purpose names the rule set a rule belongs to.
type Purpose string

const (
	PurposeProduct         Purpose = "product"
	PurposePreapproval     Purpose = "preapproval"
	PurposeIntroRate       Purpose = "intro_rate"
	PurposeConsumerPrequal Purpose = "consumer_prequal"
)

type ProductType string

const (
	ProductChecking   ProductType = "checking"
	ProductSavings    ProductType = "savings"
	ProductCreditCard ProductType = "credit_card"
	ProductAutoLoan   ProductType = "auto_loan"
	ProductPersonal   ProductType = "personal_loan"
	ProductHELOC      ProductType = "heloc"
	ProductMortgage   ProductType = "mortgage"
)

// introRateEligible limits intro-rate terms to revolving products.
func (t ProductType) introRateEligible() bool {
	return t == ProductCreditCard || t == ProductHELOC
}

// Product is one campaign product with its purpose-specific rule sets.
// Rules within a set combine with OR; list order matters for the intro-rate
// set, where the first matching rule wins.
type Product struct {
	ID                       string
	Name                     string
	ProductType              ProductType
	CampaignID               string
	Status                   string // "ACTIVE" | "INACTIVE"
	IsDefaultCampaignProduct bool
	AddedAt                  time.Time

	ProductRules         []Rule
	PreapprovalRules     []Rule
	IntroRateRules       []Rule
	ConsumerPrequalRules []Rule

	Perpetual *lifecycle.Settings
}

// IntroRate is one introductory-rate term.
type IntroRate struct {
	Rate       float64 `json:"rate"`
	TermLength int     `json:"termLength"`
	TermUnit   string  `json:"termUnit"`
}

// IntroRateTerms carries the intro terms the winning rule offers. Either,
// both, or neither side may be present.
type IntroRateTerms struct {
	Purchases        *IntroRate `json:"purchases,omitempty"`
	BalanceTransfers *IntroRate `json:"balanceTransfers,omitempty"`
}

// OfferKind distinguishes preapproved offers from invited-to-apply (ITA)
// ones; visible offers without a preapproval limit are ITA.
type OfferKind string

const (
	OfferPreapproved    OfferKind = "preapproved"
	OfferInvitedToApply OfferKind = "invited_to_apply"
)

// Decision is the evaluation result for one product. A nil PreapprovalLimit
// means "no limit", which callers must distinguish from a limit of 0.
type Decision struct {
	ProductID        string          `json:"productId"`
	ProductName      string          `json:"productName"`
	ProductType      ProductType     `json:"productType"`
	Visible          bool            `json:"visible"`
	OfferKind        OfferKind       `json:"offerKind,omitempty"`
	PreapprovalLimit *float64        `json:"preapprovalLimit"`
	IntroRateTerms   *IntroRateTerms `json:"introRateTerms,omitempty"`
	PrequalLimit     *float64        `json:"prequalLimit,omitempty"`
}
