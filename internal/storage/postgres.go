package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"offer-storefront-engine/internal/config"
)

// Rule purposes as stored in the offer_rules.purpose column.
const (
	PurposeProduct         = "product"
	PurposePreapproval     = "preapproval"
	PurposeIntroRate       = "intro_rate"
	PurposeConsumerPrequal = "consumer_prequal"
)

type Store struct {
	pool *pgxpool.Pool
}

// ProductRow is one campaign product as loaded from Postgres, rules grouped
// by purpose in authoring order.
type ProductRow struct {
	ID                       string
	Name                     string
	ProductType              string
	CampaignID               string
	Status                   string
	IsDefaultCampaignProduct bool
	AddedAt                  time.Time
	Rules                    map[string][]RuleRow
	Perpetual                *PerpetualRow
}

// PerpetualRow holds the perpetual-campaign lifecycle columns.
type PerpetualRow struct {
	ExpirationTrigger     string
	ExpirationDays        int
	ExpirationRedemptions int
	ExpirationDate        *time.Time
	ReplacementBehavior   string
	ReplaceOfferID        string
	ExpirationAction      string
	ReplacementOfferID    string
}

type RuleRow struct {
	ID                               string
	Purpose                          string
	PreapprovalLimit                 *float64
	IntroRate                        *float64
	IntroTermLength                  *int
	IntroTermUnit                    string
	OfferIntroRateOnPurchases        bool
	OfferIntroRateOnBalanceTransfers bool
	BalanceTransferIntroRate         *float64
	BalanceTransferTermLength        *int
	BalanceTransferTermUnit          string
	Clauses                          []ClauseRow
}

type ClauseRow struct {
	ID        string
	Attribute string
	Operator  string
	Value     string
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// LoadActiveProducts loads all active campaign products with their rule sets
// and perpetual-offer settings. Rule and clause ordering follows the stored
// position columns; intro-rate resolution depends on it.
func (s *Store) LoadActiveProducts(ctx context.Context) ([]ProductRow, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.product_type, p.campaign_id, p.status,
		       p.is_default_campaign_product, p.added_at, p.is_perpetual,
		       p.expiration_trigger, p.expiration_days, p.expiration_redemptions,
		       p.expiration_date, p.replacement_behavior, p.replace_offer_id,
		       p.expiration_action, p.replacement_offer_id,
		       r.id, r.purpose, r.preapproval_limit,
		       r.intro_rate, r.intro_term_length, r.intro_term_unit,
		       r.offer_intro_on_purchases, r.offer_intro_on_balance_transfers,
		       r.bt_intro_rate, r.bt_term_length, r.bt_term_unit,
		       c.id, c.attribute, c.operator, c.value
		FROM products p
		LEFT JOIN offer_rules r ON r.product_id = p.id
		LEFT JOIN rule_clauses c ON c.rule_id = r.id
		WHERE p.status = 'ACTIVE'
		ORDER BY p.id, r.purpose, r.position, c.position
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := map[string]*ProductRow{}
	ruleIdx := map[string]*RuleRow{}
	ruleOrder := map[string][]*RuleRow{} // product id -> rules in stored order
	var order []string

	for rows.Next() {
		var (
			id, name, ptype, campaignID, status   string
			isDefault, isPerpetual                bool
			addedAt                               time.Time
			expTrigger, replBehavior, expAction   sql.NullString
			replaceOfferID, replacementOfferID    sql.NullString
			expDays, expRedemptions               sql.NullInt32
			expDate                               sql.NullTime
			ruleID, purpose                       sql.NullString
			preapprovalLimit, introRate, btRate   sql.NullFloat64
			introTermLen, btTermLen               sql.NullInt32
			introTermUnit, btTermUnit             sql.NullString
			offerIntroPurchases, offerIntroBT     sql.NullBool
			clauseID, attribute, operator, cValue sql.NullString
		)
		if err := rows.Scan(
			&id, &name, &ptype, &campaignID, &status,
			&isDefault, &addedAt, &isPerpetual,
			&expTrigger, &expDays, &expRedemptions,
			&expDate, &replBehavior, &replaceOfferID,
			&expAction, &replacementOfferID,
			&ruleID, &purpose, &preapprovalLimit,
			&introRate, &introTermLen, &introTermUnit,
			&offerIntroPurchases, &offerIntroBT,
			&btRate, &btTermLen, &btTermUnit,
			&clauseID, &attribute, &operator, &cValue,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		p, ok := products[id]
		if !ok {
			p = &ProductRow{
				ID:                       id,
				Name:                     name,
				ProductType:              ptype,
				CampaignID:               campaignID,
				Status:                   status,
				IsDefaultCampaignProduct: isDefault,
				AddedAt:                  addedAt,
				Rules:                    map[string][]RuleRow{},
			}
			if isPerpetual {
				p.Perpetual = &PerpetualRow{
					ExpirationTrigger:     expTrigger.String,
					ExpirationDays:        int(expDays.Int32),
					ExpirationRedemptions: int(expRedemptions.Int32),
					ReplacementBehavior:   replBehavior.String,
					ReplaceOfferID:        replaceOfferID.String,
					ExpirationAction:      expAction.String,
					ReplacementOfferID:    replacementOfferID.String,
				}
				if expDate.Valid {
					d := expDate.Time
					p.Perpetual.ExpirationDate = &d
				}
			}
			products[id] = p
			order = append(order, id)
		}

		if !ruleID.Valid || !purpose.Valid {
			continue
		}
		rule, ok := ruleIdx[ruleID.String]
		if !ok {
			rule = &RuleRow{
				ID:                               ruleID.String,
				Purpose:                          purpose.String,
				IntroTermUnit:                    introTermUnit.String,
				OfferIntroRateOnPurchases:        offerIntroPurchases.Bool,
				OfferIntroRateOnBalanceTransfers: offerIntroBT.Bool,
				BalanceTransferTermUnit:          btTermUnit.String,
			}
			if preapprovalLimit.Valid {
				v := preapprovalLimit.Float64
				rule.PreapprovalLimit = &v
			}
			if introRate.Valid {
				v := introRate.Float64
				rule.IntroRate = &v
			}
			if introTermLen.Valid {
				v := int(introTermLen.Int32)
				rule.IntroTermLength = &v
			}
			if btRate.Valid {
				v := btRate.Float64
				rule.BalanceTransferIntroRate = &v
			}
			if btTermLen.Valid {
				v := int(btTermLen.Int32)
				rule.BalanceTransferTermLength = &v
			}
			ruleIdx[ruleID.String] = rule
			ruleOrder[id] = append(ruleOrder[id], rule)
		}
		if clauseID.Valid {
			rule.Clauses = append(rule.Clauses, ClauseRow{
				ID:        clauseID.String,
				Attribute: attribute.String,
				Operator:  operator.String,
				Value:     cValue.String,
			})
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// fold rules into their products, preserving authoring order
	out := make([]ProductRow, 0, len(order))
	for _, id := range order {
		p := products[id]
		for _, rule := range ruleOrder[id] {
			p.Rules[rule.Purpose] = append(p.Rules[rule.Purpose], *rule)
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store) ListenChannel() string {
	return "storefront_config_change"
}

func (s *Store) PgxPool() *pgxpool.Pool {
	return s.pool
}
