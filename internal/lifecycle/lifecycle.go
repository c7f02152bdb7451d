package lifecycle

import "time"

// Trigger selects how a perpetual offer expires.
type Trigger string

const (
	TriggerManual      Trigger = "manual"
	TriggerDays        Trigger = "days"
	TriggerRedemptions Trigger = "redemptions"
	TriggerDate        Trigger = "date"
)

// ReplacementBehavior is applied once, when an offer is added to a campaign.
type ReplacementBehavior string

const (
	BehaviorAdd             ReplacementBehavior = "add"
	BehaviorReplaceSpecific ReplacementBehavior = "replace_specific"
	BehaviorClearAll        ReplacementBehavior = "clear_all"
)

// ExpirationAction is the side effect signalled when an offer expires.
type ExpirationAction string

const (
	ActionRemove  ExpirationAction = "remove"
	ActionReplace ExpirationAction = "replace"
	ActionNotify  ExpirationAction = "notify"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
	StatusQueued       Status = "queued"
)

// Settings governs one campaign product's perpetual-offer lifecycle. Only
// the parameter matching Trigger is trusted; the others are ignored even if
// populated.
type Settings struct {
	Trigger     Trigger
	Days        int
	Redemptions int
	Date        time.Time

	Behavior       ReplacementBehavior
	ReplaceOfferID string

	Action             ExpirationAction
	ReplacementOfferID string
}

// State is the per-offer-instance input to status evaluation. Redemption
// counts are incremented by external redemption events; Queued marks a
// replacement offer that has not been promoted yet.
type State struct {
	AddedAt         time.Time
	RedemptionCount int
	Queued          bool
}

type SignalKind string

const (
	SignalNone    SignalKind = "none"
	SignalRemove  SignalKind = "remove"
	SignalReplace SignalKind = "replace"
	SignalNotify  SignalKind = "notify"
)

// Signal is the caller-visible side effect of an expiry. Replace carries the
// offer to promote; replacement is one hop, never chained automatically.
type Signal struct {
	Kind               SignalKind `json:"kind"`
	ReplacementOfferID string     `json:"replacementOfferId,omitempty"`
}

// Evaluation is the lazily recomputed lifecycle result for one offer.
type Evaluation struct {
	Status    Status     `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Signal    Signal     `json:"signal"`
}

// warnFraction marks the soft warning zone: the last 20% of an offer's
// time or redemption budget is reported as expiring_soon.
const warnFraction = 0.8

// Evaluate computes the current lifecycle status from caller-supplied state
// and clock. It never reads the system clock and never returns an error:
// incomplete settings degrade to manual (never expires), negative counts and
// a now before AddedAt clamp to zero progress.
func Evaluate(s Settings, st State, now time.Time) Evaluation {
	if st.Queued {
		return Evaluation{Status: StatusQueued, Signal: Signal{Kind: SignalNone}}
	}

	ev := Evaluation{Status: StatusActive, Signal: Signal{Kind: SignalNone}}

	switch s.Trigger {
	case TriggerDays:
		if s.Days <= 0 {
			return ev
		}
		exp := st.AddedAt.Add(time.Duration(s.Days) * 24 * time.Hour)
		ev.ExpiresAt = &exp
		elapsed := now.Sub(st.AddedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		elapsedDays := elapsed.Hours() / 24
		switch {
		case elapsedDays >= float64(s.Days):
			ev.Status = StatusExpired
		case elapsedDays >= warnFraction*float64(s.Days):
			ev.Status = StatusExpiringSoon
		}
	case TriggerRedemptions:
		if s.Redemptions <= 0 {
			return ev
		}
		count := st.RedemptionCount
		if count < 0 {
			count = 0
		}
		switch {
		case count >= s.Redemptions:
			ev.Status = StatusExpired
		case float64(count) >= warnFraction*float64(s.Redemptions):
			ev.Status = StatusExpiringSoon
		}
	case TriggerDate:
		if s.Date.IsZero() {
			return ev
		}
		exp := s.Date
		ev.ExpiresAt = &exp
		if !now.Before(s.Date) {
			ev.Status = StatusExpired
			break
		}
		window := s.Date.Sub(st.AddedAt)
		if window <= 0 {
			// malformed window: already inside the warning zone
			ev.Status = StatusExpiringSoon
			break
		}
		remaining := s.Date.Sub(now)
		if float64(remaining) <= (1-warnFraction)*float64(window) {
			ev.Status = StatusExpiringSoon
		}
	default:
		// manual, or an unknown trigger: never expires automatically
		return ev
	}

	if ev.Status == StatusExpired {
		ev.Signal = expirySignal(s)
	}
	return ev
}

func expirySignal(s Settings) Signal {
	switch s.Action {
	case ActionNotify:
		return Signal{Kind: SignalNotify}
	case ActionReplace:
		if s.ReplacementOfferID == "" {
			return Signal{Kind: SignalRemove}
		}
		return Signal{Kind: SignalReplace, ReplacementOfferID: s.ReplacementOfferID}
	default:
		return Signal{Kind: SignalRemove}
	}
}

// ApplyAdd applies an offer's ReplacementBehavior at add time and returns
// the campaign's new active offer list. The incoming offer is always
// appended; duplicates are dropped.
func ApplyAdd(active []string, offerID string, behavior ReplacementBehavior, replaceOfferID string) []string {
	var out []string
	switch behavior {
	case BehaviorClearAll:
		// every other offer in the campaign is removed first
	case BehaviorReplaceSpecific:
		for _, id := range active {
			if id != replaceOfferID && id != offerID {
				out = append(out, id)
			}
		}
	default: // add
		for _, id := range active {
			if id != offerID {
				out = append(out, id)
			}
		}
	}
	return append(out, offerID)
}

// Offer pairs an offer instance with its settings for set evaluation.
type Offer struct {
	ID       string
	Settings Settings
	State    State
}

// SetResult is one refresh pass over a campaign's active offers. Keep holds
// the surviving offer IDs, Promote the replacement offers to add, Notify the
// offers whose expiry only warrants an admin notification.
type SetResult struct {
	Keep        []string
	Promote     []string
	Notify      []string
	Evaluations map[string]Evaluation
}

// EvaluateSet applies expiry signals across a campaign's active offer list
// in one pass, the way the storefront refreshes a campaign page. Promoted
// replacements are not re-evaluated within the same pass (one hop).
func EvaluateSet(offers []Offer, now time.Time) SetResult {
	res := SetResult{Evaluations: make(map[string]Evaluation, len(offers))}
	present := make(map[string]bool, len(offers))
	for _, o := range offers {
		present[o.ID] = true
	}

	for _, o := range offers {
		ev := Evaluate(o.Settings, o.State, now)
		res.Evaluations[o.ID] = ev
		if ev.Status != StatusExpired {
			res.Keep = append(res.Keep, o.ID)
			continue
		}
		switch ev.Signal.Kind {
		case SignalNotify:
			res.Keep = append(res.Keep, o.ID)
			res.Notify = append(res.Notify, o.ID)
		case SignalReplace:
			if id := ev.Signal.ReplacementOfferID; !present[id] {
				res.Promote = append(res.Promote, id)
				present[id] = true
			}
		}
	}
	return res
}
