package fraud

import (
	"fmt"
	"math"
	"time"

	"escrowflow/config"
	"escrowflow/proof"
)

// Rule is one independent, order-independent check. Scores of triggered rules
// are summed, never averaged.
type Rule interface {
	Code() string
	Evaluate(in Input) Outcome
}

// DefaultRules returns the full rule battery wired with the given thresholds.
func DefaultRules(cfg config.FraudConfig) []Rule {
	return []Rule{
		depositRatioRule{cfg},
		contractOverrunRule{cfg},
		paymentVelocityRule{cfg},
		accountAgeRule{cfg},
		disputeHistoryRule{cfg},
		trackRecordRule{},
		proofSufficiencyRule{cfg},
		submissionTimingRule{cfg},
		amountVarianceRule{cfg},
		behaviorPatternRule{cfg},
	}
}

// depositRatioRule flags deposits that front-load too much of the contract.
type depositRatioRule struct{ cfg config.FraudConfig }

func (depositRatioRule) Code() string { return "deposit_ratio" }

func (r depositRatioRule) Evaluate(in Input) Outcome {
	if in.Request.PaymentType != "deposit" || in.Contract.Total <= 0 {
		return Outcome{}
	}
	ratio := in.Request.Amount / in.Contract.Total * 100
	details := map[string]any{"deposit_percent": math.Round(ratio*100) / 100}
	switch {
	case ratio > r.cfg.CriticalDepositPercent:
		details["message"] = fmt.Sprintf("deposit is %.0f%% of contract total", ratio)
		return Outcome{Triggered: true, Score: 80, Details: details}
	case ratio > r.cfg.MaxDepositPercent:
		details["message"] = fmt.Sprintf("deposit exceeds %.0f%% of contract total", r.cfg.MaxDepositPercent)
		return Outcome{Triggered: true, Score: 40, Details: details}
	}
	return Outcome{}
}

// contractOverrunRule compares the contract's existing exposure plus the new
// amount against the contract total.
type contractOverrunRule struct{ cfg config.FraudConfig }

func (contractOverrunRule) Code() string { return "contract_overrun" }

func (r contractOverrunRule) Evaluate(in Input) Outcome {
	if in.Contract.Total <= 0 {
		return Outcome{}
	}
	projected := (in.SettledSum + in.Request.Amount) / in.Contract.Total * 100
	details := map[string]any{
		"settled_sum":       in.SettledSum,
		"projected_percent": math.Round(projected*100) / 100,
	}
	switch {
	case projected > 105:
		details["message"] = "payment would exceed contract total by more than 5%"
		return Outcome{Triggered: true, Score: 100, Details: details}
	case projected > 100:
		details["message"] = "payment pushes settled sum past contract total"
		return Outcome{Triggered: true, Score: 30, Details: details}
	}
	return Outcome{}
}

// paymentVelocityRule catches bursts of payment requests on one contract.
type paymentVelocityRule struct{ cfg config.FraudConfig }

func (paymentVelocityRule) Code() string { return "payment_velocity" }

func (r paymentVelocityRule) Evaluate(in Input) Outcome {
	if in.RecentPaymentCount < r.cfg.MaxPaymentsPerWeek {
		return Outcome{}
	}
	return Outcome{Triggered: true, Score: 35, Details: map[string]any{
		"recent_payments": in.RecentPaymentCount,
		"window_days":     7,
	}}
}

// accountAgeRule scores young or unresolvable payee accounts.
type accountAgeRule struct{ cfg config.FraudConfig }

func (accountAgeRule) Code() string { return "account_age" }

func (r accountAgeRule) Evaluate(in Input) Outcome {
	if !in.PayeeResolvable {
		return Outcome{Triggered: true, Score: 50, Details: map[string]any{
			"message": "payee account could not be resolved",
		}}
	}
	minAge := time.Duration(r.cfg.NewAccountDays) * 24 * time.Hour
	if in.PayeeAccountAge < minAge {
		return Outcome{Triggered: true, Score: 25, Details: map[string]any{
			"account_age_days": int(in.PayeeAccountAge.Hours() / 24),
		}}
	}
	return Outcome{}
}

// disputeHistoryRule weighs disputes recently raised against the payee, with
// lost disputes counting double.
type disputeHistoryRule struct{ cfg config.FraudConfig }

func (disputeHistoryRule) Code() string { return "dispute_history" }

func (r disputeHistoryRule) Evaluate(in Input) Outcome {
	if in.RecentDisputes == 0 {
		return Outcome{}
	}
	score := 15*in.RecentDisputes + 30*in.RecentDisputesLost
	if score > 75 {
		score = 75
	}
	return Outcome{Triggered: true, Score: score, Details: map[string]any{
		"recent_disputes": in.RecentDisputes,
		"disputes_lost":   in.RecentDisputesLost,
		"window_days":     r.cfg.RecentDisputeDays,
	}}
}

// trackRecordRule flags payees with no completed contracts behind them.
type trackRecordRule struct{}

func (trackRecordRule) Code() string { return "track_record" }

func (trackRecordRule) Evaluate(in Input) Outcome {
	if in.CompletedContracts > 0 {
		return Outcome{}
	}
	return Outcome{Triggered: true, Score: 15, Details: map[string]any{
		"message": "payee has no completed contracts",
	}}
}

// proofSufficiencyRule checks that large milestones arrive with enough
// evidence and that photographic evidence carries capture metadata.
type proofSufficiencyRule struct{ cfg config.FraudConfig }

func (proofSufficiencyRule) Code() string { return "proof_sufficiency" }

func (r proofSufficiencyRule) Evaluate(in Input) Outcome {
	if in.Milestone == nil {
		return Outcome{}
	}
	score := 0
	details := map[string]any{"proof_count": len(in.Milestone.Proofs)}

	if in.Request.Amount > r.cfg.LargeMilestoneThreshold && len(in.Milestone.Proofs) < r.cfg.MinProofsLargeMilestone {
		score += 20
		details["insufficient_proofs"] = true
	}
	if missing, photos := proof.CountPhotosMissingMetadata(in.Milestone.Proofs); photos > 0 && missing*2 > photos {
		score += 10
		details["photos_missing_metadata"] = missing
	}
	if score == 0 {
		return Outcome{}
	}
	return Outcome{Triggered: true, Score: score, Details: details}
}

// submissionTimingRule flags payment requests made well before the milestone
// was planned to finish.
type submissionTimingRule struct{ cfg config.FraudConfig }

func (submissionTimingRule) Code() string { return "submission_timing" }

func (r submissionTimingRule) Evaluate(in Input) Outcome {
	if in.Milestone == nil || in.Milestone.PlannedAt == nil {
		return Outcome{}
	}
	early := in.Milestone.PlannedAt.Sub(in.Now)
	threshold := time.Duration(r.cfg.EarlySubmissionDays) * 24 * time.Hour
	if early <= threshold {
		return Outcome{}
	}
	return Outcome{Triggered: true, Score: 25, Details: map[string]any{
		"days_early": int(early.Hours() / 24),
		"planned_at": in.Milestone.PlannedAt.UTC(),
	}}
}

// amountVarianceRule compares the requested amount against the milestone's
// pre-agreed amount.
type amountVarianceRule struct{ cfg config.FraudConfig }

func (amountVarianceRule) Code() string { return "amount_variance" }

func (r amountVarianceRule) Evaluate(in Input) Outcome {
	if in.Milestone == nil || in.Milestone.Amount <= 0 {
		return Outcome{}
	}
	variance := math.Abs(in.Request.Amount-in.Milestone.Amount) / in.Milestone.Amount * 100
	if variance <= r.cfg.AmountVariancePercent {
		return Outcome{}
	}
	return Outcome{Triggered: true, Score: 30, Details: map[string]any{
		"agreed_amount":    in.Milestone.Amount,
		"requested_amount": in.Request.Amount,
		"variance_percent": math.Round(variance*100) / 100,
	}}
}

// behaviorPatternRule covers the residual oddities: milestone money requested
// within a day of contract signature, or requests placed at unusual hours.
// Both components add up when both hold.
type behaviorPatternRule struct{ cfg config.FraudConfig }

func (behaviorPatternRule) Code() string { return "behavior_pattern" }

func (r behaviorPatternRule) Evaluate(in Input) Outcome {
	score := 0
	details := map[string]any{}

	if in.Request.PaymentType == "milestone" && in.Now.Sub(in.Contract.CreatedAt) < 24*time.Hour {
		score += 20
		details["hours_since_contract"] = math.Round(in.Now.Sub(in.Contract.CreatedAt).Hours())
	}
	hour := in.Now.Hour()
	if hour < r.cfg.BusinessHourStart || hour >= r.cfg.BusinessHourEnd {
		score += 5
		details["request_hour"] = hour
	}
	if score == 0 {
		return Outcome{}
	}
	return Outcome{Triggered: true, Score: score, Details: details}
}
