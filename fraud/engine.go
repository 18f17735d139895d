package fraud

import (
	"context"
	"fmt"
	"time"

	"escrowflow/config"
	"escrowflow/logging"
)

// Source gathers the state the rule battery reads. Implementations must not
// mutate anything; the engine's only writes go through the Recorder.
type Source interface {
	ContractSnapshot(ctx context.Context, contractID string) (ContractSnapshot, error)
	SettledSum(ctx context.Context, contractID string) (float64, error)
	PaymentsSince(ctx context.Context, contractID string, since time.Time) (int, error)
	// PayeeAccount returns the account age and whether the payee resolves at
	// all. An unresolvable payee is a rule input, not an error.
	PayeeAccount(ctx context.Context, payeeID string) (age time.Duration, resolvable bool, err error)
	DisputesAgainst(ctx context.Context, payeeID string, since time.Time) (total, lost int, err error)
	CompletedContracts(ctx context.Context, payeeID string) (int, error)
	MilestoneSnapshot(ctx context.Context, milestoneID string) (MilestoneSnapshot, error)
}

// Recorder persists the audit trail of every evaluation.
type Recorder interface {
	RecordCheck(ctx context.Context, rec CheckRecord) error
	RecordAlerts(ctx context.Context, alerts []Alert) error
}

// Engine runs the rule battery against payment candidates. It is stateless
// between checks; every evaluation gathers fresh inputs.
type Engine struct {
	src   Source
	rec   Recorder
	rules []Rule
	cfg   config.FraudConfig
	log   *logging.Logger

	now func() time.Time
}

func NewEngine(src Source, rec Recorder, cfg config.FraudConfig, log *logging.Logger) *Engine {
	return &Engine{
		src:   src,
		rec:   rec,
		rules: DefaultRules(cfg),
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// Check evaluates the request against every rule, records the outcome, and
// materializes review alerts for high and critical results. The returned
// Result is advisory; enforcement belongs to the ledger.
func (e *Engine) Check(ctx context.Context, req Request) (Result, error) {
	in, err := e.gather(ctx, req)
	if err != nil {
		return Result{}, err
	}

	res := Result{Details: map[string]any{}}
	var alerts []Alert
	for _, rule := range e.rules {
		out := rule.Evaluate(in)
		if !out.Triggered {
			continue
		}
		res.TotalScore += out.Score
		res.RulesTriggered = append(res.RulesTriggered, rule.Code())
		res.Details[rule.Code()] = out.Details
		alerts = append(alerts, Alert{
			ContractID:  req.ContractID,
			MilestoneID: req.MilestoneID,
			RuleCode:    rule.Code(),
			Severity:    LevelFor(out.Score, e.cfg),
			Message:     alertMessage(rule.Code(), out),
			Details:     out.Details,
		})
	}

	res.RiskLevel = LevelFor(res.TotalScore, e.cfg)
	res.ShouldBlock = res.TotalScore >= e.cfg.BlockThreshold
	res.RequiresReview = res.TotalScore >= e.cfg.FlagThreshold

	e.log.Info("fraud check completed",
		"contract_id", req.ContractID,
		"payment_type", req.PaymentType,
		"amount", req.Amount,
		"score", res.TotalScore,
		"risk_level", string(res.RiskLevel),
		"rules", res.RulesTriggered,
		"blocked", res.ShouldBlock,
	)

	if err := e.rec.RecordCheck(ctx, CheckRecord{
		ContractID:     req.ContractID,
		MilestoneID:    req.MilestoneID,
		PaymentType:    req.PaymentType,
		Amount:         req.Amount,
		TotalScore:     res.TotalScore,
		RiskLevel:      res.RiskLevel,
		RulesTriggered: res.RulesTriggered,
		Details:        res.Details,
		Blocked:        res.ShouldBlock,
		RequiresReview: res.RequiresReview,
	}); err != nil {
		return Result{}, err
	}

	if res.RiskLevel == RiskHigh || res.RiskLevel == RiskCritical {
		if err := e.rec.RecordAlerts(ctx, alerts); err != nil {
			return Result{}, err
		}
	}

	return res, nil
}

func (e *Engine) gather(ctx context.Context, req Request) (Input, error) {
	if req.ContractID == "" {
		return Input{}, fmt.Errorf("fraud: contract id required")
	}
	if req.Amount <= 0 {
		return Input{}, fmt.Errorf("fraud: amount must be positive")
	}

	now := e.now().UTC()
	in := Input{Request: req, Now: now}

	var err error
	if in.Contract, err = e.src.ContractSnapshot(ctx, req.ContractID); err != nil {
		return Input{}, err
	}
	if in.SettledSum, err = e.src.SettledSum(ctx, req.ContractID); err != nil {
		return Input{}, err
	}
	if in.RecentPaymentCount, err = e.src.PaymentsSince(ctx, req.ContractID, now.AddDate(0, 0, -7)); err != nil {
		return Input{}, err
	}
	if in.PayeeAccountAge, in.PayeeResolvable, err = e.src.PayeeAccount(ctx, req.PayeeID); err != nil {
		return Input{}, err
	}
	disputeSince := now.AddDate(0, 0, -e.cfg.RecentDisputeDays)
	if in.RecentDisputes, in.RecentDisputesLost, err = e.src.DisputesAgainst(ctx, req.PayeeID, disputeSince); err != nil {
		return Input{}, err
	}
	if in.CompletedContracts, err = e.src.CompletedContracts(ctx, req.PayeeID); err != nil {
		return Input{}, err
	}
	if req.MilestoneID != "" {
		ms, err := e.src.MilestoneSnapshot(ctx, req.MilestoneID)
		if err != nil {
			return Input{}, err
		}
		in.Milestone = &ms
	}
	return in, nil
}

func alertMessage(code string, out Outcome) string {
	if msg, ok := out.Details["message"].(string); ok {
		return msg
	}
	return fmt.Sprintf("rule %s triggered with score %d", code, out.Score)
}
