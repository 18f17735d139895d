package fraud

import (
	"context"
	"testing"
	"time"

	"escrowflow/config"
	"escrowflow/logging"
	"escrowflow/proof"
)

// fakeSource returns canned inputs so individual rules can be exercised
// without a database.
type fakeSource struct {
	contract   ContractSnapshot
	settledSum float64
	recent     int
	accountAge time.Duration
	resolvable bool
	disputes   int
	lost       int
	completed  int
	milestone  *MilestoneSnapshot
}

func (f *fakeSource) ContractSnapshot(context.Context, string) (ContractSnapshot, error) {
	return f.contract, nil
}

func (f *fakeSource) SettledSum(context.Context, string) (float64, error) {
	return f.settledSum, nil
}

func (f *fakeSource) PaymentsSince(context.Context, string, time.Time) (int, error) {
	return f.recent, nil
}

func (f *fakeSource) PayeeAccount(context.Context, string) (time.Duration, bool, error) {
	return f.accountAge, f.resolvable, nil
}

func (f *fakeSource) DisputesAgainst(context.Context, string, time.Time) (int, int, error) {
	return f.disputes, f.lost, nil
}

func (f *fakeSource) CompletedContracts(context.Context, string) (int, error) {
	return f.completed, nil
}

func (f *fakeSource) MilestoneSnapshot(context.Context, string) (MilestoneSnapshot, error) {
	if f.milestone == nil {
		return MilestoneSnapshot{}, nil
	}
	return *f.milestone, nil
}

type fakeRecorder struct {
	checks []CheckRecord
	alerts []Alert
}

func (f *fakeRecorder) RecordCheck(_ context.Context, rec CheckRecord) error {
	f.checks = append(f.checks, rec)
	return nil
}

func (f *fakeRecorder) RecordAlerts(_ context.Context, alerts []Alert) error {
	f.alerts = append(f.alerts, alerts...)
	return nil
}

// healthySource models an established payee with a clean history so only the
// rule under test can trigger.
func healthySource() *fakeSource {
	return &fakeSource{
		contract: ContractSnapshot{
			Total:        10000,
			CreatedAt:    time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
			ClientID:     "client-1",
			EnterpriseID: "enterprise-1",
		},
		resolvable: true,
		accountAge: 400 * 24 * time.Hour,
		completed:  3,
	}
}

func newTestEngine(src Source, rec Recorder) *Engine {
	eng := NewEngine(src, rec, config.Default().Fraud, logging.NewNop())
	// Mid-afternoon weeks after contract creation, so timing rules stay quiet.
	eng.now = func() time.Time {
		return time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	}
	return eng
}

func TestCheckDepositRatioFlagsWithoutBlocking(t *testing.T) {
	src := healthySource()
	rec := &fakeRecorder{}
	eng := newTestEngine(src, rec)

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		PaymentType: "deposit",
		Amount:      4000,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	if res.TotalScore < 40 {
		t.Errorf("expected score >= 40 for a 40%% deposit, got %d", res.TotalScore)
	}
	if res.ShouldBlock {
		t.Errorf("a 40%% deposit must flag, not block")
	}
	if !res.RequiresReview {
		t.Errorf("expected manual review flag")
	}
	if !contains(res.RulesTriggered, "deposit_ratio") {
		t.Errorf("expected deposit_ratio in triggered rules, got %v", res.RulesTriggered)
	}
	if len(rec.checks) != 1 {
		t.Fatalf("expected one recorded check, got %d", len(rec.checks))
	}
}

func TestCheckDepositRatioCritical(t *testing.T) {
	src := healthySource()
	eng := newTestEngine(src, &fakeRecorder{})

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		PaymentType: "deposit",
		Amount:      5500,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !res.ShouldBlock {
		t.Errorf("a 55%% deposit must block, score was %d", res.TotalScore)
	}
	if res.RiskLevel != RiskCritical {
		t.Errorf("expected critical risk, got %s", res.RiskLevel)
	}
}

func TestCheckContractOverrun(t *testing.T) {
	cases := []struct {
		name      string
		settled   float64
		amount    float64
		wantScore int
		wantBlock bool
		wantRule  bool
	}{
		{name: "within total", settled: 5000, amount: 4000, wantScore: 0},
		{name: "slight overrun allowed", settled: 9800, amount: 500, wantScore: 30, wantRule: true},
		{name: "hard stop past ceiling", settled: 9800, amount: 800, wantScore: 100, wantBlock: true, wantRule: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := healthySource()
			src.settledSum = tc.settled
			eng := newTestEngine(src, &fakeRecorder{})

			res, err := eng.Check(context.Background(), Request{
				ContractID:  "contract-1",
				PaymentType: "milestone",
				Amount:      tc.amount,
				PayeeID:     "enterprise-1",
			})
			if err != nil {
				t.Fatalf("check failed: %v", err)
			}
			if res.TotalScore != tc.wantScore {
				t.Errorf("score = %d, want %d (rules %v)", res.TotalScore, tc.wantScore, res.RulesTriggered)
			}
			if res.ShouldBlock != tc.wantBlock {
				t.Errorf("shouldBlock = %v, want %v", res.ShouldBlock, tc.wantBlock)
			}
			if tc.wantRule != contains(res.RulesTriggered, "contract_overrun") {
				t.Errorf("contract_overrun triggered = %v, want %v", !tc.wantRule, tc.wantRule)
			}
		})
	}
}

func TestCheckVelocityAndYoungAccountCompound(t *testing.T) {
	src := healthySource()
	src.recent = 2
	src.accountAge = 10 * 24 * time.Hour
	eng := newTestEngine(src, &fakeRecorder{})

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		PaymentType: "milestone",
		Amount:      1000,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	// 35 (velocity) + 25 (young account) sum; rules never average.
	if res.TotalScore != 60 {
		t.Errorf("score = %d, want 60", res.TotalScore)
	}
	if res.RiskLevel != RiskHigh {
		t.Errorf("risk = %s, want high", res.RiskLevel)
	}
}

func TestCheckUnresolvablePayee(t *testing.T) {
	src := healthySource()
	src.resolvable = false
	eng := newTestEngine(src, &fakeRecorder{})

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		PaymentType: "milestone",
		Amount:      1000,
		PayeeID:     "ghost",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !contains(res.RulesTriggered, "account_age") {
		t.Fatalf("expected account_age rule, got %v", res.RulesTriggered)
	}
	if res.TotalScore < 50 {
		t.Errorf("unresolvable payee scores at least 50, got %d", res.TotalScore)
	}
}

func TestCheckDisputeHistoryCapped(t *testing.T) {
	src := healthySource()
	src.disputes = 4
	src.lost = 3
	eng := newTestEngine(src, &fakeRecorder{})

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		PaymentType: "milestone",
		Amount:      1000,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	// 15*4 + 30*3 = 150, capped at 75.
	if res.TotalScore != 75 {
		t.Errorf("score = %d, want capped 75", res.TotalScore)
	}
}

func TestCheckProofSufficiency(t *testing.T) {
	captured := time.Date(2025, 3, 9, 11, 0, 0, 0, time.UTC)
	src := healthySource()
	src.milestone = &MilestoneSnapshot{
		Amount: 6000,
		Proofs: []proof.Proof{
			{Type: proof.TypePhoto, Name: "site.jpg", FileRef: "f1", CapturedAt: &captured},
		},
	}
	eng := newTestEngine(src, &fakeRecorder{})

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		MilestoneID: "milestone-1",
		PaymentType: "milestone",
		Amount:      6000,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !contains(res.RulesTriggered, "proof_sufficiency") {
		t.Fatalf("expected proof_sufficiency, got %v", res.RulesTriggered)
	}
	// 20 for proof count, 10 for the photo missing geolocation.
	if res.TotalScore < 30 {
		t.Errorf("score = %d, want >= 30", res.TotalScore)
	}
}

func TestCheckAmountVariance(t *testing.T) {
	src := healthySource()
	src.milestone = &MilestoneSnapshot{Amount: 2000}
	eng := newTestEngine(src, &fakeRecorder{})

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		MilestoneID: "milestone-1",
		PaymentType: "milestone",
		Amount:      2600,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !contains(res.RulesTriggered, "amount_variance") {
		t.Errorf("30%% over the agreed amount must trigger amount_variance, got %v", res.RulesTriggered)
	}
}

func TestCheckBehaviorPattern(t *testing.T) {
	src := healthySource()
	eng := newTestEngine(src, &fakeRecorder{})
	// Three in the morning, twelve hours after contract signature.
	src.contract.CreatedAt = time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	eng.now = func() time.Time {
		return time.Date(2025, 3, 10, 3, 30, 0, 0, time.UTC)
	}

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		PaymentType: "milestone",
		Amount:      1000,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !contains(res.RulesTriggered, "behavior_pattern") {
		t.Fatalf("expected behavior_pattern, got %v", res.RulesTriggered)
	}
	out, ok := res.Details["behavior_pattern"].(map[string]any)
	if !ok {
		t.Fatalf("expected behavior_pattern details")
	}
	if _, ok := out["hours_since_contract"]; !ok {
		t.Errorf("expected the within-24h component to trigger")
	}
	if _, ok := out["request_hour"]; !ok {
		t.Errorf("expected the off-hours component to trigger")
	}
}

func TestCheckMaterializesAlertsForHighRisk(t *testing.T) {
	src := healthySource()
	src.recent = 2
	src.accountAge = 5 * 24 * time.Hour
	rec := &fakeRecorder{}
	eng := newTestEngine(src, rec)

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		PaymentType: "milestone",
		Amount:      1000,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if res.RiskLevel != RiskHigh {
		t.Fatalf("expected high risk, got %s", res.RiskLevel)
	}
	if len(rec.alerts) != len(res.RulesTriggered) {
		t.Errorf("expected one alert per triggered rule, got %d for %v", len(rec.alerts), res.RulesTriggered)
	}
}

func TestCheckCleanRequestStaysQuiet(t *testing.T) {
	rec := &fakeRecorder{}
	eng := newTestEngine(healthySource(), rec)

	res, err := eng.Check(context.Background(), Request{
		ContractID:  "contract-1",
		PaymentType: "milestone",
		Amount:      2000,
		PayeeID:     "enterprise-1",
	})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if res.TotalScore != 0 {
		t.Errorf("clean request scored %d via %v", res.TotalScore, res.RulesTriggered)
	}
	if res.RiskLevel != RiskLow {
		t.Errorf("risk = %s, want low", res.RiskLevel)
	}
	if len(rec.alerts) != 0 {
		t.Errorf("no alerts expected for a low-risk result")
	}
	if len(rec.checks) != 1 {
		t.Errorf("every evaluation is recorded, even clean ones")
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
