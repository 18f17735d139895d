package milestone

import (
	"fmt"
	"time"

	"escrowflow/proof"
)

// verifySubmission runs the automatic checks on a submission and produces an
// advisory score with human-readable alerts. Unlike the payment-time fraud
// battery this pass never blocks; it only labels the milestone for reviewers.
func verifySubmission(m Milestone, proofs []proof.Proof, report string, now time.Time) (Verification, RiskLabel) {
	v := Verification{VerifiedAt: now}

	photos := 0
	docs := 0
	for _, p := range proofs {
		switch p.Type {
		case proof.TypePhoto:
			photos++
		case proof.TypeDocument:
			docs++
		}
	}

	if m.Total > 3000 && photos < 2 {
		v.Score += 15
		v.Alerts = append(v.Alerts, fmt.Sprintf("only %d photo(s) for a %.0f milestone", photos, m.Total))
	}
	if m.Total > 5000 && docs == 0 {
		v.Score += 20
		v.Alerts = append(v.Alerts, "no supporting document for a large milestone")
	}
	if missing, total := proof.CountPhotosMissingMetadata(proofs); total > 0 && missing*2 > total {
		v.Score += 10
		v.Alerts = append(v.Alerts, fmt.Sprintf("%d of %d photos lack capture metadata", missing, total))
	}
	if m.PlannedAt != nil {
		if early := m.PlannedAt.Sub(now); early > 14*24*time.Hour {
			v.Score += 10
			v.Alerts = append(v.Alerts, fmt.Sprintf("submitted %d days before the planned date", int(early.Hours()/24)))
		}
	}
	if len(report) < 50 {
		v.Score += 5
		v.Alerts = append(v.Alerts, "completion report is very short")
	}

	return v, labelFor(v.Score)
}

func labelFor(score int) RiskLabel {
	switch {
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskMedium
	default:
		return RiskLow
	}
}
