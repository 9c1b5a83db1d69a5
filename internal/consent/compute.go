package consent

import (
	"time"

	id "civicdesk/pkg/domain"
)

// ComputeStatus derives the consent state from the records on file against
// the currently required set. It is a pure function so the admin list view,
// the detail view, and the onboarding gate can never drift apart.
//
// Precedence when several conditions hold: failed beats incomplete beats
// pending. A declined requirement is a decision the user made; showing
// "incomplete" for it would invite a reminder loop.
func ComputeStatus(userID id.UserID, records []Record, required []Requirement, now time.Time) Report {
	report := Report{UserID: userID, Status: StatusComplete, Percent: 100}
	if len(required) == 0 {
		return report
	}

	// Latest active decision per requirement type wins.
	latest := make(map[RequirementType]Record, len(records))
	for _, record := range records {
		if record.UserID != userID || !record.Active(now) {
			continue
		}
		if existing, ok := latest[record.Type]; !ok || record.DecidedAt.After(existing.DecidedAt) {
			latest[record.Type] = record
		}
	}

	current := 0
	for _, req := range required {
		record, ok := latest[req.Type]
		switch {
		case !ok:
			report.Missing = append(report.Missing, req.Type)
		case !record.Accepted:
			report.Declined = append(report.Declined, req.Type)
		case record.Version < req.Version:
			report.Outdated = append(report.Outdated, req.Type)
		default:
			current++
		}
	}

	report.Percent = current * 100 / len(required)
	switch {
	case len(report.Declined) > 0:
		report.Status = StatusFailed
	case len(report.Missing) > 0:
		report.Status = StatusIncomplete
	case len(report.Outdated) > 0:
		report.Status = StatusPending
	default:
		report.Status = StatusComplete
	}
	return report
}
