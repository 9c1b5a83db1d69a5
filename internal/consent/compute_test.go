package consent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "civicdesk/pkg/domain"
)

var (
	now      = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	required = []Requirement{
		{Type: RequirementTermsOfService, Version: 2},
		{Type: RequirementPrivacyPolicy, Version: 1},
		{Type: RequirementDataProcessing, Version: 1},
	}
)

func accepted(userID id.UserID, reqType RequirementType, version int, at time.Time) Record {
	return Record{UserID: userID, Type: reqType, Version: version, Accepted: true, DecidedAt: at}
}

func TestComputeStatus(t *testing.T) {
	userID := id.NewUserID()

	t.Run("no records is incomplete at zero percent", func(t *testing.T) {
		report := ComputeStatus(userID, nil, required, now)
		assert.Equal(t, StatusIncomplete, report.Status)
		assert.Equal(t, 0, report.Percent)
		assert.Len(t, report.Missing, 3)
	})

	t.Run("all current acceptances is complete", func(t *testing.T) {
		records := []Record{
			accepted(userID, RequirementTermsOfService, 2, now.Add(-time.Hour)),
			accepted(userID, RequirementPrivacyPolicy, 1, now.Add(-time.Hour)),
			accepted(userID, RequirementDataProcessing, 1, now.Add(-time.Hour)),
		}
		report := ComputeStatus(userID, records, required, now)
		assert.Equal(t, StatusComplete, report.Status)
		assert.Equal(t, 100, report.Percent)
	})

	t.Run("outdated version is pending", func(t *testing.T) {
		records := []Record{
			accepted(userID, RequirementTermsOfService, 1, now.Add(-time.Hour)), // required v2
			accepted(userID, RequirementPrivacyPolicy, 1, now.Add(-time.Hour)),
			accepted(userID, RequirementDataProcessing, 1, now.Add(-time.Hour)),
		}
		report := ComputeStatus(userID, records, required, now)
		assert.Equal(t, StatusPending, report.Status)
		assert.Equal(t, 66, report.Percent)
		assert.Equal(t, []RequirementType{RequirementTermsOfService}, report.Outdated)
	})

	t.Run("decline beats missing", func(t *testing.T) {
		records := []Record{
			{UserID: userID, Type: RequirementTermsOfService, Version: 2, Accepted: false, DecidedAt: now.Add(-time.Hour)},
		}
		report := ComputeStatus(userID, records, required, now)
		assert.Equal(t, StatusFailed, report.Status)
		assert.Equal(t, []RequirementType{RequirementTermsOfService}, report.Declined)
		assert.Len(t, report.Missing, 2)
	})

	t.Run("latest decision per type wins", func(t *testing.T) {
		records := []Record{
			{UserID: userID, Type: RequirementTermsOfService, Version: 2, Accepted: false, DecidedAt: now.Add(-2 * time.Hour)},
			accepted(userID, RequirementTermsOfService, 2, now.Add(-time.Hour)),
			accepted(userID, RequirementPrivacyPolicy, 1, now.Add(-time.Hour)),
			accepted(userID, RequirementDataProcessing, 1, now.Add(-time.Hour)),
		}
		report := ComputeStatus(userID, records, required, now)
		assert.Equal(t, StatusComplete, report.Status)
	})

	t.Run("revoked acceptance no longer counts", func(t *testing.T) {
		revokedAt := now.Add(-30 * time.Minute)
		record := accepted(userID, RequirementPrivacyPolicy, 1, now.Add(-time.Hour))
		record.RevokedAt = &revokedAt
		records := []Record{
			accepted(userID, RequirementTermsOfService, 2, now.Add(-time.Hour)),
			record,
			accepted(userID, RequirementDataProcessing, 1, now.Add(-time.Hour)),
		}
		report := ComputeStatus(userID, records, required, now)
		assert.Equal(t, StatusIncomplete, report.Status)
		assert.Equal(t, []RequirementType{RequirementPrivacyPolicy}, report.Missing)
	})

	t.Run("other users' records are ignored", func(t *testing.T) {
		records := []Record{
			accepted(id.NewUserID(), RequirementTermsOfService, 2, now.Add(-time.Hour)),
		}
		report := ComputeStatus(userID, records, required, now)
		assert.Equal(t, StatusIncomplete, report.Status)
		assert.Equal(t, 0, report.Percent)
	})

	t.Run("empty requirement set is trivially complete", func(t *testing.T) {
		report := ComputeStatus(userID, nil, nil, now)
		assert.Equal(t, StatusComplete, report.Status)
		assert.Equal(t, 100, report.Percent)
	})
}

func TestRegistryBumpForcesPending(t *testing.T) {
	userID := id.NewUserID()
	registry := DefaultRegistry()
	ctx := t.Context()

	store := NewInMemoryStore()
	service := NewService(store, registry)

	for _, reqType := range []RequirementType{RequirementTermsOfService, RequirementPrivacyPolicy, RequirementDataProcessing} {
		_, err := service.Decide(ctx, userID, reqType, 1, true)
		assert.NoError(t, err)
	}

	report, err := service.Status(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, StatusComplete, report.Status)

	// Legal publishes a new terms revision: status degrades without any new
	// writes to the user's records.
	registry.BumpVersion(RequirementTermsOfService)
	report, err = service.Status(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, report.Status)
	assert.Equal(t, 66, report.Percent)
}
