package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"civicdesk/internal/identity"
	id "civicdesk/pkg/domain"
)

func TestComposeConsentReminderUsesDisplayName(t *testing.T) {
	msg := ComposeConsentReminder(identity.Profile{
		ID:          id.NewUserID(),
		DisplayName: "Ada Okafor",
		Email:       "ada.okafor@example.org",
	}, []string{"terms_of_service", "privacy_policy"})

	assert.Equal(t, KindConsentReminder, msg.Kind)
	assert.Contains(t, msg.Body, "Ada Okafor")
	assert.Contains(t, msg.Body, "terms_of_service, privacy_policy")
}

func TestComposeFallsBackToEmailLocalPart(t *testing.T) {
	msg := ComposeVerificationResult(identity.Profile{
		ID:    id.NewUserID(),
		Email: "jae.park+work@city.gov",
	}, true)

	assert.Equal(t, KindVerificationApproved, msg.Kind)
	assert.Contains(t, msg.Body, "Hi Jae,")
}

func TestComposeVerificationRejected(t *testing.T) {
	msg := ComposeVerificationResult(identity.Profile{
		ID:          id.NewUserID(),
		DisplayName: "Sam",
		Email:       "sam@city.gov",
	}, false)

	assert.Equal(t, KindVerificationRejected, msg.Kind)
	assert.Contains(t, msg.Subject, "declined")
}
