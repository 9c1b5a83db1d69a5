package notify

import (
	"fmt"
	"strings"
	"unicode"

	"civicdesk/internal/identity"
)

// ComposeConsentReminder builds the reminder sent when a user still has
// unaccepted or outdated consent requirements.
func ComposeConsentReminder(profile identity.Profile, missing []string) Message {
	return Message{
		UserID:  profile.ID,
		Email:   profile.Email,
		Kind:    KindConsentReminder,
		Subject: "Action needed: review your consent settings",
		Body: fmt.Sprintf("Hi %s, please review and accept the following before continuing: %s.",
			greetingName(profile), strings.Join(missing, ", ")),
	}
}

// ComposeVerificationResult builds the message for a verification decision.
func ComposeVerificationResult(profile identity.Profile, approved bool) Message {
	if approved {
		return Message{
			UserID:  profile.ID,
			Email:   profile.Email,
			Kind:    KindVerificationApproved,
			Subject: "Your official account is verified",
			Body:    fmt.Sprintf("Hi %s, your official account has been verified. You can now post updates and manage issue statuses.", greetingName(profile)),
		}
	}
	return Message{
		UserID:  profile.ID,
		Email:   profile.Email,
		Kind:    KindVerificationRejected,
		Subject: "Your verification request was declined",
		Body:    fmt.Sprintf("Hi %s, your verification request was declined. Contact your department administrator for details.", greetingName(profile)),
	}
}

// greetingName prefers the stored display name and falls back to a name
// derived from the email's local part.
func greetingName(profile identity.Profile) string {
	if name := strings.TrimSpace(profile.DisplayName); name != "" {
		return name
	}
	return nameFromEmail(profile.Email)
}

func nameFromEmail(email string) string {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}
	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "there"
	}
	return capitalize(parts[0])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
