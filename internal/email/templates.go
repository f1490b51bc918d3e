package email

import (
	"fmt"
	"strings"
)

// VerificationMessage arma el correo con el codigo o enlace de verificacion de cuenta.
func VerificationMessage(to, fullName, challenge string) Message {
	return Message{
		To:      to,
		Subject: "Email Verification",
		Body: fmt.Sprintf(
			"Hello %s,\n\nUse the following to verify your email address:\n\n    %s\n\nIf you did not create an account, you can ignore this email.\n",
			greetingName(fullName),
			challenge,
		),
	}
}

// VoteConfirmationMessage arma el correo que confirma un voto pendiente.
func VoteConfirmationMessage(to, question, optionText, challenge string) Message {
	return Message{
		To:      to,
		Subject: "Confirm your vote",
		Body: fmt.Sprintf(
			"You voted %q on %q.\n\nConfirm your vote with:\n\n    %s\n\nIf this was not you, ignore this email and the vote will not be counted.\n",
			optionText,
			question,
			challenge,
		),
	}
}

// PasswordResetMessage arma el correo con el enlace de restablecimiento.
func PasswordResetMessage(to, fullName, link string) Message {
	return Message{
		To:      to,
		Subject: "Kindly reset your password",
		Body: fmt.Sprintf(
			"Hello %s,\n\nFollow this link to reset your password:\n\n    %s\n\nThe link expires shortly. If you did not ask for a reset, ignore this email.\n",
			greetingName(fullName),
			link,
		),
	}
}

func greetingName(fullName string) string {
	name := strings.TrimSpace(fullName)
	if name == "" {
		return "there"
	}
	return name
}
