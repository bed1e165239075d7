package mail

import "fmt"

func VerificationEmail(to, username, link string) Message {
	return Message{
		To:      to,
		Subject: "Verify your PayPals email",
		Body: fmt.Sprintf("Hi %s,\n\nConfirm your email address to finish setting up PayPals:\n\n%s\n\n"+
			"If you did not sign up, you can ignore this message.\n", username, link),
	}
}

func InvitationEmail(to, inviterName, circleName, link string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s invited you to %s on PayPals", inviterName, circleName),
		Body: fmt.Sprintf("%s invited you to join the circle %q on PayPals.\n\n"+
			"Create an account with this email address to accept:\n\n%s\n\n"+
			"The invitation expires in 7 days.\n", inviterName, circleName, link),
	}
}

func ExternalShareEmail(to, name, creatorName, txnName, amount, link string) Message {
	if name == "" {
		name = "there"
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s split %q with you", creatorName, txnName),
		Body: fmt.Sprintf("Hi %s,\n\n%s added you to %q on PayPals. Your share is $%s.\n\n"+
			"View your share and pay with PayNow here (no account needed):\n\n%s\n", name, creatorName, txnName, amount, link),
	}
}
