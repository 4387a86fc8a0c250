package console

import (
	"chat-oracle/pkg/apperr"
	"fmt"
)

// FormatError renders err for the terminal. A rejected session gets a hint
// naming the login command for its profile.
func FormatError(err error, profile string) string {
	msg := "error: " + err.Error()

	if apperr.HasCode(err, apperr.CodeSessionInvalid) {
		if p, ok := apperr.Meta(err, apperr.MetaProfile); ok {
			if name, ok := p.(string); ok && name != "" {
				profile = name
			}
		}

		msg += fmt.Sprintf("\nhint: run `oracle login --profile %s` to sign in again", profile)
	}

	return msg
}
