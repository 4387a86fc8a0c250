// Package chatui describes the target chat application's DOM: the element
// signatures the flows look for and the scripts they evaluate in the page.
package chatui

import (
	"fmt"
	"strings"
)

// Composer signatures, most specific first.
var ComposerCandidates = []string{
	`#prompt-textarea`,
	`[data-testid="prompt-textarea"]`,
	`div[contenteditable="true"][role="textbox"]`,
	`form textarea`,
}

const (
	AssistantMessage = `[data-message-author-role="assistant"]`
	MessageIDAttr    = "data-message-id"

	ModelPicker = `[data-testid="model-switcher-dropdown-button"]`
	ModelMenu   = `[role="menu"]`

	CopyButton = `[data-testid="copy-turn-action-button"]`

	TemporaryChatBanner = `[data-testid="temporary-chat-banner"]`
)

// Login entry points on the logged-out landing page.
var LoginEntryCandidates = []string{
	`[data-testid="login-button"]`,
	`button:has-text("Log in")`,
	`a:has-text("Log in")`,
}

var IdentityInputCandidates = []string{
	`input[name="email"]`,
	`input[type="email"]`,
	`input[name="username"]`,
	`#email-input`,
}

var SecretInputCandidates = []string{
	`input[name="password"]`,
	`input[type="password"]`,
	`#password`,
}

var ContinueCandidates = []string{
	`button[type="submit"]:visible`,
	`button:has-text("Continue"):visible`,
	`button:has-text("Next"):visible`,
}

// VerificationInputCandidates are the one-time-code input signatures. A
// signature matching several elements is a row of single-digit boxes.
var VerificationInputCandidates = []string{
	`input[autocomplete="one-time-code"]`,
	`input[name="code"]`,
	`input[inputmode="numeric"][maxlength="1"]`,
	`input[id*="code" i]`,
	`input[placeholder*="code" i]`,
}

// ResendCodeCandidates trigger the code email on UIs that wait for the user.
var ResendCodeCandidates = []string{
	`button:has-text("Resend"):visible`,
	`button:has-text("Send code"):visible`,
	`button:has-text("email code"):visible`,
	`button:has-text("Email code"):visible`,
	`a:has-text("Resend"):visible`,
}

var ConfirmCandidates = []string{
	`button:has-text("Continue"):visible`,
	`button:has-text("Verify"):visible`,
	`button:has-text("Submit"):visible`,
	`button[type="submit"]:visible`,
}

// SessionCookies are cookie names only present for a signed-in user.
var SessionCookies = []string{
	"__Secure-next-auth.session-token",
	"__Secure-next-auth.session-token.0",
	"__Secure-next-auth.session-token.1",
}

// Nth narrows selector to its n-th match; negative n counts from the end.
func Nth(selector string, n int) string {
	return fmt.Sprintf("%s >> nth=%d", selector, n)
}

// Last narrows selector to its final match.
func Last(selector string) string {
	return Nth(selector, -1)
}

// ModelOption is the picker menu item for a catalog target id.
func ModelOption(targetID string) string {
	return fmt.Sprintf(`[data-testid="%s"]`, escapeAttr(targetID))
}

// MenuItemWithText matches a visible menu item containing label.
func MenuItemWithText(label string) string {
	return fmt.Sprintf(`[role="menuitem"]:has-text("%s"):visible`, escapeAttr(label))
}

// CopyButtonFor is the copy control in the turn that holds messageID.
func CopyButtonFor(messageID string) string {
	return fmt.Sprintf(`article:has([%s="%s"]) %s`, MessageIDAttr, escapeAttr(messageID), CopyButton)
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
