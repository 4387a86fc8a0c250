package chatui

// SessionProbeScript resolves to true when the page shows a signed-in user:
// either the app exposes session data, or the composer is present together
// with chat history or a plan badge and no temporary-chat banner.
func SessionProbeScript() string {
	return `async () => {
		try {
			const res = await fetch('/api/auth/session', { credentials: 'include' });
			if (res.ok) {
				const data = await res.json();
				if (data && (data.accessToken || (data.user && data.user.id))) {
					return true;
				}
			}
		} catch (e) {}

		const next = window.__NEXT_DATA__;
		if (next && next.props && next.props.pageProps && next.props.pageProps.user) {
			return true;
		}

		const composer = document.querySelector('#prompt-textarea, [data-testid="prompt-textarea"]');
		const history = document.querySelector('nav [href^="/c/"], [data-testid="history-item-0"], nav ol li');
		const badge = document.querySelector('[data-testid="accounts-profile-button"], [data-testid="plan-badge"], [data-testid="profile-button"]');
		const temporary = document.querySelector('` + TemporaryChatBanner + `')
			|| Array.from(document.querySelectorAll('h1, h2, div')).some(el => /temporary chat/i.test(el.textContent || '') && el.children.length === 0);

		return !!composer && (!!history || !!badge) && !temporary;
	}`
}

// ReadClipboardScript resolves to the clipboard text, or "" when reading is
// not permitted.
func ReadClipboardScript() string {
	return `async () => {
		try {
			return await navigator.clipboard.readText();
		} catch (e) {
			return '';
		}
	}`
}
