package fetch

import (
	"net/http"
	"strings"
)

// BlockType names the anti-bot wall a response ran into.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockRestricted BlockType = "access_restricted"
	BlockJSShell    BlockType = "js_shell"
)

// blockSignature pairs page markers with the wall they indicate.
type blockSignature struct {
	kind    BlockType
	markers []string
}

// blockSignatures in match order. The Japanese interstitials lead: Mercari
// and Yahoo serve them with a 200 and no vendor headers, so without the
// body markers they read as an ordinary page with zero listings.
var blockSignatures = []blockSignature{
	{BlockRestricted, []string{
		"アクセスが集中しています",
		"お客様のアクセスは一時的に制限されています",
		"一時的にアクセスを制限しております",
		"しばらく時間をおいてから再度アクセスしてください",
	}},
	{BlockCaptcha, []string{
		"captcha",
		"recaptcha",
		"hcaptcha",
		"画像認証",
	}},
	{BlockCloudflare, []string{
		"checking your browser",
		"cf-browser-verification",
		"just a moment...",
	}},
}

// DetectBlock classifies an HTTP response as an anti-bot wall. Block pages
// come back with 200s often enough that the body markers matter as much as
// the status code.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}
	if fromCloudflareEdge(resp) {
		return true, BlockCloudflare
	}

	lower := strings.ToLower(string(body))
	for _, sig := range blockSignatures {
		for _, marker := range sig.markers {
			if strings.Contains(lower, marker) {
				return true, sig.kind
			}
		}
	}

	if looksLikeJSShell(lower, len(body)) {
		return true, BlockJSShell
	}
	return false, BlockNone
}

// fromCloudflareEdge reports a challenge answered at the edge: 403/503
// carrying Cloudflare's headers.
func fromCloudflareEdge(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	h := resp.Header
	return h.Get("cf-ray") != "" ||
		h.Get("cf-cache-status") != "" ||
		strings.EqualFold(h.Get("server"), "cloudflare")
}

// jsShellMaxBytes bounds how small a body must be before a noscript or
// meta-refresh page counts as a JavaScript-only shell; real listing pages
// carry far more markup even when they mention noscript.
const jsShellMaxBytes = 2048

func looksLikeJSShell(lower string, size int) bool {
	if size >= jsShellMaxBytes {
		return false
	}
	if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
		return true
	}
	return strings.Contains(lower, `meta http-equiv="refresh"`)
}
