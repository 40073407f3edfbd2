package protocol

import "net/url"

// QRPayload wraps a request URI into the iden3comm deep link a wallet scans.
// The wallet fetches the actual request envelope from the URI.
func QRPayload(requestURI string) string {
	return "iden3comm://?request_uri=" + url.QueryEscape(requestURI)
}
