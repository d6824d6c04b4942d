package security

import "strings"

const bearerScheme = "bearer"

// BearerToken extracts the credential from an Authorization header value of
// the form "Bearer <token>". The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// BearerSubprotocol extracts the credential from a Sec-WebSocket-Protocol
// header offering "bearer, <token>", the only way a browser websocket can
// carry one.
func BearerSubprotocol(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, ",")
	if !found || !strings.EqualFold(strings.TrimSpace(scheme), bearerScheme) {
		return "", false
	}
	token, _, _ = strings.Cut(token, ",")
	token = strings.TrimSpace(token)
	return token, token != ""
}
