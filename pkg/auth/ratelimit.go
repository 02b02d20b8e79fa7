package auth

import (
	"net"
	"net/http"
	"strings"
)

// ActorKey identifies the requester for rate limiting: the authenticated
// account when there is one, the remote IP otherwise.
func ActorKey(r *http.Request) string {
	if p, err := GetPrincipal(r.Context()); err == nil {
		return "acct:" + p.Account
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return "ip:" + ip
}
