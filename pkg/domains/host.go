package domains

import (
	"net/http"
	"strings"
)

// ForwardedHostHeader is the proxy header carrying the client-facing host
const ForwardedHostHeader = "X-Forwarded-Host"

// EffectiveHost returns the host a request should be classified by.
//
// X-Forwarded-Host is only honored when its first comma-separated entry,
// trimmed and lowercased, is in the trusted list. Otherwise the direct Host
// header is used.
func (r *Resolver) EffectiveHost(req *http.Request) string {
	if forwarded := req.Header.Get(ForwardedHostHeader); forwarded != "" && len(r.trustedForward) > 0 {
		first := forwarded
		if i := strings.IndexByte(first, ','); i >= 0 {
			first = first[:i]
		}
		first = strings.ToLower(strings.TrimSpace(first))
		if _, ok := r.trustedForward[first]; ok {
			return first
		}
	}
	return req.Host
}
