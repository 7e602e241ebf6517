package httputil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// PathVar returns a mux path variable, or "" when absent
func PathVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// ParsePathInt64 extracts and parses an int64 path parameter.
// A missing parameter returns ok=false with no error.
func ParsePathInt64(r *http.Request, key string) (value int64, ok bool, err error) {
	str := PathVar(r, key)
	if str == "" {
		return 0, false, nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil || val <= 0 {
		return 0, true, fmt.Errorf("invalid %s: %q", key, str)
	}
	return val, true, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// FirstHeaderValue returns the first comma separated entry of a header,
// trimmed. Header lookup is case-insensitive.
func FirstHeaderValue(r *http.Request, name string) string {
	value := r.Header.Get(name)
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}
