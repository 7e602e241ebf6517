package cache

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Key namespaces. Every key starts with one of these so distinct logical
// checks never share a key.
const (
	NamespaceFeature    = "feature"
	NamespacePermission = "pbac"
	NamespaceOrg        = "org"
)

// Key builds a key under namespace from escaped parts
func Key(namespace string, parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, namespace)
	for _, p := range parts {
		escaped = append(escaped, url.QueryEscape(p))
	}
	return join(escaped...)
}

// FeatureKey identifies "is feature enabled for tenant"
func FeatureKey(tenantID int64, feature string) string {
	return join(NamespaceFeature, "tenant", itoa(tenantID), "flag", url.QueryEscape(feature))
}

// PermissionKey identifies "does user hold all permissions within tenant".
// The permission list is deduplicated and sorted so equivalent sets in any
// order produce the same key.
func PermissionKey(userID, tenantID int64, permissions []string) string {
	return join(NamespacePermission, "user", itoa(userID), "tenant", itoa(tenantID), "perms", canonicalList(permissions))
}

// OrgExistsKey identifies "organization exists"
func OrgExistsKey(orgID int64) string {
	return join(NamespaceOrg, "exists", itoa(orgID))
}

// Namespace returns the namespace tag of a key built by this package
func Namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

func canonicalList(items []string) string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, url.QueryEscape(item))
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
