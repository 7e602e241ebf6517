package domains

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// Source records which rule produced a TenantDomain
type Source string

const (
	SourceForced    Source = "forced"
	SourceSingleOrg Source = "single_org"
	SourceSubdomain Source = "subdomain"
	SourceCustom    Source = "custom_domain"
	SourceFallback  Source = "fallback"
	SourceNone      Source = "none"
)

// DefaultReservedSubdomains are labels that never name an organization
var DefaultReservedSubdomains = []string{"app", "api", "www", "console", "auth", "admin", "docs", "status"}

// Config holds the deployment-wide inputs of domain resolution
type Config struct {
	// AllowedHosts are the base hostnames organizations live under, e.g. cal.com
	AllowedHosts []string
	// ReservedSubdomains never resolve to an organization
	ReservedSubdomains []string
	// SingleOrgSlug pins every request to one organization when set
	SingleOrgSlug string
	// TrustedForwardedHosts lists X-Forwarded-Host values that may override Host
	TrustedForwardedHosts []string
}

// Options carries per-request inputs
type Options struct {
	// ForcedSlug comes from a trusted platform-internal signal and wins outright.
	// It must never be populated from client-controlled input.
	ForcedSlug string
	// FallbackSlug is used when the hostname does not name a valid organization
	FallbackSlug string
}

// TenantDomain is the organization context of a single request
type TenantDomain struct {
	OrgSlug          string `json:"orgSlug,omitempty"`
	IsValidOrgDomain bool   `json:"isValidOrgDomain"`
	IsCustomDomain   bool   `json:"isCustomDomain"`
	// Host is the normalized hostname; for custom domains it is the domain to verify
	Host   string `json:"host,omitempty"`
	Source Source `json:"source"`
}

// HasOrg reports whether an organization slug was resolved
func (d TenantDomain) HasOrg() bool {
	return d.OrgSlug != ""
}

// VerifiedDomainStore looks up custom domains organizations have verified
type VerifiedDomainStore interface {
	VerifiedOrgSlug(ctx context.Context, domain string) (slug string, found bool, err error)
}

// Resolver classifies hostnames. It is safe for concurrent use.
type Resolver struct {
	allowedHosts   []string
	reserved       map[string]struct{}
	singleOrgSlug  string
	trustedForward map[string]struct{}
}

// NewResolver normalizes cfg into a Resolver
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		reserved:       toSet(cfg.ReservedSubdomains),
		singleOrgSlug:  strings.TrimSpace(cfg.SingleOrgSlug),
		trustedForward: toSet(cfg.TrustedForwardedHosts),
	}
	for _, h := range cfg.AllowedHosts {
		if h = NormalizeHost(h); h != "" {
			r.allowedHosts = append(r.allowedHosts, h)
		}
	}
	return r
}

// Resolve classifies hostname without consulting any store.
//
// A hostname outside every allowed base host is returned as a custom domain
// candidate (IsCustomDomain, valid, no slug). Callers must confirm it
// against a VerifiedDomainStore before trusting it; ResolveVerified does so.
func (r *Resolver) Resolve(hostname string, opts Options) TenantDomain {
	if d, ok := r.trusted(opts); ok {
		return d
	}

	host := NormalizeHost(hostname)
	if d, ok := r.classify(host); ok {
		return d
	}
	return r.fallback(host, opts)
}

// ResolveVerified is Resolve with custom domains confirmed against store.
// A verified custom domain takes precedence over the subdomain rules. An
// unverified candidate does not resolve. A store error is returned along
// with the result computed as if the domain were unverified.
func (r *Resolver) ResolveVerified(ctx context.Context, hostname string, opts Options, store VerifiedDomainStore) (TenantDomain, error) {
	if d, ok := r.trusted(opts); ok {
		return d, nil
	}

	host := NormalizeHost(hostname)
	var lookupErr error
	if store != nil && strings.Contains(host, ".") {
		slug, found, err := store.VerifiedOrgSlug(ctx, host)
		if err != nil {
			lookupErr = fmt.Errorf("verified domain lookup for %q: %w", host, err)
		} else if found && !r.isReserved(slug) {
			return TenantDomain{OrgSlug: slug, IsValidOrgDomain: true, IsCustomDomain: true, Host: host, Source: SourceCustom}, nil
		}
	}

	d, ok := r.classify(host)
	if ok && !d.IsCustomDomain {
		return d, lookupErr
	}
	return r.fallback(host, opts), lookupErr
}

func (r *Resolver) trusted(opts Options) (TenantDomain, bool) {
	if slug := strings.TrimSpace(opts.ForcedSlug); slug != "" {
		return TenantDomain{OrgSlug: slug, IsValidOrgDomain: true, Source: SourceForced}, true
	}
	if r.singleOrgSlug != "" {
		return TenantDomain{OrgSlug: r.singleOrgSlug, IsValidOrgDomain: true, Source: SourceSingleOrg}, true
	}
	return TenantDomain{}, false
}

// classify applies the hostname rules. ok is false when the hostname does
// not name a valid organization.
func (r *Resolver) classify(host string) (TenantDomain, bool) {
	if !strings.Contains(host, ".") {
		return TenantDomain{}, false
	}

	base, matched := r.matchBase(host)
	if !matched {
		return TenantDomain{IsValidOrgDomain: true, IsCustomDomain: true, Host: host, Source: SourceCustom}, true
	}

	label := strings.TrimSuffix(strings.TrimSuffix(host, base), ".")
	if label == "" || strings.Contains(label, ".") || r.isReserved(label) {
		return TenantDomain{}, false
	}
	return TenantDomain{OrgSlug: label, IsValidOrgDomain: true, Host: host, Source: SourceSubdomain}, true
}

func (r *Resolver) fallback(host string, opts Options) TenantDomain {
	slug := strings.ToLower(strings.TrimSpace(opts.FallbackSlug))
	if slug != "" && !r.isReserved(slug) {
		return TenantDomain{OrgSlug: slug, IsValidOrgDomain: true, Host: host, Source: SourceFallback}
	}
	return TenantDomain{Host: host, Source: SourceNone}
}

// matchBase returns the longest allowed base host that host equals or is a subdomain of
func (r *Resolver) matchBase(host string) (string, bool) {
	best := ""
	for _, base := range r.allowedHosts {
		if host != base && !strings.HasSuffix(host, "."+base) {
			continue
		}
		if len(base) > len(best) {
			best = base
		}
	}
	return best, best != ""
}

func (r *Resolver) isReserved(label string) bool {
	_, ok := r.reserved[strings.ToLower(label)]
	return ok
}

// NormalizeHost lowercases host and strips any port and trailing dot
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
