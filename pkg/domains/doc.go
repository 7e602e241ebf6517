// Package domains classifies the host of an inbound request into a tenant
// (organization) context.
//
// Organizations are reached either through a subdomain of one of the
// allowed base hosts (acme.cal.com) or through a custom domain they have
// verified (booking.acme.com). Resolve classifies a hostname without any
// I/O; ResolveVerified additionally consults a VerifiedDomainStore and is
// what the HTTP middleware uses.
//
// The host used for classification comes from EffectiveHost, which only
// honors X-Forwarded-Host when the forwarded value is explicitly trusted.
package domains
