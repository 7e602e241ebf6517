// Package audit records security events of the authorization layer.
//
// # Event Types
//
// authz.access_denied: a hard-mode tenant guard or a scope guard rejected a request
// autolock.account_locked: repeated rate limit violations locked an account
//
// # Sinks
//
// LogrusLogger writes events as structured log entries. DBLogger persists
// them to the audit_events table created by the storage migrations.
// MultiLogger fans an event out to several sinks:
//
//	sink := audit.NewMultiLogger(
//		audit.NewLogrusLogger(logger),
//		audit.NewDBLogger(db.Primary()),
//	)
//
// Search audit events:
//
//	events, err := dbLogger.Search(ctx, audit.SearchFilter{
//		Types: []audit.EventType{audit.EventTypeAccountLocked},
//		Limit: 50,
//	})
//
// Failing to record an event never fails the request that caused it.
package audit
