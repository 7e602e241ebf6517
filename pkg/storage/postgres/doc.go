// Package postgres implements gatehouse's persistence lookups on PostgreSQL.
//
// A single Store backs feature flags, PBAC memberships and custom roles,
// OAuth clients, organization and custom domain lookups, API key and
// session authentication, and account locks. Reads go to a round-robin
// replica when configured; writes go to the primary.
//
//	db, err := postgres.Open(ctx, postgres.ConnectionConfig{PrimaryURL: url}, logger)
//	if err := postgres.Migrate(ctx, db.Primary()); err != nil { ... }
//	store := postgres.NewStore(db)
package postgres
