//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore CredentialStore.
//
// # Datastore Kinds
//
//   - Account: one entity per account, keyed by account id, with linked
//     providers stored inline
//   - AccountEmail: keyed by normalized email; claimed transactionally on
//     create so an email maps to at most one account
//
// Token lookups query the indexed token properties and confirm the match
// on the loaded entity.
//
// # Namespacing
//
// Pass a namespace to isolate tenants sharing a project:
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewAccountStore(client, "tenant-123")
package gae
