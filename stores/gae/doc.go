//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// memberauth.UserStore. It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - Member: one entity per user, keyed by the email itself
//
// Keying by email makes uniqueness a property of the key. SaveUser reads and
// writes inside one transaction, so two concurrent saves of the same email
// cannot both commit.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	userStore := gae.NewUserStore(client, "")  // default namespace
//	tenantStore := gae.NewUserStore(client, "tenant-123")
package gae
