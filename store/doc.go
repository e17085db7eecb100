// Package store groups the credential store implementations:
//
//   - memstore: a mutex-guarded in-memory store for tests, demos and small
//     single-process deployments.
//   - postgres: a PostgreSQL store using pgx and goose migrations.
//
// Both implement authcore.CredentialStore together with the optional
// authcore.AtomicUpdater, authcore.AccountCreator and authcore.AccountLister.
package store
