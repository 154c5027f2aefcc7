// Package gorm provides a relational CredentialStore built on GORM.
//
// Accounts live in the accounts table with a unique index on the
// normalized email; linked providers live in account_providers keyed by
// (account_id, name). Any GORM dialect works; the server binary wires
// PostgreSQL and SQLite.
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	if err := gormstore.AutoMigrate(db); err != nil { ... }
//	store := gormstore.NewAccountStore(db)
package gorm
