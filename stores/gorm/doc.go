//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based memberauth.UserStore.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
//
// # Database Schema
//
// AutoMigrate creates a single members table with a unique index on email.
// The index is what keeps concurrent registrations of one email from both
// succeeding; SaveUser reports the violation as memberauth.ErrDuplicateEmail.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	userStore := gormstore.NewUserStore(db)
package gorm
