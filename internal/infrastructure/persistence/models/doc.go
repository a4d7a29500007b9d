// Package models contains GORM persistence models that map to database tables.
// They are kept apart from domain entities so the domain layer stays free of
// ORM tags; repositories convert with ToDomain / FromDomain.
//
//   - base.go: common columns (id, timestamps, version)
//   - finance.go: contacts, invoices, payments and their allocation lines
//   - outbox.go: transactional outbox rows
package models
