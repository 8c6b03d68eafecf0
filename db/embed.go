// Package db provides the embedded database schema and seed catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedShops is the demo shop catalog loaded by the seed-db tool.
//
//go:embed seed/shops.json
var SeedShops []byte
