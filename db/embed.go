// Package db embeds the PostgreSQL schema for the coupon catalog and usage ledger.
package db

import _ "embed"

// Schema creates the coupons and coupon_usage tables. It is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
