package db

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		booking_number VARCHAR(40) NOT NULL UNIQUE,
		status VARCHAR(32) NOT NULL,
		payment_status VARCHAR(16) NOT NULL,
		refund_status VARCHAR(16) NULL,
		version BIGINT NOT NULL,
		customer_id VARCHAR(64) NOT NULL,
		driver_id VARCHAR(64) NULL,
		total_amount BIGINT NOT NULL,
		document JSON NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_bookings_status (status),
		KEY idx_bookings_payment_status (payment_status),
		KEY idx_bookings_refund_status (refund_status),
		KEY idx_bookings_created_at (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_audit (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		booking_id BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		updated_by VARCHAR(64) NOT NULL,
		updated_by_model VARCHAR(16) NOT NULL,
		reason TEXT NULL,
		notes TEXT NULL,
		created_at DATETIME(6) NOT NULL,
		KEY idx_booking_audit_booking (booking_id, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		booking_id BIGINT NOT NULL,
		leg VARCHAR(16) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		outcome VARCHAR(16) NULL,
		amount BIGINT NOT NULL,
		reference VARCHAR(128) NULL,
		idempotency_key VARCHAR(191) NULL,
		actor VARCHAR(64) NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_ledger_idempotency (idempotency_key),
		KEY idx_ledger_booking (booking_id, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables the store needs when they are missing.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// NullIfEmpty stores optional strings as NULL.
func NullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
