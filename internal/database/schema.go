package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order at startup.  Every statement is idempotent.
// Foreign keys cascade so that deleting an account removes its listings,
// and deleting a listing removes its conversations and their messages.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		display_name  VARCHAR(100) NOT NULL DEFAULT '',
		phone         VARCHAR(32)  NOT NULL DEFAULT '',
		role          VARCHAR(16)  NOT NULL DEFAULT 'user',
		banned_until  DATETIME NULL,
		ban_reason    TEXT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES accounts(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS listings (
		id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		seller_id        BIGINT UNSIGNED NOT NULL,
		status           VARCHAR(16) NOT NULL DEFAULT 'pending',
		rejection_reason TEXT NULL,
		hidden_reason    TEXT NULL,
		buyer_id         BIGINT UNSIGNED NULL,
		title            VARCHAR(200) NOT NULL,
		price_cents      BIGINT NOT NULL,
		description      TEXT NOT NULL,
		category         VARCHAR(64) NOT NULL,
		sub_category     VARCHAR(64) NOT NULL,
		item_condition   VARCHAR(32) NOT NULL,
		images           JSON NOT NULL,
		meetup_area      VARCHAR(200) NOT NULL DEFAULT '',
		show_contact     TINYINT(1) NOT NULL DEFAULT 0,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_listings_status (status, created_at),
		INDEX idx_listings_seller (seller_id),
		CONSTRAINT fk_listings_seller FOREIGN KEY (seller_id) REFERENCES accounts(id) ON DELETE CASCADE,
		CONSTRAINT fk_listings_buyer FOREIGN KEY (buyer_id) REFERENCES accounts(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		listing_id     BIGINT UNSIGNED NOT NULL,
		buyer_id       BIGINT UNSIGNED NOT NULL,
		seller_id      BIGINT UNSIGNED NOT NULL,
		buyer_deleted  TINYINT(1) NOT NULL DEFAULT 0,
		seller_deleted TINYINT(1) NOT NULL DEFAULT 0,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY ux_conversation_listing_buyer (listing_id, buyer_id),
		INDEX idx_conversations_seller (seller_id),
		CONSTRAINT fk_conversations_listing FOREIGN KEY (listing_id) REFERENCES listings(id) ON DELETE CASCADE,
		CONSTRAINT fk_conversations_buyer FOREIGN KEY (buyer_id) REFERENCES accounts(id) ON DELETE CASCADE,
		CONSTRAINT fk_conversations_seller FOREIGN KEY (seller_id) REFERENCES accounts(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS messages (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		conversation_id BIGINT UNSIGNED NOT NULL,
		sender_id       BIGINT UNSIGNED NOT NULL,
		content         TEXT NOT NULL,
		is_read         TINYINT(1) NOT NULL DEFAULT 0,
		created_at      DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_messages_conversation (conversation_id, created_at),
		INDEX idx_messages_unread (is_read, sender_id),
		CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reviews (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		item_id    BIGINT UNSIGNED NOT NULL UNIQUE,
		buyer_id   BIGINT UNSIGNED NOT NULL,
		seller_id  BIGINT UNSIGNED NOT NULL,
		rating     TINYINT UNSIGNED NOT NULL,
		comment    TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_reviews_seller (seller_id),
		CONSTRAINT fk_reviews_item FOREIGN KEY (item_id) REFERENCES listings(id) ON DELETE CASCADE,
		CONSTRAINT fk_reviews_buyer FOREIGN KEY (buyer_id) REFERENCES accounts(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reports (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		reporter_id BIGINT UNSIGNED NOT NULL,
		target_type VARCHAR(16) NOT NULL,
		target_id   BIGINT UNSIGNED NOT NULL,
		reason      TEXT NOT NULL,
		status      VARCHAR(16) NOT NULL DEFAULT 'open',
		handled_by  BIGINT UNSIGNED NULL,
		handled_at  DATETIME NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_reports_status (status, created_at),
		CONSTRAINT fk_reports_reporter FOREIGN KEY (reporter_id) REFERENCES accounts(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
