package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
  id         VARCHAR(64)   NOT NULL PRIMARY KEY,
  title      VARCHAR(255)  NOT NULL,
  city       VARCHAR(128)  NOT NULL,
  venue      VARCHAR(255)  NOT NULL,
  starts_at  DATETIME      NOT NULL,
  price      DECIMAL(10,2) NOT NULL DEFAULT 0,
  media_url  VARCHAR(512)  NULL,
  created_at DATETIME      NOT NULL,
  updated_at DATETIME      NOT NULL,
  KEY idx_events_starts_at (starts_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS orders (
  code        VARCHAR(64)  NOT NULL PRIMARY KEY,
  event_id    VARCHAR(64)  NOT NULL,
  buyer_name  VARCHAR(255) NOT NULL,
  buyer_phone VARCHAR(32)  NOT NULL,
  quantity    INT          NOT NULL,
  created_at  DATETIME     NOT NULL,
  issued      TINYINT(1)   NOT NULL DEFAULT 0,
  issued_at   DATETIME     NULL,
  status      VARCHAR(16)  NOT NULL DEFAULT 'pending',
  used_at     DATETIME     NULL,
  KEY idx_orders_phone (buyer_phone),
  KEY idx_orders_event (event_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS support_tickets (
  id         VARCHAR(64) NOT NULL PRIMARY KEY,
  from_phone VARCHAR(32) NOT NULL,
  category   VARCHAR(64) NOT NULL,
  status     VARCHAR(16) NOT NULL,
  created_at DATETIME    NOT NULL,
  KEY idx_support_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS support_messages (
  id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
  ticket_id  VARCHAR(64)     NOT NULL,
  from_phone VARCHAR(32)     NOT NULL,
  body       TEXT            NOT NULL,
  sent_at    DATETIME        NOT NULL,
  KEY idx_support_messages_ticket (ticket_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables used by the MySQL store if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
