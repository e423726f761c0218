package database

import (
	"database/sql"
	"fmt"
)

// Schema contains the relational schema for detection storage. The
// detection_images rows are owned by their detection and go away with it.
const Schema = `
CREATE TABLE IF NOT EXISTS detections (
    id CHAR(36) PRIMARY KEY,
    seq BIGINT AUTO_INCREMENT UNIQUE,
    device_id VARCHAR(255) NOT NULL,
    image_url TEXT NOT NULL,
    status ENUM('noObjects', 'healthy', 'diseased', 'mixed') NOT NULL,
    confidence DOUBLE NULL,
    metadata JSON,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_detections_device (device_id),
    INDEX idx_detections_created (created_at)
);

CREATE TABLE IF NOT EXISTS detection_images (
    id CHAR(36) PRIMARY KEY,
    detection_id CHAR(36) NOT NULL,
    image_url TEXT NOT NULL,
    order_num INT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (detection_id) REFERENCES detections(id) ON DELETE CASCADE,
    INDEX idx_detection_images_detection (detection_id)
);
`

// InitializeSchema creates the tables if they do not exist. Requires a
// connection opened with multiStatements=true.
func InitializeSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
