package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"detection-service/models"
)

// DetectionService handles persistence of detections and their images.
type DetectionService struct {
	db *sql.DB
}

// NewDetectionService creates a new detection persistence service.
func NewDetectionService(db *sql.DB) *DetectionService {
	return &DetectionService{db: db}
}

// InsertDetection writes the authoritative detection row. The caller is
// expected to treat a failure here as a failure of the whole submission.
func (s *DetectionService) InsertDetection(ctx context.Context, d *models.Detection) error {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO detections (id, device_id, image_url, status, confidence, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.DeviceID, d.ImageURL, d.Status, d.Confidence, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// InsertDetectionImage writes one secondary image row.
func (s *DetectionService) InsertDetectionImage(ctx context.Context, img *models.DetectionImage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO detection_images (id, detection_id, image_url, order_num) VALUES (?, ?, ?, ?)`,
		img.ID, img.DetectionID, img.ImageURL, img.OrderNum)
	if err != nil {
		return fmt.Errorf("failed to insert detection image: %w", err)
	}
	return nil
}

// GetDetections returns detections newest first, with their images attached.
func (s *DetectionService) GetDetections(ctx context.Context, filter models.DetectionFilter) ([]models.Detection, error) {
	query := `SELECT id, seq, device_id, image_url, status, confidence, metadata, created_at FROM detections`
	var args []interface{}
	var conditions []string

	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections, err := scanDetections(rows)
	if err != nil {
		return nil, err
	}

	for i := range detections {
		images, err := s.getImages(ctx, detections[i].ID)
		if err != nil {
			return nil, err
		}
		detections[i].Images = images
	}
	return detections, nil
}

// GetDetectionByID returns one detection with its images, or nil when it
// does not exist.
func (s *DetectionService) GetDetectionByID(ctx context.Context, id string) (*models.Detection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, seq, device_id, image_url, status, confidence, metadata, created_at FROM detections WHERE id = ?`, id)

	d, err := scanDetection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query detection %s: %w", id, err)
	}

	images, err := s.getImages(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Images = images
	return d, nil
}

// DeleteDetection removes a detection; its image rows cascade away. It
// returns the public URLs of all stored objects so the caller can clean
// up object storage, and whether the detection existed.
func (s *DetectionService) DeleteDetection(ctx context.Context, id string) ([]string, bool, error) {
	d, err := s.GetDetectionByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if d == nil {
		return nil, false, nil
	}

	urls := []string{d.ImageURL}
	for _, img := range d.Images {
		urls = append(urls, img.ImageURL)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM detections WHERE id = ?`, id); err != nil {
		return nil, false, fmt.Errorf("failed to delete detection %s: %w", id, err)
	}
	return urls, true, nil
}

// GetLatestSeq returns the highest detection sequence number, 0 when the
// table is empty.
func (s *DetectionService) GetLatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM detections`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest seq: %w", err)
	}
	return seq.Int64, nil
}

// GetDetectionsSince returns detections inserted after lastSeq in
// insertion order, for broadcasting to live-feed subscribers.
func (s *DetectionService) GetDetectionsSince(ctx context.Context, lastSeq int64) ([]models.Detection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, device_id, image_url, status, confidence, metadata, created_at FROM detections WHERE seq > ? ORDER BY seq ASC`,
		lastSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections since seq %d: %w", lastSeq, err)
	}
	defer rows.Close()

	return scanDetections(rows)
}

func (s *DetectionService) getImages(ctx context.Context, detectionID string) ([]models.DetectionImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, detection_id, image_url, order_num, created_at FROM detection_images WHERE detection_id = ? ORDER BY order_num ASC`,
		detectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images for detection %s: %w", detectionID, err)
	}
	defer rows.Close()

	var images []models.DetectionImage
	for rows.Next() {
		var img models.DetectionImage
		if err := rows.Scan(&img.ID, &img.DetectionID, &img.ImageURL, &img.OrderNum, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over image rows: %w", err)
	}
	return images, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDetection(row rowScanner) (*models.Detection, error) {
	var d models.Detection
	var metadata []byte
	if err := row.Scan(&d.ID, &d.Seq, &d.DeviceID, &d.ImageURL, &d.Status, &d.Confidence, &metadata, &d.CreatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if d.Metadata == nil {
		d.Metadata = map[string]interface{}{}
	}
	return &d, nil
}

func scanDetections(rows *sql.Rows) ([]models.Detection, error) {
	var detections []models.Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over detection rows: %w", err)
	}
	return detections, nil
}
