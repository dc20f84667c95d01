package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, source_path, title, download_dir, scaled_path, status, percent, progress_message, vehicles_detected, vehicles_with_plates, shots_saved, error_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		sourcePath      string
		title           sql.NullString
		downloadDir     sql.NullString
		scaledPath      sql.NullString
		statusStr       string
		percent         sql.NullInt64
		progressMessage sql.NullString
		detected        sql.NullInt64
		withPlates      sql.NullInt64
		shotsSaved      sql.NullInt64
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&title,
		&downloadDir,
		&scaledPath,
		&statusStr,
		&percent,
		&progressMessage,
		&detected,
		&withPlates,
		&shotsSaved,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                 id,
		SourcePath:         sourcePath,
		Title:              title.String,
		DownloadDir:        downloadDir.String,
		ScaledPath:         scaledPath.String,
		Status:             Status(statusStr),
		Percent:            int(percent.Int64),
		ProgressMessage:    progressMessage.String,
		VehiclesDetected:   int(detected.Int64),
		VehiclesWithPlates: int(withPlates.Int64),
		ShotsSaved:         int(shotsSaved.Int64),
		ErrorMessage:       errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
