package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, source_path, format, fingerprint, status, staged_path, original_bytes, optimized_bytes, variants_json, placeholder_json, error_message, attempts, created_at, updated_at, progress_stage, progress_percent, progress_message"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              int64
		sourcePath      string
		format          string
		fingerprint     sql.NullString
		statusStr       string
		stagedPath      sql.NullString
		originalBytes   sql.NullInt64
		optimizedBytes  sql.NullInt64
		variantsJSON    sql.NullString
		placeholderJSON sql.NullString
		errorMessage    sql.NullString
		attempts        sql.NullInt64
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&format,
		&fingerprint,
		&statusStr,
		&stagedPath,
		&originalBytes,
		&optimizedBytes,
		&variantsJSON,
		&placeholderJSON,
		&errorMessage,
		&attempts,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		SourcePath:      sourcePath,
		Format:          format,
		Fingerprint:     fingerprint.String,
		Status:          Status(statusStr),
		StagedPath:      stagedPath.String,
		OriginalBytes:   originalBytes.Int64,
		OptimizedBytes:  optimizedBytes.Int64,
		VariantsJSON:    variantsJSON.String,
		PlaceholderJSON: placeholderJSON.String,
		ErrorMessage:    errorMessage.String,
		Attempts:        int(attempts.Int64),
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
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
