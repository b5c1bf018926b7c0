// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Exporter uploads journal snapshots to a GCS bucket for offline
// compliance review.
type Exporter struct {
	client     *storage.Client
	bucketName string
	logger     *slog.Logger
}

// NewExporter creates a GCS exporter. If saKeyPath is empty the
// client uses application default credentials.
func NewExporter(ctx context.Context, bucketName, saKeyPath string, logger *slog.Logger) (*Exporter, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("audit: bucket name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Exporter{client: client, bucketName: bucketName, logger: logger}, nil
}

// Export snapshots the journal to a timestamped JSONL object and
// returns the object name.
func (e *Exporter) Export(ctx context.Context, journal *Journal) (string, error) {
	objectName := fmt.Sprintf("remediation-journal/%s.jsonl", time.Now().UTC().Format("2006-01-02T15-04-05Z"))

	obj := e.client.Bucket(e.bucketName).Object(objectName)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/x-ndjson"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	count, err := journal.WriteSnapshot(ctx, writer)
	if err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to stream journal snapshot to gs://%s/%s: %w", e.bucketName, objectName, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", objectName, err)
	}

	e.logger.Info("journal snapshot exported",
		"bucket", e.bucketName, "object", objectName, "records", count)
	return objectName, nil
}

// Bucket returns the configured bucket name.
func (e *Exporter) Bucket() string {
	return e.bucketName
}

// Close releases the underlying storage client.
func (e *Exporter) Close() error {
	return e.client.Close()
}
