package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/musicgen/internal/api/storage"
)

// DecodeJobCursor parses a cursor produced by EncodeJobCursor. An empty cursor means the first page.
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	nanos, key, ok := strings.Cut(string(decoded), "|")
	if !ok || key == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	createdAt, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &storage.JobCursor{
		CreatedAt:  time.Unix(0, createdAt).UTC(),
		RequestKey: key,
	}, nil
}

// EncodeJobCursor renders the keyset position as an opaque URL-safe token
func EncodeJobCursor(cursor *storage.JobCursor) string {
	raw := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + "|" + cursor.RequestKey
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}
