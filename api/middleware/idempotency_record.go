package middleware

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

var (
	errInFlight = pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is in progress")
	errBodyDiff = pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
)

// idempotencyRecord is the JSON value stored under an idempotency key.
type idempotencyRecord struct {
	Fingerprint string `json:"fingerprint"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

func pendingRecord(fingerprint string) idempotencyRecord {
	return idempotencyRecord{Fingerprint: fingerprint, Pending: true}
}

func completedRecord(fingerprint string, c *responseCapture) idempotencyRecord {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return idempotencyRecord{
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: c.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(c.body.Bytes()),
	}
}

func decodeRecord(raw string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &record, nil
}

func (rec idempotencyRecord) encode() string {
	// Only strings, bools and ints; Marshal cannot fail.
	raw, _ := json.Marshal(rec)
	return string(raw)
}

// check rejects a retry whose body differs or whose original is still running.
func (rec *idempotencyRecord) check(fingerprint string) error {
	if rec.Fingerprint != fingerprint {
		return errBodyDiff
	}
	if rec.Pending {
		return errInFlight
	}
	return nil
}

func (rec idempotencyRecord) replayable() bool {
	return rec.Status < http.StatusInternalServerError && rec.Status != http.StatusTooManyRequests
}

func (rec *idempotencyRecord) replay(w http.ResponseWriter) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(rec.Status)
	if body, err := base64.StdEncoding.DecodeString(rec.Body); err == nil {
		_, _ = w.Write(body)
	}
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
