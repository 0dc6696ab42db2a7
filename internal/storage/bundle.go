package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

const bundleTimeout = 15 * time.Second

// ErrInvalidBundle is returned for bundle files without an items array
var ErrInvalidBundle = errors.New("invalid bundle: items must be an array")

// bundleDoc is the on-disk schema written by the scrape job
type bundleDoc struct {
	GeneratedAt string          `json:"generatedAt"`
	ForDate     string          `json:"forDate"`
	Items       json.RawMessage `json:"items"`
}

// Bundle reads the pre-fetched snapshot from a local path or an http(s) URL
type Bundle struct {
	location string
	client   *http.Client
}

// NewBundle creates a Bundle for location. An empty location means no bundle.
func NewBundle(location string) *Bundle {
	return &Bundle{
		location: location,
		client:   &http.Client{Timeout: bundleTimeout},
	}
}

// Location returns where the bundle is read from
func (b *Bundle) Location() string {
	return b.location
}

// LoadBundle returns the bundled snapshot, or nil if none exists
func (b *Bundle) LoadBundle(ctx context.Context) (*schedule.Snapshot, error) {
	if b.location == "" {
		return nil, nil
	}

	var data []byte
	var err error
	if strings.HasPrefix(b.location, "http://") || strings.HasPrefix(b.location, "https://") {
		data, err = b.fetch(ctx)
	} else {
		data, err = os.ReadFile(b.location)
		if os.IsNotExist(err) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	return DecodeBundle(data)
}

func (b *Bundle) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.location, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// DecodeBundle parses bundle JSON. Search indexes are re-derived rather than trusted.
func DecodeBundle(data []byte) (*schedule.Snapshot, error) {
	var doc bundleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing bundle: %w", err)
	}

	items := bytes.TrimSpace(doc.Items)
	if len(items) == 0 || items[0] != '[' {
		return nil, ErrInvalidBundle
	}

	var records []*schedule.Record
	if err := json.Unmarshal(items, &records); err != nil {
		return nil, fmt.Errorf("parsing bundle items: %w", err)
	}
	for _, r := range records {
		r.Normalize()
	}

	// An unparseable timestamp leaves CapturedAt zero, which freshness treats as stale
	var generatedAt time.Time
	if doc.GeneratedAt != "" {
		if t, err := time.Parse(time.RFC3339, doc.GeneratedAt); err == nil {
			generatedAt = t
		}
	}

	return schedule.NewSnapshot(generatedAt, doc.ForDate, records), nil
}

// WriteBundle writes snap to path in the bundle schema
func WriteBundle(path string, snap *schedule.Snapshot) error {
	records := snap.Records
	if records == nil {
		records = make([]*schedule.Record, 0)
	}

	doc := struct {
		GeneratedAt string             `json:"generatedAt"`
		ForDate     string             `json:"forDate"`
		Items       []*schedule.Record `json:"items"`
	}{
		GeneratedAt: snap.CapturedAt.UTC().Format(time.RFC3339),
		ForDate:     snap.ForDate,
		Items:       records,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding bundle: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}
	return nil
}
