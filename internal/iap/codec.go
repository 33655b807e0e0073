package iap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/thoas/go-funk"

	"iap-coordinator/internal/model"
)

// RecordVersion is the version written by EncodeRecord.
const RecordVersion = 1

// EncodeRecord serializes ids as a version 1 purchase record. Identifiers
// are sorted so equal sets produce equal bytes.
func EncodeRecord(ids []string) ([]byte, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	if sorted == nil {
		sorted = []string{}
	}
	return json.Marshal(model.PurchaseRecord{Version: RecordVersion, ProductIDs: sorted})
}

type rawRecord struct {
	Version    *int              `json:"version"`
	ProductIDs []json.RawMessage `json:"product_ids"`
}

// DecodeRecord parses a persisted purchase record. A bare JSON array is
// read as the unversioned legacy format (version 0). Entries that are not
// valid identifiers are skipped and counted. Duplicates are collapsed.
func DecodeRecord(data []byte) (ids []string, version int, skipped int, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, 0, 0, fmt.Errorf("empty record")
	}

	var entries []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to parse legacy record: %w", err)
		}
	case '{':
		var rec rawRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to parse record: %w", err)
		}
		if rec.Version == nil {
			return nil, 0, 0, fmt.Errorf("record has no version")
		}
		if *rec.Version < 1 || *rec.Version > RecordVersion {
			return nil, *rec.Version, 0, fmt.Errorf("unsupported record version %d", *rec.Version)
		}
		version = *rec.Version
		entries = rec.ProductIDs
	default:
		return nil, 0, 0, fmt.Errorf("unrecognized record format")
	}

	ids = make([]string, 0, len(entries))
	for _, raw := range entries {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || !ValidProductID(id) {
			skipped++
			continue
		}
		ids = append(ids, id)
	}
	return funk.UniqString(ids), version, skipped, nil
}

// ValidProductID reports whether id can be a platform product identifier.
func ValidProductID(id string) bool {
	return id != "" && utf8.RuneCountInString(id) <= model.MaxProductIDLength
}
