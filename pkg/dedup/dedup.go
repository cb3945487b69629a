// Package dedup computes content hashes of raw adapter payloads and prepares items for
// idempotent insertion. The hash is sha256 of a canonical JSON serialization with object keys
// sorted recursively, so the same payload always maps to the same hash.
package dedup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/umputun/discovery/pkg/domain"
)

// StableJSON serializes v canonically: keys sorted at every level, no insignificant whitespace,
// no HTML escaping, numbers kept exactly as encoding/json renders them (integers never pass
// through float64, floats use the shortest round-trip form).
func StableJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the hex sha256 of the canonical serialization of v
func Hash(v any) (string, error) {
	data, err := StableJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Prepare converts normalized items to pending items with raw hashes. Items repeating a hash
// already seen in the same batch are dropped and counted as duplicates.
func Prepare(clientID string, sourceID int64, items []domain.NormalizedItem, fetchedAt time.Time) (res []domain.Item, duplicates int, err error) {
	seen := make(map[string]struct{}, len(items))
	res = make([]domain.Item, 0, len(items))
	for _, n := range items {
		var payload any = n.Raw
		if len(n.Raw) == 0 {
			payload = n
		}
		hash, err := Hash(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("hash item %q: %w", n.ExternalID, err)
		}
		if _, ok := seen[hash]; ok {
			duplicates++
			continue
		}
		seen[hash] = struct{}{}

		res = append(res, domain.Item{
			ClientID:          clientID,
			SourceID:          sourceID,
			ExternalID:        n.ExternalID,
			Title:             n.Title,
			URL:               n.URL,
			Status:            domain.ItemPendingScoring,
			RawHash:           hash,
			FetchedAt:         fetchedAt.UTC(),
			PublishedAt:       n.PublishedAt,
			PublishedAtSource: n.PublishedAtSource,
			Normalized:        n,
			RawPayload:        n.Raw,
			SourceMetadata:    n.Metadata,
		})
	}
	return res, duplicates, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, el := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case string:
		return writeString(buf, val)
	case json.Number:
		buf.WriteString(val.String())
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("unexpected json value %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	buf.Truncate(buf.Len() - 1) // drop the newline added by Encode
	return nil
}
