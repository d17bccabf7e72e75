package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Parse decodes the bytes of an entity.json file into an Entity and checks
// its shape: a non-empty pointer list, a well-formed content map, and a
// timestamp that parsed as a number. It does not run any of the business
// rules in pkg/validation — shape and policy are deliberately separate, the
// same split the content server draws between its entity factory and its
// deployment validators. The content field is accepted either as the sorted
// [{file, hash}] list Canonicalize writes or as a filename -> hash object.
func Parse(data []byte) (*Entity, error) {
	var doc struct {
		Entity
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("entity: malformed entity.json: %w", err)
	}
	e := doc.Entity
	var entries []canonicalContentEntry
	if err := json.Unmarshal(doc.Content, &entries); err == nil {
		e.Content = make(map[string]string, len(entries))
		for _, c := range entries {
			e.Content[c.Filename] = c.Hash
		}
	} else if len(doc.Content) > 0 && json.Unmarshal(doc.Content, &e.Content) != nil {
		return nil, fmt.Errorf("entity: malformed content in entity.json: %w", err)
	}

	if len(e.Pointers) == 0 {
		return nil, fmt.Errorf("entity: pointers must not be empty")
	}
	for _, p := range e.Pointers {
		if p == "" {
			return nil, fmt.Errorf("entity: pointers must not contain an empty string")
		}
	}
	if e.Timestamp <= 0 {
		return nil, fmt.Errorf("entity: timestamp must be a positive number of milliseconds")
	}
	for filename, hash := range e.Content {
		if filename == "" {
			return nil, fmt.Errorf("entity: content has an empty filename")
		}
		if hash == "" {
			return nil, fmt.Errorf("entity: content[%q] has an empty hash", filename)
		}
	}

	return &e, nil
}

// Canonicalize produces the deterministic JSON serialization of e that C1
// hashes to derive e.ID: object keys sorted, no insignificant whitespace.
// Round-tripping Canonicalize(Parse(bytes)) through the hasher must equal
// hash(bytes) for any valid entity file (invariant 3, §8).
func Canonicalize(e *Entity) ([]byte, error) {
	pointers := append([]string(nil), e.Pointers...)

	content := make([]canonicalContentEntry, 0, len(e.Content))
	for filename, hash := range e.Content {
		content = append(content, canonicalContentEntry{Filename: filename, Hash: hash})
	}
	sort.Slice(content, func(i, j int) bool { return content[i].Filename < content[j].Filename })

	doc := canonicalEntity{
		Type:      e.Type,
		Pointers:  pointers,
		Timestamp: e.Timestamp,
		Content:   content,
		Metadata:  e.Metadata,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("entity: canonicalize: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// canonicalEntity mirrors Entity but without ID (the hash is computed over
// everything except itself) and with Content flattened to an
// order-independent, sorted slice rather than a map (Go's json package does
// sort map keys already, but the explicit slice keeps the wire format the
// same shape the original canonical serializer used).
type canonicalEntity struct {
	Type      Type                    `json:"type"`
	Pointers  []string                `json:"pointers"`
	Timestamp int64                   `json:"timestamp"`
	Content   []canonicalContentEntry `json:"content"`
	Metadata  json.RawMessage         `json:"metadata,omitempty"`
}

type canonicalContentEntry struct {
	Filename string `json:"file"`
	Hash     string `json:"hash"`
}
