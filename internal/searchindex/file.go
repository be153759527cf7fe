package searchindex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// DecodeFile decodes a JSON object mapping crate names to RawRecords.
// Crates are returned in file order. A crate that fails to decode is left
// out and its error joined into the returned error, so callers get partial
// results alongside a non-nil error.
func DecodeFile(data []byte) ([]*CrateIndex, error) {
	return decodeCrates(data, func(name string, body json.RawMessage) (*CrateIndex, error) {
		var raw RawRecord
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, &MalformedIndexError{Crate: name, Reason: err.Error()}
		}
		return Decode(name, &raw)
	})
}

func decodeCrates(data []byte, decode func(string, json.RawMessage) (*CrateIndex, error)) ([]*CrateIndex, error) {
	crates := orderedmap.New[string, json.RawMessage]()
	if err := crates.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decoding index file: %w", err)
	}

	var (
		out  []*CrateIndex
		errs []error
	)
	for pair := crates.Oldest(); pair != nil; pair = pair.Next() {
		idx, err := decode(pair.Key, pair.Value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, idx)
	}
	return out, errors.Join(errs...)
}

// Load decodes index bytes in any supported form: canonical JSON, a
// rustdoc search-index.js file, or either of those zstd-compressed.
func Load(data []byte) ([]*CrateIndex, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing index: %w", err)
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return DecodeFile(trimmed)
	}
	return DecodeLegacy(trimmed)
}

// ReadFile loads the index stored at path.
func ReadFile(path string) ([]*CrateIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	return Load(data)
}
