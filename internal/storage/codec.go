// Package storage provides expression-storage collaborators (spec.md
// §1/§6), grounded on the teacher's internal/persistence package: the same
// map-backed, SQLite, Postgres, and MongoDB stores, retargeted from
// workflow instances to expression records keyed by FEI.
package storage

import (
	"bytes"
	"encoding/gob"

	"github.com/flowcore/flowexpr/pkg/api"
)

func init() {
	gob.Register(api.Tree{})
	gob.Register(api.FEI{})
	gob.Register(api.TimedOutMarker{})
}

// encodeRecord serializes a record using encoding/gob, matching the
// teacher's EncodeValue use for blob columns.
func encodeRecord(rec api.ExpressionRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (api.ExpressionRecord, error) {
	var rec api.ExpressionRecord
	if len(data) == 0 {
		return rec, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return rec, err
	}
	return rec, nil
}
