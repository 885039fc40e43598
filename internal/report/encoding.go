package report

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/correlate"
)

// Encoding is the payload format of published records.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgPack Encoding = "msgpack"
)

// ParseEncoding validates a configured encoding name; empty means JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingMsgPack:
		return EncodingMsgPack, nil
	default:
		return "", fmt.Errorf("report: unknown encoding %q (must be json or msgpack)", s)
	}
}

// Encode serializes rec.
func (e Encoding) Encode(rec correlate.Record) ([]byte, error) {
	switch e {
	case EncodingMsgPack:
		return msgpack.Marshal(rec)
	default:
		return json.Marshal(rec)
	}
}
