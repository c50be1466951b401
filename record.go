package ws2mongo

import (
	"bytes"

	gojson "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

type recordKind int

const (
	recordObject recordKind = iota
	recordSequence
)

// record is one queued payload: a single object, or the elements of a top-level array.
// Elements are kept raw and converted one by one so a bad element only costs itself.
type record struct {
	kind  recordKind
	items []gojson.RawMessage
}

// parseRecord validates a frame payload and splits it into convertible items. Anything
// other than an object or an array is rejected.
func parseRecord(data []byte) (record, error) {
	payload := bytes.TrimSpace(data)
	if len(payload) == 0 || !gojson.Valid(payload) {
		return record{}, ErrMalformedPayload
	}

	switch payload[0] {
	case '{':
		return record{kind: recordObject, items: []gojson.RawMessage{payload}}, nil
	case '[':
		var items []gojson.RawMessage
		if err := gojson.Unmarshal(payload, &items); err != nil {
			return record{}, errors.Wrap(ErrMalformedPayload, err.Error())
		}
		return record{kind: recordSequence, items: items}, nil
	default:
		return record{}, ErrUnsupportedShape
	}
}

// toDocument converts one JSON object into an ordered BSON document. Relaxed extended
// JSON is accepted, so {"$date": ...} style values become native BSON types.
func toDocument(raw []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, errors.Wrap(err, "cannot convert json to a document")
	}
	return doc, nil
}
