package redis

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/docket/job"
)

// Codec serializes queue documents to and from the stored value.
type Codec interface {
	// Encode serializes a document to bytes.
	Encode(d *job.Document) ([]byte, error)

	// Decode deserializes bytes into a document.
	Decode(data []byte) (*job.Document, error)

	// Name returns the codec identifier ("json" or "msgpack").
	Name() string
}

// CodecName constants.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to msgpack.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameJSON:
		return JSONCodec{}
	default:
		return MsgpackCodec{}
	}
}

// MsgpackCodec stores documents as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(d *job.Document) ([]byte, error) {
	return msgpack.Marshal(d)
}

func (MsgpackCodec) Decode(data []byte) (*job.Document, error) {
	var d job.Document
	if err := msgpack.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }

// JSONCodec stores documents as JSON, which keeps them readable from
// redis-cli.
type JSONCodec struct{}

func (JSONCodec) Encode(d *job.Document) ([]byte, error) {
	return json.Marshal(d)
}

func (JSONCodec) Decode(data []byte) (*job.Document, error) {
	var d job.Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (JSONCodec) Name() string { return CodecNameJSON }
