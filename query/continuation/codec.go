package continuation

import (
	"encoding/base64"
	"fmt"

	"github.com/gogo/protobuf/proto"
	"github.com/jrife/xpquery/partition"
	"github.com/klauspost/compress/s2"
)

const (
	// Version is the encoding version written by Encode
	Version = 1
	// compressionThreshold is the encoded size above
	// which continuations are compressed
	compressionThreshold = 512
)

const (
	flagRaw        byte = 0
	flagCompressed byte = 1
)

// Encode serializes the continuation to an opaque string
// safe to use in URLs
func Encode(continuation *Continuation) (string, error) {
	payload, err := proto.Marshal(toMessage(continuation))

	if err != nil {
		return "", fmt.Errorf("could not encode continuation: %s", err)
	}

	flag := flagRaw

	if len(payload) > compressionThreshold {
		payload = s2.Encode(nil, payload)
		flag = flagCompressed
	}

	return base64.RawURLEncoding.EncodeToString(append([]byte{flag}, payload...)), nil
}

func toMessage(continuation *Continuation) *continuationMessage {
	message := &continuationMessage{
		Version:     Version,
		Fingerprint: continuation.Fingerprint,
		Yielded:     continuation.Yielded,
	}

	for _, entry := range continuation.Entries() {
		message.Entries = append(message.Entries, &entryMessage{
			Min:   nonEmpty(entry.Range.Min),
			Max:   nonEmpty(entry.Range.Max),
			Token: entry.Token,
			Skip:  int64(entry.Skip),
			Seen:  entry.Seen,
		})
	}

	for _, done := range continuation.Done() {
		message.Done = append(message.Done, &rangeMessage{Min: nonEmpty(done.Min), Max: nonEmpty(done.Max)})
	}

	return message
}

// nonEmpty maps empty bounds to nil so they are not written
func nonEmpty(key []byte) []byte {
	if len(key) == 0 {
		return nil
	}

	return key
}

// Decode parses a string produced by Encode
func Decode(encoded string) (*Continuation, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)

	if err != nil {
		return nil, malformed("invalid encoding: %s", err)
	}

	if len(raw) == 0 {
		return nil, malformed("empty continuation")
	}

	payload := raw[1:]

	switch raw[0] {
	case flagRaw:
	case flagCompressed:
		payload, err = s2.Decode(nil, payload)

		if err != nil {
			return nil, malformed("invalid compression: %s", err)
		}
	default:
		return nil, malformed("unknown flag %d", raw[0])
	}

	var message continuationMessage

	if err := proto.Unmarshal(payload, &message); err != nil {
		return nil, malformed("invalid message: %s", err)
	}

	return fromMessage(&message)
}

func fromMessage(message *continuationMessage) (*Continuation, error) {
	if message.Version != Version {
		return nil, malformed("unsupported version %d", message.Version)
	}

	continuation := New(message.Fingerprint)
	continuation.Yielded = message.Yielded

	for _, entry := range message.Entries {
		if entry == nil {
			return nil, malformed("missing entry")
		}

		if int64(int(entry.Skip)) != entry.Skip {
			return nil, malformed("skip %d out of range", entry.Skip)
		}

		err := continuation.Put(Entry{
			Range: partition.NewRange(nonEmpty(entry.Min), nonEmpty(entry.Max)),
			Token: entry.Token,
			Skip:  int(entry.Skip),
			Seen:  entry.Seen,
		})

		if err != nil {
			return nil, err
		}
	}

	for _, done := range message.Done {
		if done == nil {
			return nil, malformed("missing done range")
		}

		r := partition.NewRange(nonEmpty(done.Min), nonEmpty(done.Max))

		if r.IsEmpty() {
			return nil, malformed("empty done range %s", r)
		}

		if err := continuation.MarkDone(r); err != nil {
			return nil, err
		}
	}

	return continuation, nil
}
