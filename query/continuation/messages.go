package continuation

import (
	"github.com/gogo/protobuf/proto"
)

var _ proto.Message = (*continuationMessage)(nil)
var _ proto.Message = (*entryMessage)(nil)
var _ proto.Message = (*rangeMessage)(nil)

// continuationMessage is the wire form of a Continuation.
// Bytes fields are optional so that a present but empty
// token is kept apart from no token.
type continuationMessage struct {
	Version     uint32          `protobuf:"varint,1,opt,name=version,proto3" json:"version,omitempty"`
	Fingerprint string          `protobuf:"bytes,2,opt,name=fingerprint,proto3" json:"fingerprint,omitempty"`
	Yielded     int64           `protobuf:"varint,3,opt,name=yielded,proto3" json:"yielded,omitempty"`
	Entries     []*entryMessage `protobuf:"bytes,4,rep,name=entries" json:"entries,omitempty"`
	Done        []*rangeMessage `protobuf:"bytes,5,rep,name=done" json:"done,omitempty"`
}

func (m *continuationMessage) Reset()         { *m = continuationMessage{} }
func (m *continuationMessage) String() string { return proto.CompactTextString(m) }
func (*continuationMessage) ProtoMessage()    {}

type entryMessage struct {
	Min   []byte   `protobuf:"bytes,1,opt,name=min" json:"min,omitempty"`
	Max   []byte   `protobuf:"bytes,2,opt,name=max" json:"max,omitempty"`
	Token []byte   `protobuf:"bytes,3,opt,name=token" json:"token,omitempty"`
	Skip  int64    `protobuf:"varint,4,opt,name=skip,proto3" json:"skip,omitempty"`
	Seen  []string `protobuf:"bytes,5,rep,name=seen" json:"seen,omitempty"`
}

func (m *entryMessage) Reset()         { *m = entryMessage{} }
func (m *entryMessage) String() string { return proto.CompactTextString(m) }
func (*entryMessage) ProtoMessage()    {}

type rangeMessage struct {
	Min []byte `protobuf:"bytes,1,opt,name=min" json:"min,omitempty"`
	Max []byte `protobuf:"bytes,2,opt,name=max" json:"max,omitempty"`
}

func (m *rangeMessage) Reset()         { *m = rangeMessage{} }
func (m *rangeMessage) String() string { return proto.CompactTextString(m) }
func (*rangeMessage) ProtoMessage()    {}
