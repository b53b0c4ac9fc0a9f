package transport

import "bytes"

// frameSeparator splits topic from payload on the wire. Topics and payloads
// must not contain it; this is a caller responsibility and is not validated.
const frameSeparator byte = 0x00

// DefaultReadBufferSize is the receive buffer used when none is configured.
// A frame larger than the buffer is truncated at the read; this is a
// documented message-size ceiling, not a recoverable condition.
const DefaultReadBufferSize = 4096

// EncodeFrame encodes one message as topic bytes, a separator byte, then
// payload bytes. The result is written to the wire as a single logical
// message.
func EncodeFrame(topic, payload []byte) []byte {
	frame := make([]byte, 0, len(topic)+1+len(payload))
	frame = append(frame, topic...)
	frame = append(frame, frameSeparator)
	frame = append(frame, payload...)
	return frame
}

// DecodeFrame splits one received frame into topic and payload at the first
// separator byte. It fails with ErrMalformedFrame when no separator is
// present in the data.
func DecodeFrame(data []byte) (topic, payload []byte, err error) {
	sep := bytes.IndexByte(data, frameSeparator)
	if sep < 0 {
		return nil, nil, newSockError("decode", "", ErrMalformedFrame)
	}
	return data[:sep], data[sep+1:], nil
}
