// Package protocol implements the framing of Photon packets on a byte stream.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	pb "github.com/photonchat/photon/pkg/protocol/pb"
)

const (
	// HeaderSize is the size of the big-endian length prefix.
	HeaderSize = 4

	// DefaultMaxPacketSize is the default maxTransmissionSize (40KiB).
	DefaultMaxPacketSize = 40960
)

// ErrTooLarge is returned for frames above the configured maximum. The stream
// is no longer framed after a read fails this way and must be closed.
var ErrTooLarge = errors.New("protocol: packet too large")

// ErrMalformed is returned for a complete frame whose payload is not a valid
// packet. Framing is intact, so the stream can keep being read.
var ErrMalformed = errors.New("protocol: malformed packet")

// Encode marshals a packet into its JSON payload without the length prefix.
func Encode(pkt *pb.Packet) ([]byte, error) {
	if pkt.Version == 0 {
		pkt.Version = pb.Version
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	return data, nil
}

// Decode parses a JSON payload into a packet.
func Decode(data []byte) (*pb.Packet, error) {
	pkt := &pb.Packet{}
	if err := json.Unmarshal(data, pkt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if pkt.Version != pb.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, pkt.Version)
	}
	if pkt.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return pkt, nil
}

// WritePacket writes a length-prefixed packet to w.
// Format: [4-byte big-endian length][JSON payload]
func WritePacket(w io.Writer, pkt *pb.Packet, maxSize int) error {
	data, err := Encode(pkt)
	if err != nil {
		return err
	}
	return WriteFrame(w, data, maxSize)
}

// WriteFrame writes an already encoded payload with its length prefix.
//
// The prefix and payload go out in a single Write so a frame is never torn
// on message-oriented transports.
func WriteFrame(w io.Writer, data []byte, maxSize int) error {
	if len(data) > maxSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	buf := make([]byte, HeaderSize+len(data))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(data))) //nolint:gosec // length already bounds-checked above
	copy(buf[HeaderSize:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// ReadPacket reads one length-prefixed packet from r.
func ReadPacket(r io.Reader, maxSize int) (*pb.Packet, error) {
	lenBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("protocol: read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if int64(length) > int64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return Decode(data)
}

// Size returns the encoded payload size of v, used to budget history replay.
func Size(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("protocol: marshal: %w", err)
	}
	return len(data), nil
}
