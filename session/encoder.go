package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sessionFormatVersionV1 = 1

	flagActive byte = 1 << 0
)

var errSessionCorrupt = errors.New("session blob corrupt")

// Encode serializes a [Session] into the versioned binary wire format
// stored in Redis: version, flags, four length-prefixed strings, both
// token hashes, three big-endian timestamps.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionV1)

	var flags byte
	if s.Active {
		flags |= flagActive
	}
	buf.WriteByte(flags)

	for _, field := range []string{s.UserID, s.Domain, s.UserAgent, s.IPAddress} {
		if len(field) > 65535 {
			return nil, errors.New("session field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	buf.Write(s.AccessHash[:])
	buf.Write(s.RefreshHash[:])

	for _, ts := range []int64{s.CreatedAt, s.LastActiveAt, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses the binary wire format produced by [Encode]. The session
// ID is not part of the blob; callers assign it from the Redis key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errSessionCorrupt
	}
	if version != sessionFormatVersionV1 {
		return nil, errSessionCorrupt
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, errSessionCorrupt
	}

	sess := &Session{
		Active: flags&flagActive != 0,
	}

	fields := []*string{&sess.UserID, &sess.Domain, &sess.UserAgent, &sess.IPAddress}
	for _, field := range fields {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, errSessionCorrupt
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, errSessionCorrupt
		}
		*field = string(raw)
	}

	if _, err := io.ReadFull(reader, sess.AccessHash[:]); err != nil {
		return nil, errSessionCorrupt
	}
	if _, err := io.ReadFull(reader, sess.RefreshHash[:]); err != nil {
		return nil, errSessionCorrupt
	}

	for _, ts := range []*int64{&sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, errSessionCorrupt
		}
	}

	return sess, nil
}
