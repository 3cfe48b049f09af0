package challenge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	recordVersionV1 = 1

	flagUsed byte = 1 << 0
)

var errRecordCorrupt = errors.New("challenge record corrupt")

// Wire layout, version 1. The header through the secret hash sits at
// fixed offsets so the consume script can decode it without knowing the
// variable-length tail:
//
//	[0]     version
//	[1]     kind
//	[2]     flags (bit 0: used)
//	[3:5]   attempts, big-endian
//	[5:7]   max attempts, big-endian
//	[7:15]  createdAt unix, big-endian
//	[15:23] expiresAt unix, big-endian
//	[23:55] secret hash
//	then four length-prefixed strings: identifier, domain, email, redirect
func encodeRecord(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	buf.WriteByte(byte(r.Kind))

	var flags byte
	if r.Used {
		flags |= flagUsed
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, r.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.MaxAttempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	buf.Write(r.SecretHash[:])

	for _, field := range []string{r.Identifier, r.Domain, r.Email, r.RedirectURL} {
		if len(field) > 65535 {
			return nil, errors.New("challenge field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordVersionV1 {
		return nil, errRecordCorrupt
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}

	record := &Record{
		Kind: Kind(kind),
		Used: flags&flagUsed != 0,
	}
	if !record.Kind.valid() {
		return nil, errRecordCorrupt
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.MaxAttempts); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errRecordCorrupt
	}

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, errRecordCorrupt
	}

	for _, field := range []*string{&record.Identifier, &record.Domain, &record.Email, &record.RedirectURL} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, errRecordCorrupt
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, errRecordCorrupt
		}
		*field = string(raw)
	}

	return record, nil
}
