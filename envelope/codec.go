package envelope

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Canonical returns the deterministic byte encoding used for signing and
// verification: fixed field order, big-endian integers, length-prefixed
// strings/byte arrays. The signature slot itself is never part of this
// encoding, so both Sign and Verify call it on the same bytes.
func Canonical(e *Envelope) []byte {
	var buf bytes.Buffer

	buf.WriteByte(e.Version)
	writeString(&buf, e.Type)
	writeString(&buf, e.From)
	writeString(&buf, e.To)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(e.Timestamp.UnixNano()))
	buf.Write(tsBuf[:])

	buf.Write(e.Nonce[:])
	writeBytes(&buf, e.Body)

	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// Encode serializes the full wire envelope: canonical fields, the
// detached signature, and any unrecognized Extra bytes appended last so
// a future version's additional fields pass through untouched.
func Encode(e *Envelope) []byte {
	var buf bytes.Buffer
	buf.Write(Canonical(e))
	writeBytes(&buf, e.Signature)
	writeBytes(&buf, e.Extra)
	return buf.Bytes()
}

// Decode parses a wire envelope produced by Encode.
func Decode(data []byte) (*Envelope, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("envelope: read version: %w", err)
	}

	typ, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: read type: %w", err)
	}
	from, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: read from: %w", err)
	}
	to, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: read to: %w", err)
	}

	var tsBuf [8]byte
	if _, err := readFull(r, tsBuf[:]); err != nil {
		return nil, fmt.Errorf("envelope: read timestamp: %w", err)
	}
	ts := unixNanoToTime(binary.BigEndian.Uint64(tsBuf[:]))

	var nonce [NonceSize]byte
	if _, err := readFull(r, nonce[:]); err != nil {
		return nil, fmt.Errorf("envelope: read nonce: %w", err)
	}

	body, err := readBytesField(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: read body: %w", err)
	}
	sig, err := readBytesField(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: read signature: %w", err)
	}
	extra, err := readBytesField(r)
	if err != nil {
		return nil, fmt.Errorf("envelope: read extra: %w", err)
	}

	return &Envelope{
		Version:   version,
		Type:      typ,
		From:      from,
		To:        to,
		Timestamp: ts,
		Nonce:     nonce,
		Body:      body,
		Signature: sig,
		Extra:     extra,
	}, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytesField(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytesField(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	return io.ReadFull(r, b)
}

func unixNanoToTime(nanos uint64) time.Time {
	return time.Unix(0, int64(nanos)).UTC()
}

// Sign computes the detached Ed25519 signature over Canonical(e) and
// stores it in e.Signature.
func Sign(e *Envelope, priv ed25519.PrivateKey) {
	e.Signature = ed25519.Sign(priv, Canonical(e))
}

// Verify recomputes Canonical(e) (which never includes the signature
// slot) and checks it against e.Signature using the sender's known
// Ed25519 public key.
func Verify(e *Envelope, pub ed25519.PublicKey) error {
	if len(e.Signature) == 0 {
		return ErrMissingSignature
	}
	if !ed25519.Verify(pub, Canonical(e), e.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
