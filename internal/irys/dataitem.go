// Package irys signs ANS-104 data items and submits them to an Irys bundler node.
package irys

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"pet-arena/internal/domain"
	"strconv"
)

const (
	maxTags       = 128
	maxTagName    = 1024
	maxTagValue   = 3072
	anchorLength  = 32
	targetLength  = 32
	formatVersion = "1"
)

var ErrInvalidTags = errors.New("invalid data item tags")

// Signer produces ANS-104 signatures.
type Signer interface {
	SignatureType() uint16
	Owner() []byte
	Sign(message []byte) ([]byte, error)
}

// header is everything in a data item that precedes the payload.
type header struct {
	id    string
	bytes []byte
}

// encodeTags serialises tags as an avro array of {name: bytes, value: bytes} records.
func encodeTags(tags []domain.Tag) ([]byte, error) {
	if len(tags) > maxTags {
		return nil, fmt.Errorf("%w: %d tags exceeds %d", ErrInvalidTags, len(tags), maxTags)
	}
	if len(tags) == 0 {
		return nil, nil
	}
	buf := appendLong(nil, int64(len(tags)))
	for _, t := range tags {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: empty tag name", ErrInvalidTags)
		}
		if len(t.Name) > maxTagName || len(t.Value) > maxTagValue {
			return nil, fmt.Errorf("%w: tag %q too long", ErrInvalidTags, t.Name)
		}
		buf = appendLong(buf, int64(len(t.Name)))
		buf = append(buf, t.Name...)
		buf = appendLong(buf, int64(len(t.Value)))
		buf = append(buf, t.Value...)
	}
	return appendLong(buf, 0), nil
}

// appendLong writes an avro long: zigzag then base-128 varint.
func appendLong(buf []byte, n int64) []byte {
	return binary.AppendUvarint(buf, uint64((n<<1)^(n>>63)))
}

func sha384(parts ...[]byte) []byte {
	h := sha512.New384()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// blobHash is the deep hash of a blob given its length and SHA-384 digest,
// so payloads can be hashed in a streaming pass.
func blobHash(size int64, digest []byte) []byte {
	tag := sha384([]byte("blob" + strconv.FormatInt(size, 10)))
	return sha384(tag, digest)
}

func bytesHash(b []byte) []byte {
	return blobHash(int64(len(b)), sha384(b))
}

func listHash(items [][]byte) []byte {
	acc := sha384([]byte("list" + strconv.Itoa(len(items))))
	for _, item := range items {
		acc = sha384(acc, item)
	}
	return acc
}

// signatureData is the deep hash a signer signs for one data item.
func signatureData(sigType uint16, owner, target, anchor, tags []byte, dataSize int64, dataDigest []byte) []byte {
	return listHash([][]byte{
		bytesHash([]byte("dataitem")),
		bytesHash([]byte(formatVersion)),
		bytesHash([]byte(strconv.Itoa(int(sigType)))),
		bytesHash(owner),
		bytesHash(target),
		bytesHash(anchor),
		bytesHash(tags),
		blobHash(dataSize, dataDigest),
	})
}

func newAnchor() ([]byte, error) {
	raw := make([]byte, anchorLength)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(raw)[:anchorLength]), nil
}

// buildHeader signs a data item whose payload has the given size and digest.
func buildHeader(s Signer, tags []domain.Tag, anchor []byte, dataSize int64, dataDigest []byte) (*header, error) {
	if anchor != nil && len(anchor) != anchorLength {
		return nil, fmt.Errorf("anchor must be %d bytes, got %d", anchorLength, len(anchor))
	}
	tagBytes, err := encodeTags(tags)
	if err != nil {
		return nil, err
	}
	owner := s.Owner()

	sig, err := s.Sign(signatureData(s.SignatureType(), owner, nil, anchor, tagBytes, dataSize, dataDigest))
	if err != nil {
		return nil, fmt.Errorf("failed to sign data item: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(sig) + len(owner) + 2 + anchorLength + 16 + len(tagBytes))
	binary.Write(&buf, binary.LittleEndian, s.SignatureType())
	buf.Write(sig)
	buf.Write(owner)
	buf.WriteByte(0) // no target
	if anchor != nil {
		buf.WriteByte(1)
		buf.Write(anchor)
	} else {
		buf.WriteByte(0)
	}
	binary.Write(&buf, binary.LittleEndian, uint64(len(tags)))
	binary.Write(&buf, binary.LittleEndian, uint64(len(tagBytes)))
	buf.Write(tagBytes)

	id := sha256.Sum256(sig)
	return &header{
		id:    base64.RawURLEncoding.EncodeToString(id[:]),
		bytes: buf.Bytes(),
	}, nil
}

// digestReader hashes r to EOF and rewinds it.
func digestReader(r io.ReadSeeker) (int64, []byte, error) {
	h := sha512.New384()
	n, err := io.Copy(h, r)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to hash payload: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, nil, fmt.Errorf("failed to rewind payload: %w", err)
	}
	return n, h.Sum(nil), nil
}
