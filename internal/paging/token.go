package paging

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/qerr"
)

// TokenVersion is the page token layout version.
const TokenVersion = 1

// DefaultTokenTTL is how long a page token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Cursor is the position a page token resumes from.
type Cursor struct {
	// Offset is the index of the first object of the next page.
	Offset int

	// Snapshot is the pinned read snapshot. Only meaningful when Pinned.
	Snapshot int64
	Pinned   bool
}

// payload is the decoded token body. Snap is absent when unpinned.
type payload struct {
	V    int    `json:"v"`
	FP   string `json:"fp"`
	Off  int    `json:"off"`
	Snap *int64 `json:"snap,omitempty"`
	IAt  int64  `json:"iat"`
	Sum  string `json:"sum"`
}

// sumLen is the length of the hex checksum carried in a token.
const sumLen = 32

// body is the canonical form the checksum covers.
func (p payload) body() ir.Object {
	obj := ir.Object{
		"v":   ir.Int(p.V),
		"fp":  ir.String(p.FP),
		"off": ir.Int(p.Off),
		"iat": ir.Int(p.IAt),
	}
	if p.Snap != nil {
		obj["snap"] = ir.Int(*p.Snap)
	}
	return obj
}

// Codec encodes and decodes page tokens. Tokens carry an HMAC-SHA256
// checksum keyed by the codec secret, so only a codec holding the same
// secret accepts them.
//
// Thread-safety: Codec is immutable and safe for concurrent use.
type Codec struct {
	ttl    time.Duration
	clock  Clock
	secret []byte
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithSecret sets the checksum key. Tokens survive a restart only when
// every process uses the same secret.
func WithSecret(secret []byte) CodecOption {
	return func(c *Codec) {
		c.secret = bytes.Clone(secret)
	}
}

// NewCodec creates a codec whose tokens expire after ttl. A non-positive
// ttl disables expiry. A nil clock reads the system clock. Without
// WithSecret the codec keys checksums with a random per-codec secret.
func NewCodec(ttl time.Duration, clock Clock, opts ...CodecOption) *Codec {
	if clock == nil {
		clock = SystemClock{}
	}
	c := &Codec{ttl: ttl, clock: clock}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.secret) == 0 {
		c.secret = []byte(rand.Text())
	}
	return c
}

// checksum is the keyed MAC of p's canonical body.
func (c *Codec) checksum(p payload) (string, error) {
	data, err := ir.MarshalCanonical(p.body())
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(ir.DomainPageToken))
	mac.Write([]byte{0})
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))[:sumLen], nil
}

// Encode mints a token resuming the request with fingerprint at cur.
func (c *Codec) Encode(fingerprint string, cur Cursor) (string, error) {
	p := payload{
		V:   TokenVersion,
		FP:  fingerprint,
		Off: cur.Offset,
		IAt: c.clock.Now().UnixMilli(),
	}
	if cur.Pinned {
		snap := cur.Snapshot
		p.Snap = &snap
	}
	sum, err := c.checksum(p)
	if err != nil {
		return "", err
	}
	p.Sum = sum

	obj := p.body()
	obj["sum"] = ir.String(p.Sum)
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode validates token against the request with fingerprint and returns
// the cursor it carries.
func (c *Codec) Decode(token, fingerprint string) (Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, invalidToken("page token is not base64url")
	}
	var p payload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Cursor{}, invalidToken("page token is malformed")
	}
	if p.V != TokenVersion {
		return Cursor{}, invalidToken("page token version %d is not supported", p.V)
	}
	sum, err := c.checksum(p)
	if err != nil || !hmac.Equal([]byte(sum), []byte(p.Sum)) {
		return Cursor{}, invalidToken("page token checksum mismatch")
	}
	if p.FP != fingerprint {
		return Cursor{}, invalidToken("page token was issued for a different request")
	}
	if p.Off < 0 {
		return Cursor{}, invalidToken("page token offset %d is negative", p.Off)
	}
	if c.ttl > 0 {
		if age := c.clock.Now().Sub(time.UnixMilli(p.IAt)); age > c.ttl {
			return Cursor{}, invalidToken("page token expired %s ago", (age - c.ttl).Round(time.Second))
		}
	}

	cur := Cursor{Offset: p.Off}
	if p.Snap != nil {
		cur.Snapshot, cur.Pinned = *p.Snap, true
	}
	return cur, nil
}

func invalidToken(format string, args ...any) error {
	return qerr.Resource(qerr.CodeInvalidPageToken, format, args...)
}
