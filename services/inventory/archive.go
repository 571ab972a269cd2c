package inventory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
)

// Archiver keeps the raw document of every staged report.
type Archiver interface {
	Archive(ctx context.Context, sn string, raw map[string]any, at time.Time) (string, error)
}

// ObjectStore is satisfied by *s3.Client.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256 string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ObjectArchiver writes zstd-compressed reports to an object store,
// encrypted to an age recipient when one is configured.
type ObjectArchiver struct {
	store     ObjectStore
	bucket    string
	recipient age.Recipient
	encoder   *zstd.Encoder
}

// NewObjectArchiver builds an archiver. recipient is an age X25519 public
// key ("age1..."); empty disables encryption.
func NewObjectArchiver(store ObjectStore, bucket, recipient string) (*ObjectArchiver, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("archive bucket is required")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	a := &ObjectArchiver{store: store, bucket: bucket, encoder: enc}
	if recipient = strings.TrimSpace(recipient); recipient != "" {
		r, err := age.ParseX25519Recipient(recipient)
		if err != nil {
			return nil, fmt.Errorf("parse archive recipient: %w", err)
		}
		a.recipient = r
	}
	return a, nil
}

// Archive stores raw and returns the object key.
func (a *ObjectArchiver) Archive(ctx context.Context, sn string, raw map[string]any, at time.Time) (string, error) {
	doc, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	payload := a.encoder.EncodeAll(doc, nil)

	key := archiveKey(sn, at, a.recipient != nil)
	if a.recipient != nil {
		var buf bytes.Buffer
		w, err := age.Encrypt(&buf, a.recipient)
		if err != nil {
			return "", err
		}
		if _, err := w.Write(payload); err != nil {
			return "", err
		}
		if err := w.Close(); err != nil {
			return "", err
		}
		payload = buf.Bytes()
	}

	sum := sha256.Sum256(payload)
	err = a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), hex.EncodeToString(sum[:]))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	return key, nil
}

// Open reads an archived report back. identities are required for encrypted objects.
func (a *ObjectArchiver) Open(ctx context.Context, key string, identities ...age.Identity) (map[string]any, error) {
	rc, err := a.store.GetObject(ctx, a.bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if strings.HasSuffix(key, ".age") {
		if len(identities) == 0 {
			return nil, errors.New("archived report is encrypted and no identity was given")
		}
		if r, err = age.Decrypt(rc, identities...); err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", key, err)
		}
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var raw map[string]any
	if err := json.NewDecoder(dec).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return raw, nil
}

// archiveKey keeps only [A-Za-z0-9._-] of sn so a serial cannot add path
// segments or control bytes to the object key.
func archiveKey(sn string, at time.Time, encrypted bool) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, sn)
	if strings.Trim(safe, ".") == "" {
		safe = strings.Repeat("_", len(safe))
	}
	key := fmt.Sprintf("reports/%s/%s.json.zst", safe, at.UTC().Format("20060102T150405.000000000Z"))
	if encrypted {
		key += ".age"
	}
	return key
}
