// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/sealed"
	"github.com/bureau-foundation/custody/lib/secret"
)

// recordVersion is the on-disk key record format version.
const recordVersion = 1

// recordSuffix is appended to the alias to form a record file name.
const recordSuffix = ".key"

// keyRecord is the CBOR file written for each alias. The private key
// is PKCS#1 DER sealed with the store passphrase; the public key is
// PKIX DER in the clear.
type keyRecord struct {
	Version          int    `cbor:"version"`
	Alias            string `cbor:"alias"`
	CreatedAt        int64  `cbor:"created_at"`
	KeyBits          int    `cbor:"key_bits"`
	PublicKey        []byte `cbor:"public_key"`
	SealedPrivateKey []byte `cbor:"sealed_private_key"`
}

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	// KeyBits is the RSA modulus size for new keys. Zero selects
	// DefaultKeyBits.
	KeyBits int

	// WorkFactor is the scrypt log2(N) used when sealing new keys.
	// Zero selects sealed.DefaultWorkFactor.
	WorkFactor int

	// Now stamps new records. Nil selects time.Now.
	Now func() time.Time
}

// FileStore persists keys as sealed CBOR records in a directory, one
// file per alias. Public keys are readable while locked; CreateKey and
// PrivateKey need the passphrase supplied to Unlock.
type FileStore struct {
	directory  string
	keyBits    int
	workFactor int
	now        func() time.Time

	mu         sync.Mutex
	passphrase *secret.Buffer
	opened     map[string]*privateKey
}

// OpenFileStore opens (creating if necessary) a key directory. The
// directory is created with mode 0700; an existing directory readable
// by other users is refused.
func OpenFileStore(directory string, options FileStoreOptions) (*FileStore, error) {
	keyBits := options.KeyBits
	if keyBits == 0 {
		keyBits = DefaultKeyBits
	}
	if err := validKeyBits(keyBits); err != nil {
		return nil, err
	}
	workFactor := options.WorkFactor
	if workFactor == 0 {
		workFactor = sealed.DefaultWorkFactor
	}
	if workFactor < 1 || workFactor > sealed.MaxWorkFactor {
		return nil, fmt.Errorf("scrypt work factor %d out of range [1, %d]", workFactor, sealed.MaxWorkFactor)
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("creating key directory %s: %w", directory, err)
	}
	info, err := os.Stat(directory)
	if err != nil {
		return nil, fmt.Errorf("checking key directory %s: %w", directory, err)
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("key directory %s is accessible by other users (mode %o)", directory, info.Mode().Perm())
	}

	return &FileStore{
		directory:  directory,
		keyBits:    keyBits,
		workFactor: workFactor,
		now:        now,
		opened:     make(map[string]*privateKey),
	}, nil
}

// ErrKeysOpen is returned by Unlock once PrivateKey has handed out a
// handle. Replacing the passphrase then would mean closing handles a
// caller still holds; Close the store and open a new one instead.
var ErrKeysOpen = errors.New("keystore has open private keys")

// Unlock stores a protected copy of passphrase for sealing and opening
// keys. Unlock may be called again to replace the passphrase only
// while no private key is open; otherwise it returns ErrKeysOpen and
// the store keeps its current passphrase.
func (s *FileStore) Unlock(passphrase *secret.Buffer) error {
	if passphrase == nil || passphrase.Len() == 0 {
		return fmt.Errorf("empty passphrase")
	}
	copied, err := secret.NewFromBytes(bytes.Clone(passphrase.Bytes()))
	if err != nil {
		return fmt.Errorf("protecting passphrase: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.opened) > 0 {
		copied.Close()
		return ErrKeysOpen
	}
	if s.passphrase != nil {
		s.passphrase.Close()
	}
	s.passphrase = copied
	return nil
}

// CreateKey generates and seals a key under alias. An existing record
// is never overwritten: the new record is linked into place, and if
// another writer got there first the freshly generated key is dropped.
func (s *FileStore) CreateKey(alias string) error {
	if err := ValidateAlias(alias); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.passphrase == nil {
		return ErrLocked
	}

	path := s.recordPath(alias)
	if _, err := os.Lstat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, s.keyBits)
	if err != nil {
		return fmt.Errorf("generating RSA-%d key: %w", s.keyBits, err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	privateDER := x509.MarshalPKCS1PrivateKey(key)
	sealedKey, err := sealed.Seal(privateDER, s.passphrase, s.workFactor)
	secret.Zero(privateDER)
	if err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}

	data, err := codec.Marshal(keyRecord{
		Version:          recordVersion,
		Alias:            alias,
		CreatedAt:        s.now().Unix(),
		KeyBits:          s.keyBits,
		PublicKey:        publicDER,
		SealedPrivateKey: sealedKey,
	})
	if err != nil {
		return fmt.Errorf("encoding key record: %w", err)
	}

	return s.publish(path, data)
}

// publish writes data to a temporary file and hard-links it to path.
// link(2) fails with EEXIST rather than replacing, which is what makes
// concurrent CreateKey calls from separate processes safe.
func (s *FileStore) publish(path string, data []byte) error {
	temporary, err := os.CreateTemp(s.directory, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary record: %w", err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if err := temporary.Chmod(0600); err != nil {
		temporary.Close()
		return fmt.Errorf("setting record permissions: %w", err)
	}
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing temporary record: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return fmt.Errorf("syncing temporary record: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing temporary record: %w", err)
	}

	if err := os.Link(temporaryPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("publishing record %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) PrivateKey(alias string) (crypto.Decrypter, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if handle, ok := s.opened[alias]; ok {
		return handle, nil
	}
	if s.passphrase == nil {
		return nil, ErrLocked
	}

	record, public, err := s.readRecord(alias)
	if err != nil {
		return nil, err
	}
	der, err := sealed.Open(record.SealedPrivateKey, s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("opening private key %q: %w", alias, err)
	}
	handle, err := newPrivateKey(der, public)
	if err != nil {
		der.Close()
		return nil, fmt.Errorf("loading private key %q: %w", alias, err)
	}
	s.opened[alias] = handle
	return handle, nil
}

func (s *FileStore) PublicKey(alias string) (*rsa.PublicKey, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	_, public, err := s.readRecord(alias)
	if err != nil {
		return nil, err
	}
	return public, nil
}

// Close forgets the passphrase and releases opened keys.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstError error
	for alias, handle := range s.opened {
		if err := handle.close(); err != nil && firstError == nil {
			firstError = err
		}
		delete(s.opened, alias)
	}
	if s.passphrase != nil {
		if err := s.passphrase.Close(); err != nil && firstError == nil {
			firstError = err
		}
		s.passphrase = nil
	}
	return firstError
}

func (s *FileStore) readRecord(alias string) (*keyRecord, *rsa.PublicKey, error) {
	path := s.recordPath(alias)
	data, err := readBounded(path, codec.MaxRecordSize)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %q", ErrKeyNotFound, alias)
		}
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var record keyRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if record.Version != recordVersion {
		return nil, nil, fmt.Errorf("%s: unsupported record version %d", path, record.Version)
	}
	if record.Alias != alias {
		return nil, nil, fmt.Errorf("%s: record is for alias %q", path, record.Alias)
	}

	parsed, err := x509.ParsePKIXPublicKey(record.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: parsing public key: %w", path, err)
	}
	public, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("%s: public key is %T, not RSA", path, parsed)
	}
	return &record, public, nil
}

// readBounded reads path, refusing a file larger than limit without
// reading it all. The size is checked on the open file, and the read
// itself is capped in case the file grows in between.
func readBounded(path string, limit int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file")
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", codec.ErrRecordTooLarge, info.Size(), limit)
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: grew past %d bytes while reading", codec.ErrRecordTooLarge, limit)
	}
	return data, nil
}

func (s *FileStore) recordPath(alias string) string {
	return filepath.Join(s.directory, alias+recordSuffix)
}
