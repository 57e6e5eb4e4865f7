package services

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// IDGenerator allocates opaque 32-byte session identifiers.
type IDGenerator interface {
	NewID(creator string, createdAt time.Time) (string, error)
}

// KeccakIDGenerator hashes the creator, creation time, a process-local
// nonce and a random salt. The salt makes identifiers unguessable ahead of
// creation.
type KeccakIDGenerator struct {
	nonce atomic.Uint64
}

func NewKeccakIDGenerator() *KeccakIDGenerator {
	return &KeccakIDGenerator{}
}

func (g *KeccakIDGenerator) NewID(creator string, createdAt time.Time) (string, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read random salt: %w", err)
	}

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(createdAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], g.nonce.Add(1))

	return crypto.Keccak256Hash([]byte(creator), buf[:], salt).Hex(), nil
}
