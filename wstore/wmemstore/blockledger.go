package wmemstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ssc-witness/witness/wstore"
)

type BlockLedger struct {
	mu     sync.RWMutex
	hashes map[uint64]string
}

var _ wstore.BlockLedger = (*BlockLedger)(nil)

func NewBlockLedger() *BlockLedger {
	return &BlockLedger{hashes: make(map[uint64]string)}
}

func (l *BlockLedger) LoadBlockHash(_ context.Context, blockNumber uint64) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h, ok := l.hashes[blockNumber]
	if !ok {
		return "", fmt.Errorf("%w: %d", wstore.ErrBlockNotFound, blockNumber)
	}
	return h, nil
}

func (l *BlockLedger) PutBlockHash(blockNumber uint64, hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hashes[blockNumber] = hash
}

func (l *BlockLedger) DeleteBlockHash(blockNumber uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.hashes, blockNumber)
}
