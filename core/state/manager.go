package state

import (
	"errors"
	"sync"

	"rafflechain/native/lottery"
	"rafflechain/storage"
)

var (
	feeConfigPrefix = []byte("lottery/fee-config:")
	lotteryPrefix   = []byte("lottery/record:")
	vaultPrefix     = []byte("lottery/vault:")
	balancePrefix   = []byte("balance:")
	mintPrefix      = []byte("mint:")
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func feeConfigKey(owner [20]byte) []byte {
	addr := lottery.FeeConfigAddress(owner)
	return prefixedKey(feeConfigPrefix, addr[:])
}

func lotteryKey(id [20]byte) []byte { return prefixedKey(lotteryPrefix, id[:]) }

func vaultKey(vault [20]byte) []byte { return prefixedKey(vaultPrefix, vault[:]) }

func balanceKey(owner, mint [20]byte) []byte {
	return prefixedKey(balancePrefix, mint[:], owner[:])
}

func mintKey(mint [20]byte) []byte { return prefixedKey(mintPrefix, mint[:]) }

// Manager persists fee configs, lotteries, mints and token balances on top of
// a storage.Database. Transactions are serialised: Begin blocks until the
// previous transaction has been committed or discarded.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction. Writes are buffered in memory and flushed as a
// single storage batch on Commit.
func (m *Manager) Begin() lottery.Txn {
	m.mu.Lock()
	return &Txn{
		manager: m,
		writes:  make(map[string][]byte),
	}
}

// Txn buffers reads-your-writes state changes until Commit.
type Txn struct {
	manager *Manager
	writes  map[string][]byte
	order   []string
	done    bool
}

var errTxnFinished = errors.New("state: transaction already finished")

func (t *Txn) get(key []byte) ([]byte, bool, error) {
	if t.done {
		return nil, false, errTxnFinished
	}
	if v, ok := t.writes[string(key)]; ok {
		return v, true, nil
	}
	v, err := t.manager.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (t *Txn) put(key, value []byte) error {
	if t.done {
		return errTxnFinished
	}
	k := string(key)
	if _, seen := t.writes[k]; !seen {
		t.order = append(t.order, k)
	}
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

// Commit writes every buffered change atomically.
func (t *Txn) Commit() error {
	if t.done {
		return errTxnFinished
	}
	defer t.release()
	if len(t.order) == 0 {
		return nil
	}
	batch := t.manager.db.NewBatch()
	for _, k := range t.order {
		batch.Put([]byte(k), t.writes[k])
	}
	return batch.Write()
}

// Discard drops buffered changes. It is safe to call after Commit.
func (t *Txn) Discard() {
	if t.done {
		return
	}
	t.release()
}

func (t *Txn) release() {
	t.done = true
	t.writes = nil
	t.order = nil
	t.manager.mu.Unlock()
}

// Close releases the underlying database.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}
