package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/colmadogutierrez/debtbook/pkg/kv"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/metrics"
)

const writeTimeout = 10 * time.Second

// persister writes ledger snapshots in the background. Only the newest
// pending snapshot is written; versions never go backwards.
type persister struct {
	kv      kv.Store
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics

	mu             sync.Mutex
	pending        []byte
	pendingVersion uint64
	written        uint64
	lastErr        error
	waiters        []flushWaiter

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type flushWaiter struct {
	version uint64
	ch      chan struct{}
}

func newPersister(store kv.Store, logg *logger.Logger, m *metrics.LedgerMetrics) *persister {
	p := &persister{
		kv:      store,
		logg:    logg,
		metrics: m,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) submit(version uint64, snapshot []byte) {
	p.mu.Lock()
	if version > p.pendingVersion {
		p.pending = snapshot
		p.pendingVersion = version
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			p.drain()
			return
		case <-p.wake:
			p.drain()
		}
	}
}

func (p *persister) drain() {
	for {
		p.mu.Lock()
		if p.pending == nil {
			p.mu.Unlock()
			return
		}
		snapshot, version := p.pending, p.pendingVersion
		p.pending = nil
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.kv.Set(ctx, StorageKey, string(snapshot))
		cancel()

		if err != nil {
			p.metrics.IncPersist("error")
			if p.logg != nil {
				p.logg.Error(p.logg.WithField(context.Background(), "version", version), "ledger snapshot write failed", err)
			}
		} else {
			p.metrics.IncPersist("ok")
		}

		p.mu.Lock()
		p.written = version
		p.lastErr = err
		remaining := p.waiters[:0]
		for _, w := range p.waiters {
			if w.version <= p.written {
				close(w.ch)
				continue
			}
			remaining = append(remaining, w)
		}
		p.waiters = remaining
		p.mu.Unlock()
	}
}

// flush blocks until the snapshot with the given version (or a newer one) has
// been written, returning the result of the latest write.
func (p *persister) flush(ctx context.Context, version uint64) error {
	p.mu.Lock()
	if p.written >= version {
		err := p.lastErr
		p.mu.Unlock()
		return err
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, flushWaiter{version: version, ch: ch})
	p.mu.Unlock()

	select {
	case <-ch:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.lastErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *persister) close(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
