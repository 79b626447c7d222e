package coordination

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/burrowlabs/burrow/pkg/log"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultSessionTTL  = 15 // seconds
)

// EtcdConfig holds connection settings for the etcd-backed store
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	SessionTTL  int // lease TTL in seconds for ephemeral paths
	Username    string
	Password    string
}

// Dial returns a DialFunc that opens etcd sessions with this configuration
func (c EtcdConfig) Dial() DialFunc {
	return func(ctx context.Context) (Store, error) {
		return DialEtcd(ctx, c)
	}
}

// EtcdStore implements Store on top of an etcd client plus a concurrency
// session whose lease backs ephemeral paths.
type EtcdStore struct {
	client  *clientv3.Client
	session *concurrency.Session
	closed  atomic.Bool
}

// DialEtcd opens a new etcd client and session. The returned store owns both
// and releases them on Close.
func DialEtcd(ctx context.Context, cfg EtcdConfig) (*EtcdStore, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	session, err := concurrency.NewSession(client, concurrency.WithTTL(ttl), concurrency.WithContext(ctx))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	// Wait for the first keep-alive so a dead endpoint fails here, not later
	if _, err := client.KeepAliveOnce(ctx, session.Lease()); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("etcd session keep-alive failed: %w", err)
	}

	logger := log.WithComponent("coordination")
	logger.Debug().
		Strs("endpoints", cfg.Endpoints).
		Int("session_ttl", ttl).
		Msg("etcd session established")

	return &EtcdStore{client: client, session: session}, nil
}

func (s *EtcdStore) Create(ctx context.Context, path string, value []byte) error {
	return s.create(ctx, path, value, false)
}

func (s *EtcdStore) CreateEphemeral(ctx context.Context, path string, value []byte) error {
	return s.create(ctx, path, value, true)
}

func (s *EtcdStore) create(ctx context.Context, path string, value []byte, ephemeral bool) error {
	if s.closed.Load() {
		return ErrClosed
	}

	put := clientv3.OpPut(path, string(value))
	if ephemeral {
		put = clientv3.OpPut(path, string(value), clientv3.WithLease(s.session.Lease()))
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(path), "=", 0)).
		Then(put).
		Commit()
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("create %s: %w", path, ErrExists)
	}
	return nil
}

func (s *EtcdStore) Delete(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.client.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *EtcdStore) DeleteSubtree(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.client.Txn(ctx).Then(
		clientv3.OpDelete(path),
		clientv3.OpDelete(path+"/", clientv3.WithPrefix()),
	).Commit()
	if err != nil {
		return fmt.Errorf("delete subtree %s: %w", path, err)
	}
	return nil
}

func (s *EtcdStore) Exists(ctx context.Context, path string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	resp, err := s.client.Get(ctx, path, clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	if resp.Count > 0 {
		return true, nil
	}
	// The path may exist only as an interior node, visible through descendants
	resp, err = s.client.Get(ctx, path+"/", clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return resp.Count > 0, nil
}

func (s *EtcdStore) Get(ctx context.Context, path string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return resp.Kvs[0].Value, nil
}

func (s *EtcdStore) Children(ctx context.Context, path string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	prefix := path + "/"
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}

	seen := make(map[string]struct{})
	children := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		rest := strings.TrimPrefix(string(kv.Key), prefix)
		name, _, _ := strings.Cut(rest, "/")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		children = append(children, name)
	}
	return children, nil
}

func (s *EtcdStore) Watch(ctx context.Context, path string) (<-chan WatchEvent, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	watchCh := s.client.Watch(ctx, path+"/", clientv3.WithPrefix())
	out := make(chan WatchEvent, 64)

	go func() {
		defer close(out)
		for resp := range watchCh {
			if err := resp.Err(); err != nil {
				logger := log.WithComponent("coordination")
				logger.Warn().Err(err).
					Str("path", path).Msg("watch terminated")
				return
			}
			for _, ev := range resp.Events {
				we := WatchEvent{Path: string(ev.Kv.Key)}
				if ev.Type == clientv3.EventTypeDelete {
					we.Type = EventDelete
				} else {
					we.Type = EventPut
					we.Value = ev.Kv.Value
				}
				select {
				case out <- we:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases the session lease (removing ephemeral paths) and the client
func (s *EtcdStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.session.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}
