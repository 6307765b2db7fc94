package registry

// etcd keeps the directory of which address serves which procedure:
//
//	Key:   {prefix}/{name}/{addr}
//	Value: JSON-encoded ServiceInstance
//
// Entries are attached to TTL leases kept alive in the background. If a
// server dies without deregistering, its lease expires and the entry goes
// with it.

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "/rpccore"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client
	prefix string
	logger *zap.Logger

	// Lease keep-alives outlive the Register call; they stop on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

// NewEtcdRegistry connects to the given endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "registry: connect etcd")
	}
	return NewEtcdRegistryFromClient(c, DefaultPrefix, logger), nil
}

// NewEtcdRegistryFromClient wraps an existing client. Keys live under prefix.
func NewEtcdRegistryFromClient(c *clientv3.Client, prefix string, logger *zap.Logger) *EtcdRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EtcdRegistry{
		client: c,
		prefix: prefix,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		leases: make(map[string]clientv3.LeaseID),
	}
}

func (r *EtcdRegistry) key(name, addr string) string {
	return r.prefix + "/" + name + "/" + addr
}

func (r *EtcdRegistry) namePrefix(name string) string {
	return r.prefix + "/" + name + "/"
}

// Register stores instance under name with a lease of ttl seconds and keeps
// the lease alive until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, name string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Wrap(err, "registry: grant lease")
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := r.key(name, instance.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Wrapf(err, "registry: put %s", key)
	}

	ch, err := r.client.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		return errors.Wrap(err, "registry: keep alive")
	}

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()

	// Drain responses so the keep-alive channel never fills up.
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keep-alive stopped", zap.String("key", key))
	}()
	return nil
}

// Deregister removes the instance and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, name string, addr string) error {
	key := r.key(name, addr)
	if _, err := r.client.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "registry: delete %s", key)
	}

	r.mu.Lock()
	leaseID, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		if _, err := r.client.Revoke(ctx, leaseID); err != nil {
			return errors.Wrapf(err, "registry: revoke lease for %s", key)
		}
	}
	return nil
}

// Discover returns every instance currently registered under name.
func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, r.namePrefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "registry: discover %s", name)
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-reads the instance list whenever anything under name changes.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, r.namePrefix(name), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(ctx, name)
			if err != nil {
				r.logger.Warn("watch refresh failed", zap.String("name", name), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops every keep-alive and closes the client. Leases then expire on
// their own.
func (r *EtcdRegistry) Close() error {
	r.cancel()
	return r.client.Close()
}
