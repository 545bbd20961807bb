package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/niczy/zombies/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStorage implements Storage with Redis as the transactional account
// cache and an ObjectStore as the durable copy of every committed account.
type RedisStorage struct {
	rdb         redis.UniversalClient
	objectStore ObjectStore
	keyPrefix   string
}

// NewRedisStorage creates a Redis-backed storage implementation.
func NewRedisStorage(rdb redis.UniversalClient, objectStore ObjectStore, keyPrefix string) *RedisStorage {
	return &RedisStorage{rdb: rdb, objectStore: objectStore, keyPrefix: keyPrefix}
}

func ensureCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (s *RedisStorage) key(parts ...string) string {
	if s.keyPrefix == "" {
		return fmt.Sprintf("zombies:%s", joinKey(parts...))
	}
	return fmt.Sprintf("%s:%s", s.keyPrefix, joinKey(parts...))
}

func joinKey(parts ...string) string {
	return strings.Join(parts, ":")
}

func (s *RedisStorage) accountKey(addr models.Address) string {
	return s.key("account", addr.String())
}

func durableKey(addr models.Address) string {
	return "accounts/" + addr.String()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// loadAccount reads an encoded account, falling back to the object store on a
// cache miss. With recache set, a blob found there is written back to Redis;
// watched reads must not do that or they would abort their own transaction.
func (s *RedisStorage) loadAccount(ctx context.Context, g getter, addr models.Address, recache bool) ([]byte, bool, error) {
	raw, err := g.Get(ctx, s.accountKey(addr)).Bytes()
	if err == nil {
		return raw, true, nil
	}
	if err != redis.Nil {
		return nil, false, err
	}

	raw, err = s.objectStore.GetObject(ctx, durableKey(addr))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if recache {
		_ = s.rdb.SetNX(ctx, s.accountKey(addr), raw, 0).Err()
	}
	return raw, true, nil
}

// GetArmy fetches the army stored at addr.
func (s *RedisStorage) GetArmy(ctx context.Context, addr models.Address) (*models.Army, error) {
	ctx = ensureCtx(ctx)
	raw, ok, err := s.loadAccount(ctx, s.rdb, addr, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return models.DecodeArmy(raw)
}

// GetBattle fetches the battle receipt stored at addr.
func (s *RedisStorage) GetBattle(ctx context.Context, addr models.Address) (*models.Battle, error) {
	ctx = ensureCtx(ctx)
	raw, ok, err := s.loadAccount(ctx, s.rdb, addr, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return models.DecodeBattle(raw)
}

// Commit validates tx against the watched account keys and writes every
// account in one MULTI/EXEC. A concurrent write to any watched key aborts the
// transaction with ErrConflict. The durable copies are written before EXEC, so
// an object store failure leaves the cache untouched; when EXEC fails after
// that, the durable copies are brought back in line with Redis.
func (s *RedisStorage) Commit(ctx context.Context, tx *Tx) error {
	ctx = ensureCtx(ctx)
	if err := validateTx(tx); err != nil {
		return err
	}

	keys := make([]string, 0, len(tx.Armies)+len(tx.Battles))
	for _, w := range tx.Armies {
		keys = append(keys, s.accountKey(w.Address))
	}
	for _, w := range tx.Battles {
		keys = append(keys, s.accountKey(w.Address))
	}

	txf := func(rtx *redis.Tx) error {
		encoded := make(map[models.Address][]byte, len(keys))
		prior := make(map[models.Address][]byte, len(keys))
		for _, w := range tx.Armies {
			current, exists, err := s.loadAccount(ctx, rtx, w.Address, false)
			if err != nil {
				return err
			}
			if err := checkArmy(current, exists, w); err != nil {
				return err
			}
			encoded[w.Address] = models.EncodeArmy(w.Next)
			prior[w.Address] = current
		}
		for _, w := range tx.Battles {
			_, exists, err := s.loadAccount(ctx, rtx, w.Address, false)
			if err != nil {
				return err
			}
			if exists {
				return ErrAccountExists
			}
			encoded[w.Address] = models.EncodeBattle(w.Battle)
			prior[w.Address] = nil
		}

		written := make([]models.Address, 0, len(encoded))
		for addr, raw := range encoded {
			if err := s.objectStore.PutObject(ctx, durableKey(addr), raw); err != nil {
				s.restoreDurable(ctx, written, prior)
				return fmt.Errorf("persist account %s: %w", addr, err)
			}
			written = append(written, addr)
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for addr, raw := range encoded {
				pipe.Set(ctx, s.accountKey(addr), raw, 0)
			}
			return nil
		})
		if err != nil {
			s.restoreDurable(ctx, written, prior)
		}
		return err
	}

	if err := s.rdb.Watch(ctx, txf, keys...); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// restoreDurable re-syncs the durable copies of addrs after a failed commit.
// The cached value wins when present, since a concurrent writer may have
// committed it; otherwise the value read before the commit is put back.
func (s *RedisStorage) restoreDurable(ctx context.Context, addrs []models.Address, prior map[models.Address][]byte) {
	for _, addr := range addrs {
		var err error
		raw, getErr := s.rdb.Get(ctx, s.accountKey(addr)).Bytes()
		switch {
		case getErr == nil:
			err = s.objectStore.PutObject(ctx, durableKey(addr), raw)
		case getErr != redis.Nil:
			err = getErr
		case prior[addr] != nil:
			err = s.objectStore.PutObject(ctx, durableKey(addr), prior[addr])
		default:
			err = s.objectStore.DeleteObject(ctx, durableKey(addr))
		}
		if err != nil {
			log.Printf("Failed to restore durable account %s: %v", addr, err)
		}
	}
}

// Evict drops the cached copy of an account; the next read reloads it from the object store.
func (s *RedisStorage) Evict(ctx context.Context, addr models.Address) error {
	ctx = ensureCtx(ctx)
	return s.rdb.Del(ctx, s.accountKey(addr)).Err()
}

// Ping checks Redis connectivity.
func (s *RedisStorage) Ping(ctx context.Context) error {
	ctx = ensureCtx(ctx)
	return s.rdb.Ping(ctx).Err()
}
