package memory

import (
	"context"
	"sync"
)

// KV is an in-process progress.KV, lost on restart.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewKV() *KV {
	return &KV{data: make(map[string][]byte)}
}

func (k *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (k *KV) Update(_ context.Context, key string, fn func(old []byte, ok bool) ([]byte, error)) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	old, ok := k.data[key]
	next, err := fn(append([]byte(nil), old...), ok)
	if err != nil {
		return err
	}
	k.data[key] = append([]byte(nil), next...)
	return nil
}

func (k *KV) Delete(_ context.Context, keys ...string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.data, key)
	}
	return nil
}
