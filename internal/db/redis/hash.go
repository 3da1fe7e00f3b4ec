package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/catalogix/internal/db"
)

// HSet writes all fields in one HSET, so a record never appears half-written.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	cmd := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// HGet reads one field. A missing key or field is db.ErrKeyNotFound.
func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.do(ctx, s.b().Hget().Key(key).Field(field).Build()).ToString()
	switch {
	case err == nil:
		return v, nil
	case rueidis.IsRedisNil(err):
		return "", db.ErrKeyNotFound
	default:
		return "", &db.Error{Op: db.OpHGet, Err: err}
	}
}

// HGetAll reads a whole hash; a missing key gives an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	return m, nil
}

// Del removes a key. Deleting a missing key succeeds.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.do(ctx, s.b().Del().Key(key).Build()).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}
