package store

import (
	"context"
	"time"
)

// Object is a stored blob.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// PutObject writes the blob and returns its durable URL.
func (s *Store) PutObject(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO media (key, content_type, data) VALUES ($1,$2,$3)`,
		key, contentType, data,
	)
	if err != nil {
		return "", writeErr("put object", err)
	}
	return mediaURL(s.publicURL, key), nil
}

func (s *Store) GetObject(ctx context.Context, key string) (*Object, error) {
	o := &Object{}
	err := s.pool.QueryRow(ctx,
		`SELECT key, content_type, data, created_at FROM media WHERE key = $1`, key,
	).Scan(&o.Key, &o.ContentType, &o.Data, &o.CreatedAt)
	if err != nil {
		return nil, readErr("get object", err)
	}
	return o, nil
}
