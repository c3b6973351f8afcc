// Package objectstore 把合成好的 WAV 保存到 NATS JetStream 对象存储。
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/iabetor/whistle/internal/logger"
)

// NatsObjectStore 基于 JetStream 对象存储。
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New 创建 bucket，已存在时直接绑定。
func New(js nats.JetStreamContext, bucket string) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("whistle 合成音频 (%s)", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("创建对象存储 %s 失败: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("绑定对象存储 %s 失败: %w", bucket, err)
		}
		logger.Debugf("[objectstore] 绑定已有 bucket: %s", bucket)
	}

	return &NatsObjectStore{bucket: bucket, store: store}, nil
}

// Bucket 返回 bucket 名称。
func (n *NatsObjectStore) Bucket() string { return n.bucket }

// Download 读取一个对象。
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 失败: %w", n.bucket, key, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("读取对象 %s 失败: %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("关闭对象 %s 失败: %w", key, closeErr)
	}
	return data, nil
}

// Upload 写入一个对象，同名对象被覆盖。
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("写入对象 %s/%s 失败: %w", n.bucket, key, err)
	}
	return nil
}
