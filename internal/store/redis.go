package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"bridgewallet.io/bridge-wallet/internal/config"
	"bridgewallet.io/bridge-wallet/internal/session"
	"bridgewallet.io/bridge-wallet/pkg/errors"
	"bridgewallet.io/bridge-wallet/pkg/log"
)

const redisKeyPrefix = "wc:session:"

// RedisStore persists session records as JSON values keyed by topic.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects and pings redis with the given credential.
// A zero ttl keeps records until removed.
func NewRedisStore(cred *config.DBCredential, ttl time.Duration) (*RedisStore, error) {
	db, _ := strconv.ParseInt(cred.Database, 10, 64)
	client := redis.NewClient(&redis.Options{
		Addr:     cred.GetRedisAddress(),
		Password: cred.Password,
		DB:       int(db),
	})
	if _, err := client.Ping(context.TODO()).Result(); err != nil {
		return nil, errors.WrapAndReport(err, "ping to redis")
	}
	log.Info("Connected to redis session store...")
	return &RedisStore{client: client, ttl: ttl}, nil
}

type redisRecord struct {
	Topic            string            `json:"topic"`
	Version          string            `json:"version"`
	Bridge           string            `json:"bridge"`
	Key              string            `json:"key"`
	NumericalVersion float64           `json:"numericalVersion"`
	Source           string            `json:"source"`
	IsExtension      bool              `json:"isExtension"`
	PeerID           string            `json:"peerId"`
	PeerMeta         *session.PeerMeta `json:"peerMeta"`
}

func (s *RedisStore) Load(topic string) (*Record, error) {
	data, err := s.client.Get(context.TODO(), redisKeyPrefix+topic).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "load session record")
	}
	var stored redisRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal session record")
	}
	key, err := hex.DecodeString(stored.Key)
	if err != nil {
		return nil, errors.WrapAndReport(err, "decode session record key")
	}
	return &Record{
		Session: &session.Session{
			Topic:            stored.Topic,
			Version:          stored.Version,
			Bridge:           stored.Bridge,
			Key:              key,
			NumericalVersion: stored.NumericalVersion,
			Source:           session.Source(stored.Source),
			IsExtension:      stored.IsExtension,
		},
		PeerID:   stored.PeerID,
		PeerMeta: stored.PeerMeta,
	}, nil
}

func (s *RedisStore) Store(topic string, record *Record) error {
	if record == nil || record.Session == nil {
		return errors.New("session record requires a session descriptor")
	}
	stored := redisRecord{
		Topic:            record.Session.Topic,
		Version:          record.Session.Version,
		Bridge:           record.Session.Bridge,
		Key:              hex.EncodeToString(record.Session.Key),
		NumericalVersion: record.Session.NumericalVersion,
		Source:           string(record.Session.Source),
		IsExtension:      record.Session.IsExtension,
		PeerID:           record.PeerID,
		PeerMeta:         record.PeerMeta,
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return errors.WrapAndReport(err, "marshal session record")
	}
	err = s.client.Set(context.TODO(), redisKeyPrefix+topic, data, s.ttl).Err()
	return errors.WrapAndReport(err, "store session record")
}

func (s *RedisStore) Remove(topic string) error {
	err := s.client.Del(context.TODO(), redisKeyPrefix+topic).Err()
	return errors.WrapAndReport(err, "remove session record")
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
