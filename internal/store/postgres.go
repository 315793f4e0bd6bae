package store

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"bridgewallet.io/bridge-wallet/internal/config"
	"bridgewallet.io/bridge-wallet/internal/session"
	"bridgewallet.io/bridge-wallet/pkg/errors"
	"bridgewallet.io/bridge-wallet/pkg/log"
)

// BridgeSession is the persisted row for a paired session.
type BridgeSession struct {
	Topic            string  `gorm:"primaryKey;type:varchar(255)"`
	Version          string  `gorm:"type:varchar(16)"`
	Bridge           string  `gorm:"type:varchar(512)"`
	EncryptionKey    string  `gorm:"type:varchar(64)"`
	NumericalVersion float64 `gorm:"type:float8"`
	Source           string  `gorm:"type:varchar(16)"`
	IsExtension      bool    `gorm:"type:bool"`
	PeerID           string  `gorm:"type:varchar(255);index"`
	PeerMeta         string  `gorm:"type:jsonb"`
	CreatedTime      int64   `gorm:"type:int8"`
	UpdatedTime      int64   `gorm:"type:int8"`
}

// PostgresStore persists session records in the bridge_sessions table.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore connects, pings and migrates the session table.
func NewPostgresStore(conf *config.DBCredential) (*PostgresStore, error) {
	cli, err := gorm.Open(postgres.Open(conf.Dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, errors.WrapAndReport(err, "connect to pg")
	}
	db, err := cli.DB()
	if err != nil {
		return nil, errors.WrapAndReport(err, "get pg conn")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.WrapAndReport(err, "ping to pg")
	}
	if err := cli.AutoMigrate(&BridgeSession{}); err != nil {
		return nil, errors.WrapAndReport(err, "autoMigrate tables")
	}
	log.Info("Connected to postgres session store...")
	return &PostgresStore{db: cli}, nil
}

func (s *PostgresStore) Load(topic string) (*Record, error) {
	var row BridgeSession
	err := s.db.Where("topic = ?", topic).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "load bridge session")
	}
	key, err := hex.DecodeString(row.EncryptionKey)
	if err != nil {
		return nil, errors.WrapAndReport(err, "decode bridge session key")
	}
	var meta *session.PeerMeta
	if row.PeerMeta != "" {
		meta = &session.PeerMeta{}
		if err := json.Unmarshal([]byte(row.PeerMeta), meta); err != nil {
			return nil, errors.WrapAndReport(err, "unmarshal bridge session peer meta")
		}
	}
	return &Record{
		Session: &session.Session{
			Topic:            row.Topic,
			Version:          row.Version,
			Bridge:           row.Bridge,
			Key:              key,
			NumericalVersion: row.NumericalVersion,
			Source:           session.Source(row.Source),
			IsExtension:      row.IsExtension,
		},
		PeerID:   row.PeerID,
		PeerMeta: meta,
	}, nil
}

func (s *PostgresStore) Store(topic string, record *Record) error {
	if record == nil || record.Session == nil {
		return errors.New("session record requires a session descriptor")
	}
	meta := ""
	if record.PeerMeta != nil {
		data, err := json.Marshal(record.PeerMeta)
		if err != nil {
			return errors.WrapAndReport(err, "marshal bridge session peer meta")
		}
		meta = string(data)
	}
	now := time.Now().UnixMilli()
	row := BridgeSession{
		Topic:            record.Session.Topic,
		Version:          record.Session.Version,
		Bridge:           record.Session.Bridge,
		EncryptionKey:    hex.EncodeToString(record.Session.Key),
		NumericalVersion: record.Session.NumericalVersion,
		Source:           string(record.Session.Source),
		IsExtension:      record.Session.IsExtension,
		PeerID:           record.PeerID,
		PeerMeta:         meta,
		CreatedTime:      now,
		UpdatedTime:      now,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "topic"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"peer_id", "peer_meta", "updated_time",
		}),
	}).Create(&row).Error
	return errors.WrapAndReport(err, "store bridge session")
}

func (s *PostgresStore) Remove(topic string) error {
	err := s.db.Where("topic = ?", topic).Delete(&BridgeSession{}).Error
	return errors.WrapAndReport(err, "remove bridge session")
}
