package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bridgewallet.io/bridge-wallet/internal/chains"
	"bridgewallet.io/bridge-wallet/internal/config"
	"bridgewallet.io/bridge-wallet/internal/interactor"
	"bridgewallet.io/bridge-wallet/internal/session"
	"bridgewallet.io/bridge-wallet/internal/store"
	"bridgewallet.io/bridge-wallet/pkg/errors"
	"bridgewallet.io/bridge-wallet/pkg/log"
)

func main() {
	log.Infof("Starting bridge wallet")
	startApp()
}

func startApp() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	uri := flag.String("uri", "", "The pairing uri scanned from the dapp qr code")
	config.Read()
	log.SetLevel(config.Global.LogLevel)
	if err := errors.NewSentryReporter(config.Global.SentryDSN); err != nil {
		log.Fatal(err)
	}
	errors.NewLarkReporter(config.Global.LarkAlarmWebhook, time.Minute)

	sess, err := session.ParseURI(*uri)
	if err != nil {
		log.Fatalf("parse pairing uri:%v", err)
	}

	wallet := interactor.New(sess, interactor.Options{
		SessionRequestTimeout: time.Duration(config.Global.Timeouts.SessionRequestSec) * time.Second,
		ConnectTimeout:        time.Duration(config.Global.Timeouts.ConnectSec) * time.Second,
		PingInterval:          time.Duration(config.Global.Timeouts.PingIntervalSec) * time.Second,
		DisableReconnect:      !config.Global.Reconnect.Enabled,
		ReconnectAttempts:     config.Global.Reconnect.Attempts,
		ReconnectDelay:        time.Duration(config.Global.Reconnect.DelayMillis) * time.Millisecond,
		Store:                 newSessionStore(),
	})

	done := make(chan struct{})
	wallet.Callbacks = &interactor.Callbacks{
		OnSessionRequest: func(id int64, param interactor.SessionRequestParam) {
			log.Infof("session request %v from %v, approve or reject via the wallet api", id, param.PeerID)
		},
		OnSessionKilled: func() {
			log.Info("session killed")
			close(done)
		},
		OnConnected: func() {
			log.Info("connected to bridge")
		},
		OnDisconnect: func(err error) {
			if err != nil {
				log.Errorf("disconnected:%v", err)
			} else {
				log.Info("disconnected")
			}
		},
		OnCustomRequest: func(id int64, raw json.RawMessage, timestamp *uint64) {
			log.Infof("custom request %v:%v", id, string(raw))
		},
		OnError: func(err error) {
			log.Errorf("session error:%v", err)
		},
		OnReceiveACK: func(msg interactor.AckMessage) {
			log.Debugf("ack on topic %v", msg.Topic)
		},
	}
	wallet.Ethereum = &chains.Ethereum{
		OnSign: func(id int64, payload chains.SignPayload) {
			log.Infof("eth sign request %v for %v via %v", id, payload.Address, payload.Event)
		},
		OnTransaction: func(id int64, tx chains.Transaction, event chains.Event, timestamp *uint64) {
			log.Infof("eth transaction request %v from %v via %v", id, tx.From, event)
		},
	}
	wallet.Binance = &chains.Binance{
		OnSign: func(id int64, order chains.BinanceOrder) {
			log.Infof("bnb sign request %v on chain %v", id, order.ChainID)
		},
		OnTxConfirmation: func(id int64, confirmation chains.BinanceTxConfirmation) {
			log.Infof("bnb confirmation %v ok=%v", id, confirmation.Ok)
		},
	}
	wallet.Trust = &chains.Trust{
		OnRequest: func(id int64, event chains.Event, params json.RawMessage, timestamp *uint64) {
			log.Infof("trust request %v via %v", id, event)
		},
	}
	wallet.Cosmos = &chains.Cosmos{
		OnTransaction: func(id int64, tx chains.IBCTransaction, timestamp *uint64) {
			log.Infof("ibc transaction request %v from %v", id, tx.SignerAddress)
		},
	}

	if err := wallet.Connect(context.Background()); err != nil {
		log.Fatalf("connect to bridge:%v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
	case <-quit:
		log.Info("shutting down...")
		wallet.Disconnect()
	}
}

// newSessionStore picks the configured backing store, preferring postgres,
// then redis, then process memory.
func newSessionStore() store.SessionStore {
	if config.Global.Postgres.Address != "" {
		s, err := store.NewPostgresStore(&config.Global.Postgres)
		if err != nil {
			log.Fatalf("init postgres session store:%v", err)
		}
		return s
	}
	if config.Global.RedisCredential.Address != "" {
		s, err := store.NewRedisStore(&config.Global.RedisCredential, 0)
		if err != nil {
			log.Fatalf("init redis session store:%v", err)
		}
		return s
	}
	return store.NewMemoryStore()
}
