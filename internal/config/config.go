package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

func (c *DBCredential) Dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

// GetRedisAddress returns the redis address as host:port.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// Timeouts are the interactor watchdog windows, in seconds. Zero values fall
// back to the protocol defaults.
type Timeouts struct {
	SessionRequestSec int `yaml:"session_request_sec"`
	ConnectSec        int `yaml:"connect_sec"`
	PingIntervalSec   int `yaml:"ping_interval_sec"`
}

// Reconnect is the socket retry policy on non-fatal disconnects.
type Reconnect struct {
	Enabled     bool `yaml:"enabled"`
	Attempts    int  `yaml:"attempts"`
	DelayMillis int  `yaml:"delay_millis"`
}

// ClientMeta identifies this wallet to peers at handshake.
type ClientMeta struct {
	Name        string   `yaml:"name"`
	URL         string   `yaml:"url"`
	Description string   `yaml:"description"`
	Icons       []string `yaml:"icons"`
}

// Configuration struct
type Configuration struct {
	LogLevel         int          `yaml:"log_level"`
	Timeouts         Timeouts     `yaml:"timeouts"`
	Reconnect        Reconnect    `yaml:"reconnect"`
	ClientMeta       ClientMeta   `yaml:"client_meta"`
	SentryDSN        string       `yaml:"sentry_dsn"`
	LarkAlarmWebhook string       `yaml:"lark_alarm_webhook"`
	RedisCredential  DBCredential `yaml:"redis"`
	Postgres         DBCredential `yaml:"postgres"`
}

func readConfig(path string) (Configuration, error) {
	logrus.Info("Starting to load configuration file ...")
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		logrus.Fatal(err)
	}
	t := Configuration{}
	err = yaml.Unmarshal(dat, &t)

	if err != nil {
		if os.IsNotExist(err) {
			logrus.Fatalf("file %s does not exist", path)
		} else {
			logrus.Fatalf("fail to decode config error: %v", err)
		}
	}
	return t, nil
}

var Global *Configuration

// Read reads configuration information from yml.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := readConfig(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = &globalConfig
}
