package main

import "time"

type Config struct {
	Host string `env:"HOST,default=localhost"`
	Port int    `env:"PORT,default=8080"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	MaxSessions         int           `env:"MAX_SESSIONS,default=1024"`
	OutboundBufferSize  int           `env:"OUTBOUND_BUFFER_SIZE,default=64"`
	BroadcastBufferSize int           `env:"BROADCAST_BUFFER_SIZE,default=256"`
	HistoryLimit        int           `env:"HISTORY_LIMIT,default=50"`
	MaxBodyBytes        int64         `env:"MAX_BODY_BYTES,default=65536"`
	MaxAuthAttempts     int           `env:"MAX_AUTH_ATTEMPTS,default=3"`
	EchoToSender        bool          `env:"ECHO_TO_SENDER,default=false"`
	IdleTimeout         time.Duration `env:"IDLE_TIMEOUT,default=5m"`
	WriteTimeout        time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	CloseGrace          time.Duration `env:"CLOSE_GRACE,default=1s"`
	StoreTimeout        time.Duration `env:"STORE_TIMEOUT,default=5s"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`

	TokenSecret string        `env:"TOKEN_SECRET,required=true"`
	TokenTTL    time.Duration `env:"TOKEN_TTL,default=24h"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=5s"`
	CensorChar      string        `env:"CENSOR_CHAR,default=*"`

	BootstrapLogin      string `env:"BOOTSTRAP_LOGIN,default=admin"`
	BootstrapCredential string `env:"BOOTSTRAP_CREDENTIAL"`
}
