package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/pflag"
)

// DBDriverNone отключает журнал уведомлений
const DBDriverNone = "none"

type Config struct {
	AMIAddr        string        `yaml:"amiaddr" env:"CTIPROXY_AMIADDR" env-default:"localhost:5038"`
	AMIUser        string        `yaml:"amiuser" env:"CTIPROXY_AMIUSER" env-default:"admin"`
	AMISecret      string        `yaml:"amisecret" env:"CTIPROXY_AMISECRET"`
	ConnectTimeout time.Duration `yaml:"connecttimeout" env:"CTIPROXY_CONNECTTIMEOUT" env-default:"5s"`
	ActionTimeout  time.Duration `yaml:"actiontimeout" env:"CTIPROXY_ACTIONTIMEOUT" env-default:"30s"`
	ReconnectDelay time.Duration `yaml:"reconnectdelay" env:"CTIPROXY_RECONNECTDELAY" env-default:"3s"`
	StructFile     string        `yaml:"structfile" env:"CTIPROXY_STRUCTFILE" env-default:"./structure.yml"`
	MetricsAddr    string        `yaml:"metricsaddr" env:"CTIPROXY_METRICSADDR" env-default:":9013"`

	DBDriver   string `yaml:"dbdriver" env:"CTIPROXY_DBDRIVER" env-default:"pg"`
	DBPort     int    `yaml:"dbport" env:"CTIPROXY_DBPORT" env-default:"5432"`
	DBHost     string `yaml:"dbhost" env:"CTIPROXY_DBHOST" env-default:"localhost"`
	DBName     string `yaml:"dbname" env:"CTIPROXY_DBNAME" env-default:"postgres"`
	DBUser     string `yaml:"dbuser" env:"CTIPROXY_DBUSER" env-default:"cti"`
	DBPassword string `yaml:"dbpassword" env:"CTIPROXY_DBPASSWORD"`

	// контексты диалплана
	DialContext      string `yaml:"dialcontext" env:"CTIPROXY_DIALCONTEXT" env-default:"from-internal"`
	VoicemailContext string `yaml:"voicemailcontext" env:"CTIPROXY_VOICEMAILCONTEXT" env-default:"ext-local"`
	QueueLogonCode   string `yaml:"queuelogoncode" env:"CTIPROXY_QUEUELOGONCODE" env-default:"*45"`

	RecordPath string        `yaml:"recordpath" env:"CTIPROXY_RECORDPATH" env-default:"/var/spool/asterisk/monitor"`
	DTMFDelay  time.Duration `yaml:"dtmfdelay" env:"CTIPROXY_DTMFDELAY" env-default:"300ms"`
	// ёмкость канала уведомлений
	NotifyBuffer int    `yaml:"notifybuffer" env:"CTIPROXY_NOTIFYBUFFER" env-default:"64"`
	Logfile      string `yaml:"logfile" env:"CTIPROXY_LOGFILE"`
}

// DSN для пула pgx
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

// Load читает файл и переменные окружения, переменные важнее
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("error loading config (%s): %w", path, err)
	}
	if cfg.AMISecret == "" {
		return nil, fmt.Errorf("error loading config (%s): amisecret is empty", path)
	}
	return cfg, nil
}

func ParseConfig() (*Config, error) {
	// парсим флаги - нас интересуют только лог и конфиг
	cfgfile := pflag.StringP("config", "c", "./ctiproxy.yml", "File to read config params from")
	logfile := pflag.StringP("logfile", "l", "", "File to write exec time messages.")
	pflag.Lookup("logfile").NoOptDefVal = "./ctiproxy.log"
	pflag.Parse()

	// префикс для логирования
	jww.SetPrefix("ctiproxy")
	// по-умолчанию в файл пишем всё
	jww.SetLogThreshold(jww.LevelTrace)
	// в консоль поменьше подробностей
	jww.SetStdoutThreshold(jww.LevelInfo)

	cfg, err := Load(*cfgfile)
	if err != nil {
		return nil, err
	}
	if len(*logfile) > 0 {
		cfg.Logfile = *logfile
	}

	// если нам сказали в лог - пишем туда, файл открыт до конца работы
	if len(cfg.Logfile) > 0 {
		f, err := os.OpenFile(cfg.Logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		// в консоль теперь сыпем только ошибки
		jww.SetStdoutThreshold(jww.LevelError)
		jww.SetLogOutput(f)
	}
	return cfg, nil
}
