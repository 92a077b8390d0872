package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

// MaxLookAheadDays is the furthest into the future any provider is asked for events.
const MaxLookAheadDays = 365

type Application struct {
	Host      string    `koanf:"host"`
	Port      int       `koanf:"port"`
	Google    Google    `koanf:"google"`
	Microsoft Microsoft `koanf:"microsoft"`
	Database  Database  `koanf:"db"`
	Sync      Sync      `koanf:"sync"`
	Log       Log       `koanf:"log"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
}

type Microsoft struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	Tenant       string `koanf:"tenant"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Sync struct {
	Enabled         bool `koanf:"enabled"`
	LookBackDays    int  `koanf:"lookbackdays"`
	LookAheadDays   int  `koanf:"lookaheaddays"`
	IntervalMinutes int  `koanf:"intervalminutes"`
}

type Log struct {
	Level string `koanf:"level"`
	// File enables rotating file output when set.
	File string `koanf:"file"`
}

func Defaults() Application {
	return Application{
		Host: "http://localhost:8181",
		Port: 8181,
		Microsoft: Microsoft{
			Tenant: "common",
		},
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "calshare",
			Pass:   "",
			Name:   "calshare",
			Schema: "calshare",
		},
		Sync: Sync{
			Enabled:         true,
			LookBackDays:    90,
			LookAheadDays:   365,
			IntervalMinutes: 5,
		},
		Log: Log{
			Level: "info",
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "CALSHARE_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "CALSHARE_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}
	app.Sync = app.Sync.normalized()

	return app, nil
}

func (s Sync) normalized() Sync {
	if s.LookBackDays < 0 {
		s.LookBackDays = 0
	}
	if s.LookAheadDays <= 0 || s.LookAheadDays > MaxLookAheadDays {
		if s.LookAheadDays > MaxLookAheadDays {
			log.Warnf("sync look-ahead of %d days exceeds provider limit, using %d", s.LookAheadDays, MaxLookAheadDays)
		}
		s.LookAheadDays = MaxLookAheadDays
	}
	if s.IntervalMinutes <= 0 {
		s.IntervalMinutes = 5
	}
	return s
}
