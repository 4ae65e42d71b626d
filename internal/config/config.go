package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Wait      WaitConfig      `mapstructure:"wait"`
	Target    TargetConfig    `mapstructure:"target"`
	Scenario  ScenarioConfig  `mapstructure:"scenario"`
	Provision ProvisionConfig `mapstructure:"provision"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
	RunTimeout   time.Duration `mapstructure:"runTimeout"`
}

type BrowserConfig struct {
	ExecutablePath  string        `mapstructure:"executablePath"`
	Headless        bool          `mapstructure:"headless"`
	UserDataDir     string        `mapstructure:"userDataDir"`
	WindowWidth     int           `mapstructure:"windowWidth"`
	WindowHeight    int           `mapstructure:"windowHeight"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	MaxSessions     int           `mapstructure:"maxSessions"`
}

// WaitConfig bounds every explicit wait. LogoutTimeout applies to the logout
// control only, which renders on its own schedule.
type WaitConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	PollInterval  time.Duration `mapstructure:"pollInterval"`
	LogoutTimeout time.Duration `mapstructure:"logoutTimeout"`
}

type TargetConfig struct {
	BaseURL            string `mapstructure:"baseURL"`
	LoginPath          string `mapstructure:"loginPath"`
	AddUserPath        string `mapstructure:"addUserPath"`
	PasswordChangePath string `mapstructure:"passwordChangePath"`
}

type CredentialConfig struct {
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Email      string `mapstructure:"email"`
	TOTPSecret string `mapstructure:"totpSecret"`
}

type ScenarioConfig struct {
	Admin       CredentialConfig `mapstructure:"admin"`
	Staff       CredentialConfig `mapstructure:"staff"`
	NewPassword string           `mapstructure:"newPassword"`
}

type ProvisionConfig struct {
	// Command is run once before the scenario, e.g.
	// "python manage.py createsuperuser --noinput". Empty means the admin
	// account already exists.
	Command string        `mapstructure:"command"`
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	ApiKey         string   `mapstructure:"apiKey"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.idleTimeout", "60s")
	v.SetDefault("server.runTimeout", "5m")

	v.SetDefault("browser.executablePath", "") // Attempt auto-detect if empty
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.userDataDir", "") // Empty means temporary profile
	v.SetDefault("browser.windowWidth", 1280)
	v.SetDefault("browser.windowHeight", 1024)
	v.SetDefault("browser.shutdownTimeout", "10s")
	v.SetDefault("browser.maxSessions", 4)

	v.SetDefault("wait.timeout", "15s")
	v.SetDefault("wait.pollInterval", "250ms")
	v.SetDefault("wait.logoutTimeout", "15s")

	v.SetDefault("target.baseURL", "http://localhost:8000")
	v.SetDefault("target.loginPath", "/admin/login/")
	v.SetDefault("target.addUserPath", "/admin/auth/user/add/")
	v.SetDefault("target.passwordChangePath", "/admin/password_change/")

	v.SetDefault("scenario.admin.username", "isard")
	v.SetDefault("scenario.admin.password", "pirineus")
	v.SetDefault("scenario.admin.email", "admin@example.com")
	v.SetDefault("scenario.admin.totpSecret", "")
	v.SetDefault("scenario.staff.username", "staff")
	v.SetDefault("scenario.staff.password", "password1_st")
	v.SetDefault("scenario.staff.email", "")
	v.SetDefault("scenario.staff.totpSecret", "")
	v.SetDefault("scenario.newPassword", "NuevaContraseña456!")

	v.SetDefault("provision.command", "")
	v.SetDefault("provision.dir", "")
	v.SetDefault("provision.timeout", "2m")

	v.SetDefault("artifacts.dir", "./artifacts")

	v.SetDefault("log.level", "info")

	v.SetDefault("security.allowedOrigins", []string{"*"})
	v.SetDefault("security.apiKey", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.scryflow")
		v.AddConfigPath("/etc/scryflow")
	}

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SCRYFLOW")

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the scenario cannot run with.
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.baseURL is required")
	}
	if c.Wait.PollInterval <= 0 || c.Wait.Timeout <= 0 {
		return fmt.Errorf("wait.timeout and wait.pollInterval must be positive")
	}
	if c.Wait.PollInterval > c.Wait.Timeout {
		return fmt.Errorf("wait.pollInterval (%s) exceeds wait.timeout (%s)", c.Wait.PollInterval, c.Wait.Timeout)
	}
	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("browser.maxSessions must be at least 1")
	}
	if c.Scenario.Admin.Username == "" || c.Scenario.Staff.Username == "" {
		return fmt.Errorf("scenario.admin.username and scenario.staff.username are required")
	}
	if c.Scenario.Admin.Username == c.Scenario.Staff.Username {
		return fmt.Errorf("scenario admin and staff must be different accounts")
	}
	return nil
}
