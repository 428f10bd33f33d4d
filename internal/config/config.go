package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:leadwallet.db?_busy_timeout=5000"`

	Backend  Backend  `envPrefix:"BACKEND_"`
	Razorpay Razorpay `envPrefix:"RAZORPAY_"`
	Wallet   Wallet   `envPrefix:"WALLET_"`
	Nats     Nats     `envPrefix:"NATS_"`
	Plans    Plans    `envPrefix:"PLAN_"`
}

// Backend is the lead-generation REST API that owns the coin ledger.
type Backend struct {
	BaseApiURL string        `env:"BASE_API_URL"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type Razorpay struct {
	KeyID             string        `env:"KEY_ID"`
	CheckoutScriptURL string        `env:"CHECKOUT_SCRIPT_URL" envDefault:"https://checkout.razorpay.com/v1/checkout.js"`
	ScriptTimeout     time.Duration `env:"SCRIPT_TIMEOUT" envDefault:"15s"`
	DisplayName       string        `env:"DISPLAY_NAME" envDefault:"Leads Generator"`
	ThemeColor        string        `env:"THEME_COLOR" envDefault:"#3B82F6"`
}

type Wallet struct {
	RefreshInterval              time.Duration `env:"REFRESH_INTERVAL" envDefault:"5s"`
	RedirectDelay                time.Duration `env:"REDIRECT_DELAY" envDefault:"1500ms"`
	CloseDelay                   time.Duration `env:"CLOSE_DELAY" envDefault:"2s"`
	SessionTTL                   time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	RechargeRequiresSubscription bool          `env:"RECHARGE_REQUIRES_SUBSCRIPTION" envDefault:"true"`
}

type Nats struct {
	URL string `env:"URL"`
}

// Plans holds subscription prices in major currency units.
type Plans struct {
	MonthlyINR   decimal.Decimal `env:"MONTHLY_INR" envDefault:"399"`
	MonthlyUSD   decimal.Decimal `env:"MONTHLY_USD" envDefault:"5"`
	QuarterlyINR decimal.Decimal `env:"QUARTERLY_INR" envDefault:"999"`
	QuarterlyUSD decimal.Decimal `env:"QUARTERLY_USD" envDefault:"12"`
	YearlyINR    decimal.Decimal `env:"YEARLY_INR" envDefault:"3599"`
	YearlyUSD    decimal.Decimal `env:"YEARLY_USD" envDefault:"45"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

func (c *Config) Validate() error {
	if c.Backend.BaseApiURL == "" {
		return fmt.Errorf("BACKEND_BASE_API_URL is required")
	}
	if c.Razorpay.KeyID == "" {
		return fmt.Errorf("RAZORPAY_KEY_ID is required")
	}
	if c.Razorpay.CheckoutScriptURL == "" {
		return fmt.Errorf("RAZORPAY_CHECKOUT_SCRIPT_URL is required")
	}
	if c.Wallet.RefreshInterval <= 0 {
		return fmt.Errorf("WALLET_REFRESH_INTERVAL must be positive")
	}
	if c.Wallet.SessionTTL <= 0 {
		return fmt.Errorf("WALLET_SESSION_TTL must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment.Name == "development"
}

func (c *Config) ServerAddr() string {
	return c.HTTP.Host + ":" + c.HTTP.Port
}
