package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"messengerrelay/internal/constants"
	"messengerrelay/internal/models"
	"messengerrelay/internal/validation"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultEnvFile is loaded into the process environment before overrides are read
const DefaultEnvFile = ".env"

// EnvProduction is the MESSENGER_RELAY_ENV value that enables production checks
const EnvProduction = "production"

var (
	ErrMissingVerifyToken     = models.ConfigError{Message: "missing verify token (set VERIFY_TOKEN)"}
	ErrMissingPageAccessToken = models.ConfigError{Message: "missing page access token (set PAGE_ACCESS_TOKEN)"}
	ErrMissingPort            = models.ConfigError{Message: "missing server port (set PORT)"}
)

// Environment holds the variables that take precedence over the config file
type Environment struct {
	VerifyToken        string `envconfig:"VERIFY_TOKEN"`
	PageAccessToken    string `envconfig:"PAGE_ACCESS_TOKEN"`
	Port               string `envconfig:"PORT"`
	GraphAPIURL        string `envconfig:"GRAPH_API_URL"`
	ReplyStrategy      string `envconfig:"REPLY_STRATEGY"`
	ImageSearchURL     string `envconfig:"IMAGE_SEARCH_URL"`
	PersonaChatURL     string `envconfig:"PERSONA_CHAT_URL"`
	PersonaChatAPIKey  string `envconfig:"PERSONA_CHAT_API_KEY"`
	PersonaChatBackend string `envconfig:"PERSONA_CHAT_BACKEND"`
	PersonaChatModel   string `envconfig:"PERSONA_CHAT_MODEL"`
	LogLevel           string `envconfig:"LOG_LEVEL"`
	Env                string `envconfig:"MESSENGER_RELAY_ENV" default:"development"`
}

// IsProduction reports whether production checks apply
func (e Environment) IsProduction() bool {
	return strings.EqualFold(e.Env, EnvProduction)
}

// LoadConfig reads the optional JSON file at path, loads .env and applies
// environment overrides. A missing config file is not an error.
func LoadConfig(path string) (*models.Config, error) {
	return Load(path, DefaultEnvFile)
}

// Load is LoadConfig with an explicit dotenv file. An empty envFile skips dotenv loading.
func Load(path, envFile string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		if err := validation.ValidateConfigPath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated by validation.ValidateConfigPath above
		switch {
		case err == nil:
			if err := json.Unmarshal(file, &config); err != nil {
				return nil, models.ConfigError{Message: fmt.Sprintf("failed to parse config file %s: %v", path, err)}
			}
		case stderrors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return nil, models.ConfigError{Message: fmt.Sprintf("failed to load %s: %v", envFile, err)}
		}
	}

	env, err := ReadEnvironment()
	if err != nil {
		return nil, err
	}
	applyEnvironmentOverrides(&config, env)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config, env); err != nil {
		return nil, err
	}

	return &config, nil
}

// ReadEnvironment decodes the override variables from the process environment
func ReadEnvironment() (Environment, error) {
	var env Environment
	if err := envconfig.Process("", &env); err != nil {
		return Environment{}, models.ConfigError{Message: fmt.Sprintf("failed to read environment: %v", err)}
	}
	return env, nil
}

func applyEnvironmentOverrides(c *models.Config, env Environment) {
	overrides := []struct {
		value  string
		target *string
	}{
		{env.VerifyToken, &c.Messenger.VerifyToken},
		{env.PageAccessToken, &c.Messenger.PageAccessToken},
		{env.Port, &c.Server.Port},
		{env.GraphAPIURL, &c.Messenger.GraphAPIURL},
		{env.ReplyStrategy, &c.Reply.Strategy},
		{env.ImageSearchURL, &c.Reply.ImageSearch.URL},
		{env.PersonaChatURL, &c.Reply.PersonaChat.URL},
		{env.PersonaChatAPIKey, &c.Reply.PersonaChat.APIKey},
		{env.PersonaChatBackend, &c.Reply.PersonaChat.Backend},
		{env.PersonaChatModel, &c.Reply.PersonaChat.Model},
		{env.LogLevel, &c.LogLevel},
	}
	for _, o := range overrides {
		if o.value != "" {
			*o.target = o.value
		}
	}

	if c.Tracing.Environment == "" {
		c.Tracing.Environment = env.Env
	}
}

func validate(c *models.Config) error {
	if c.Messenger.VerifyToken == "" {
		return ErrMissingVerifyToken
	}
	if c.Messenger.PageAccessToken == "" {
		return ErrMissingPageAccessToken
	}
	if c.Server.Port == "" {
		return ErrMissingPort
	}

	applyServerDefaults(&c.Server)

	if c.Messenger.GraphAPIURL == "" {
		c.Messenger.GraphAPIURL = constants.DefaultGraphAPIURL
	}
	if c.Messenger.TimeoutSec <= 0 {
		c.Messenger.TimeoutSec = constants.DefaultSendTimeoutSec
	}
	if err := validation.ValidateHTTPURL(c.Messenger.GraphAPIURL, "messenger.graph_api_url"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if err := validation.ValidateTimeout(c.Messenger.TimeoutSec, "messenger.timeoutSec"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return validateReply(&c.Reply)
}

func applyServerDefaults(s *models.ServerConfig) {
	if s.ReadTimeoutSec <= 0 {
		s.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if s.WriteTimeoutSec <= 0 {
		s.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if s.IdleTimeoutSec <= 0 {
		s.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = constants.DefaultMaxWebhookBodyBytes
	}
	if s.TaskShutdownWaitSec <= 0 {
		s.TaskShutdownWaitSec = constants.DefaultTaskShutdownWaitSec
	}
	if s.HomePageBody == "" {
		s.HomePageBody = constants.DefaultHomeBody
	}
}

func validateReply(r *models.ReplyConfig) error {
	if r.Strategy == "" {
		r.Strategy = models.StrategyImageTemplate
	}

	switch r.Strategy {
	case models.StrategyImageTemplate, models.StrategyImageSequential, models.StrategyImageSingle:
		if err := validateImageSearch(&r.ImageSearch); err != nil {
			return err
		}
	case models.StrategyPersonaChat:
		if err := validatePersonaChat(&r.PersonaChat); err != nil {
			return err
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown reply strategy %q", r.Strategy)}
	}

	if r.Breaker.MaxFailures <= 0 {
		r.Breaker.MaxFailures = constants.DefaultBreakerMaxFailures
	}
	if r.Breaker.TimeoutSec <= 0 {
		r.Breaker.TimeoutSec = constants.DefaultBreakerTimeoutSec
	}
	return nil
}

func validateImageSearch(c *models.ImageSearchConfig) error {
	if c.URL == "" {
		c.URL = constants.DefaultImageSearchURL
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = constants.DefaultExternalTimeoutSec
	}
	if c.MaxTemplateElements <= 0 {
		c.MaxTemplateElements = constants.DefaultMaxTemplateElements
	}
	if c.MaxSequentialImages <= 0 {
		c.MaxSequentialImages = constants.DefaultMaxSequentialImages
	}
	if c.ElementTitle == "" {
		c.ElementTitle = constants.DefaultImageElementTitle
	}
	if c.ButtonTitle == "" {
		c.ButtonTitle = constants.DefaultShowMoreButtonTitle
	}

	if err := validation.ValidateHTTPURL(c.URL, "reply.imageSearch.url"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if err := validation.ValidateTimeout(c.TimeoutSec, "reply.imageSearch.timeoutSec"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	// Messenger rejects generic templates with more elements than this
	if err := validation.ValidateNumericRange(c.MaxTemplateElements, "reply.imageSearch.maxTemplateElements", 1, constants.MaxGenericTemplateElements); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	return nil
}

func validatePersonaChat(c *models.PersonaChatConfig) error {
	if c.Backend == "" {
		c.Backend = constants.DefaultPersonaChatBackend
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = constants.DefaultExternalTimeoutSec
	}
	if c.PromptTemplate == "" {
		c.PromptTemplate = constants.DefaultPersonaChatPrompt
	}
	if c.Banner == "" {
		c.Banner = constants.DefaultPersonaChatBanner
	}
	if c.ThinkingText == "" {
		c.ThinkingText = constants.DefaultPersonaChatThinking
	}
	if c.ApologyText == "" {
		c.ApologyText = constants.DefaultPersonaChatApology
	}

	switch c.Backend {
	case models.PersonaBackendHTTP:
		if c.URL == "" {
			c.URL = constants.DefaultPersonaChatURL
		}
	case models.PersonaBackendOpenAI:
		if c.Model == "" {
			c.Model = constants.DefaultPersonaChatModel
		}
		if c.APIKey == "" {
			return models.ConfigError{Message: "persona chat API key is required for the openai backend (set PERSONA_CHAT_API_KEY)"}
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown persona chat backend %q", c.Backend)}
	}

	if c.URL != "" {
		if err := validation.ValidateHTTPURL(c.URL, "reply.personaChat.url"); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}
	if !strings.Contains(c.PromptTemplate, "%s") {
		return models.ConfigError{Message: "persona chat prompt template must contain %s"}
	}
	if err := validation.ValidateTimeout(c.TimeoutSec, "reply.personaChat.timeoutSec"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	return nil
}

// validateSecurity performs production-only checks
func validateSecurity(c *models.Config, env Environment) error {
	if !env.IsProduction() {
		if len(c.Messenger.VerifyToken) < constants.MinProductionTokenLength {
			fmt.Fprintf(os.Stderr, "WARNING: verify token is shorter than %d characters; production mode will refuse it.\n", constants.MinProductionTokenLength)
		}
		return nil
	}

	if strings.EqualFold(c.LogLevel, "debug") {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	if len(c.Messenger.VerifyToken) < constants.MinProductionTokenLength {
		return models.ConfigError{Message: fmt.Sprintf("verify token must be at least %d characters long in production", constants.MinProductionTokenLength)}
	}
	return nil
}
