package models

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Messenger MessengerConfig `json:"messenger"`
	Reply     ReplyConfig     `json:"reply"`
	Tracing   TracingConfig   `json:"tracing"`
	LogLevel  string          `json:"log_level"`
}

// ServerConfig holds inbound HTTP server settings
type ServerConfig struct {
	Port                string `json:"port"`
	ReadTimeoutSec      int    `json:"readTimeoutSec"`
	WriteTimeoutSec     int    `json:"writeTimeoutSec"`
	IdleTimeoutSec      int    `json:"idleTimeoutSec"`
	MaxBodyBytes        int64  `json:"maxBodyBytes"`
	TaskShutdownWaitSec int    `json:"taskShutdownWaitSec"`
	HomePageBody        string `json:"homePageBody"`
}

// MessengerConfig holds Messenger Platform settings
type MessengerConfig struct {
	GraphAPIURL     string `json:"graph_api_url"`
	VerifyToken     string `json:"verify_token"`
	PageAccessToken string `json:"page_access_token"`
	TimeoutSec      int    `json:"timeoutSec"`
}

// Reply strategy names
const (
	StrategyImageTemplate   = "image-template"
	StrategyImageSequential = "image-sequential"
	StrategyImageSingle     = "image-single"
	StrategyPersonaChat     = "persona-chat"
)

// Persona chat backends
const (
	PersonaBackendHTTP   = "http"
	PersonaBackendOpenAI = "openai"
)

// ReplyConfig selects and tunes the strategy that turns user text into replies
type ReplyConfig struct {
	Strategy           string            `json:"strategy"`
	AttachmentFallback *bool             `json:"attachmentFallback,omitempty"`
	ImageSearch        ImageSearchConfig `json:"imageSearch"`
	PersonaChat        PersonaChatConfig `json:"personaChat"`
	Breaker            BreakerConfig     `json:"breaker"`
}

// AttachmentFallbackEnabled reports whether image attachments get the "can't read images" reply.
// Defaults to true when unset.
func (r ReplyConfig) AttachmentFallbackEnabled() bool {
	return r.AttachmentFallback == nil || *r.AttachmentFallback
}

// ImageSearchConfig configures the image search API
type ImageSearchConfig struct {
	URL                 string `json:"url"`
	TimeoutSec          int    `json:"timeoutSec"`
	MaxTemplateElements int    `json:"maxTemplateElements"`
	MaxSequentialImages int    `json:"maxSequentialImages"`
	ElementTitle        string `json:"elementTitle"`
	ButtonTitle         string `json:"buttonTitle"`
}

// PersonaChatConfig configures the text generation API
type PersonaChatConfig struct {
	Backend        string `json:"backend"`
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	TimeoutSec     int    `json:"timeoutSec"`
	PromptTemplate string `json:"promptTemplate"`
	Banner         string `json:"banner"`
	ThinkingText   string `json:"thinkingText"`
	ApologyText    string `json:"apologyText"`
}

// BreakerConfig configures the circuit breaker guarding the external reply APIs
type BreakerConfig struct {
	MaxFailures int `json:"maxFailures"`
	TimeoutSec  int `json:"timeoutSec"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
