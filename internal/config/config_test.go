package config

import (
	"os"
	"path/filepath"
	"testing"

	"messengerrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"VERIFY_TOKEN", "PAGE_ACCESS_TOKEN", "PORT", "GRAPH_API_URL", "REPLY_STRATEGY",
	"IMAGE_SEARCH_URL", "PERSONA_CHAT_URL", "PERSONA_CHAT_API_KEY", "PERSONA_CHAT_BACKEND",
	"PERSONA_CHAT_MODEL", "LOG_LEVEL", "MESSENGER_RELAY_ENV",
}

// clearEnv unsets every override variable for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VERIFY_TOKEN", "verify-token-0123456789")
	t.Setenv("PAGE_ACCESS_TOKEN", "page-token")
	t.Setenv("PORT", "8080")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_EnvOnlyAppliesDefaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"), "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15, cfg.Server.ReadTimeoutSec)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "Hello World", cfg.Server.HomePageBody)
	assert.Equal(t, "https://graph.facebook.com/v2.6", cfg.Messenger.GraphAPIURL)
	assert.Equal(t, 15, cfg.Messenger.TimeoutSec)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Tracing.Environment)

	assert.Equal(t, models.StrategyImageTemplate, cfg.Reply.Strategy)
	assert.True(t, cfg.Reply.AttachmentFallbackEnabled())
	assert.Equal(t, 5, cfg.Reply.ImageSearch.MaxTemplateElements)
	assert.Equal(t, 10, cfg.Reply.ImageSearch.MaxSequentialImages)
	assert.Equal(t, "Image", cfg.Reply.ImageSearch.ElementTitle)
	assert.Equal(t, "Show More", cfg.Reply.ImageSearch.ButtonTitle)
	assert.Equal(t, 5, cfg.Reply.Breaker.MaxFailures)
	assert.Equal(t, 30, cfg.Reply.Breaker.TimeoutSec)
}

func TestLoad_FileWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"server": {"port": "9000", "homePageBody": "hi"},
		"messenger": {"verify_token": "file-token", "page_access_token": "file-page-token"},
		"reply": {
			"strategy": "image-sequential",
			"attachmentFallback": false,
			"imageSearch": {"url": "https://images.example.com/search", "maxSequentialImages": 3}
		},
		"log_level": "warn"
	}`)
	t.Setenv("VERIFY_TOKEN", "env-token")
	t.Setenv("IMAGE_SEARCH_URL", "https://override.example.com/")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "hi", cfg.Server.HomePageBody)
	assert.Equal(t, "env-token", cfg.Messenger.VerifyToken)
	assert.Equal(t, "file-page-token", cfg.Messenger.PageAccessToken)
	assert.Equal(t, models.StrategyImageSequential, cfg.Reply.Strategy)
	assert.False(t, cfg.Reply.AttachmentFallbackEnabled())
	assert.Equal(t, "https://override.example.com/", cfg.Reply.ImageSearch.URL)
	assert.Equal(t, 3, cfg.Reply.ImageSearch.MaxSequentialImages)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VERIFY_TOKEN=dotenv-token\nPAGE_ACCESS_TOKEN=dotenv-page\nPORT=1337\n"), 0600))

	cfg, err := Load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "dotenv-token", cfg.Messenger.VerifyToken)
	assert.Equal(t, "dotenv-page", cfg.Messenger.PageAccessToken)
	assert.Equal(t, "1337", cfg.Server.Port)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestLoad_RequiredValues(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantErr error
	}{
		{"verify token", "VERIFY_TOKEN", ErrMissingVerifyToken},
		{"page access token", "PAGE_ACCESS_TOKEN", ErrMissingPageAccessToken},
		{"port", "PORT", ErrMissingPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t)
			require.NoError(t, os.Unsetenv(tt.unset))

			_, err := Load("", "")
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		config string
		env    map[string]string
	}{
		{
			name:   "malformed json",
			config: `{"server": `,
		},
		{
			name: "unknown strategy",
			env:  map[string]string{"REPLY_STRATEGY": "carousel"},
		},
		{
			name: "bad graph url",
			env:  map[string]string{"GRAPH_API_URL": "ftp://graph"},
		},
		{
			name:   "template too large",
			config: `{"reply": {"imageSearch": {"maxTemplateElements": 11}}}`,
		},
		{
			name: "unknown persona backend",
			env:  map[string]string{"REPLY_STRATEGY": "persona-chat", "PERSONA_CHAT_BACKEND": "smoke-signals"},
		},
		{
			name: "openai without key",
			env:  map[string]string{"REPLY_STRATEGY": "persona-chat", "PERSONA_CHAT_BACKEND": "openai"},
		},
		{
			name:   "prompt without placeholder",
			config: `{"reply": {"strategy": "persona-chat", "personaChat": {"promptTemplate": "hello"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.config != "" {
				path = writeConfig(t, tt.config)
			}

			_, err := Load(path, "")
			require.Error(t, err)
			assert.IsType(t, models.ConfigError{}, err)
		})
	}
}

func TestLoad_PersonaChatDefaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("REPLY_STRATEGY", "persona-chat")

	cfg, err := Load("", "")
	require.NoError(t, err)

	pc := cfg.Reply.PersonaChat
	assert.Equal(t, models.PersonaBackendHTTP, pc.Backend)
	assert.Equal(t, "https://api.kenliejugarap.com/freegpt4o8k/", pc.URL)
	assert.Contains(t, pc.PromptTemplate, "%s")
	assert.Equal(t, "⏳ Thinking...", pc.ThinkingText)
	assert.NotEmpty(t, pc.Banner)
	assert.NotEmpty(t, pc.ApologyText)
}

func TestLoad_OpenAIBackend(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("REPLY_STRATEGY", "persona-chat")
	t.Setenv("PERSONA_CHAT_BACKEND", "openai")
	t.Setenv("PERSONA_CHAT_API_KEY", "sk-test")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Reply.PersonaChat.Model)
	assert.Equal(t, "sk-test", cfg.Reply.PersonaChat.APIKey)
	assert.Empty(t, cfg.Reply.PersonaChat.URL)
}

func TestLoad_ProductionChecks(t *testing.T) {
	t.Run("short verify token", func(t *testing.T) {
		clearEnv(t)
		setRequiredEnv(t)
		t.Setenv("MESSENGER_RELAY_ENV", "production")
		t.Setenv("VERIFY_TOKEN", "short")

		_, err := Load("", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 16 characters")
	})

	t.Run("debug logging", func(t *testing.T) {
		clearEnv(t)
		setRequiredEnv(t)
		t.Setenv("MESSENGER_RELAY_ENV", "production")
		t.Setenv("LOG_LEVEL", "debug")

		_, err := Load("", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "debug logging")
	})

	t.Run("valid production config", func(t *testing.T) {
		clearEnv(t)
		setRequiredEnv(t)
		t.Setenv("MESSENGER_RELAY_ENV", "production")

		cfg, err := Load("", "")
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.Tracing.Environment)
	})
}

func TestLoad_RejectsTraversalPath(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	_, err := Load("../../etc/passwd", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestEnvironment_IsProduction(t *testing.T) {
	assert.True(t, Environment{Env: "production"}.IsProduction())
	assert.True(t, Environment{Env: "Production"}.IsProduction())
	assert.False(t, Environment{Env: "development"}.IsProduction())
}
