package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/sjson"
)

// SampleClaudeBlob returns a json-env blob with an unknown top-level key.
func SampleClaudeBlob(baseURL string) string {
	blob := `{"env":{"ANTHROPIC_AUTH_TOKEN":"sk-ant-test"},"permissions":{"allow":[]}}`
	if baseURL != "" {
		blob, _ = sjson.Set(blob, "env.ANTHROPIC_BASE_URL", baseURL)
	}
	return blob
}

// SampleCodexBlob returns a toml-fragment blob whose active model provider
// points at baseURL.
func SampleCodexBlob(baseURL string) string {
	config := "model_provider = \"relay\"\nmodel = \"gpt-5\"\n\n[model_providers.relay]\nname = \"relay\"\nbase_url = \"" + baseURL + "\"\nwire_api = \"responses\"\n"
	blob, _ := sjson.Set(`{"auth":{"OPENAI_API_KEY":"sk-codex-test"}}`, "config", config)
	return blob
}

// SampleGeminiBlob returns a dotenv-like blob.
func SampleGeminiBlob(baseURL string) string {
	text := "# gemini\nGEMINI_API_KEY=gm-test\nGEMINI_MODEL=gemini-2.5-pro\n"
	if baseURL != "" {
		text += "GOOGLE_GEMINI_BASE_URL=" + baseURL + "\n"
	}
	return text
}

// NewProbeServer starts an HTTP server that answers every request with
// status after delay. It is closed when the test completes.
func NewProbeServer(t *testing.T, status int, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}
