package bridge

import "github.com/allaspectsdev/provswitch/internal/endpoint"

const (
	claudeAuthToken = "env.ANTHROPIC_AUTH_TOKEN"
	claudeAPIKey    = "env.ANTHROPIC_API_KEY"
	claudeBaseURL   = "env.ANTHROPIC_BASE_URL"
)

// claudeModelKeys lists, per slot, the current key followed by the deprecated
// aliases it replaces. Reads take the first non-empty key; writes set the
// current key and delete the aliases.
//
// The ANTHROPIC_SMALL_FAST_MODEL alias is a migration shim; drop it once no
// saved providers carry it.
var claudeModelKeys = map[ModelSlot][]string{
	SlotMain:      {"env.ANTHROPIC_MODEL"},
	SlotHaiku:     {"env.ANTHROPIC_DEFAULT_HAIKU_MODEL", "env.ANTHROPIC_SMALL_FAST_MODEL"},
	SlotSonnet:    {"env.ANTHROPIC_DEFAULT_SONNET_MODEL"},
	SlotOpus:      {"env.ANTHROPIC_DEFAULT_OPUS_MODEL"},
	SlotReasoning: {"env.ANTHROPIC_REASONING_MODEL"},
}

// jsonEnv is the Claude-style adapter: a JSON settings object with an "env"
// map of environment variables.
type jsonEnv struct{}

func (jsonEnv) Format() Format { return FormatJSONEnv }

func (jsonEnv) Slots() []ModelSlot {
	return []ModelSlot{SlotMain, SlotHaiku, SlotSonnet, SlotOpus, SlotReasoning}
}

func (jsonEnv) ReadAPIKey(blob string) string {
	return firstJSON(FormatJSONEnv, blob, claudeAuthToken, claudeAPIKey)
}

func (jsonEnv) WriteAPIKey(blob, value string) string {
	return setJSON(FormatJSONEnv, blob, claudeAuthToken, value, claudeAPIKey)
}

func (jsonEnv) ReadBaseURL(blob string) string {
	return endpoint.Normalize(readJSON(FormatJSONEnv, blob, claudeBaseURL))
}

func (jsonEnv) WriteBaseURL(blob, value string) string {
	return setJSON(FormatJSONEnv, blob, claudeBaseURL, endpoint.Normalize(value))
}

func (jsonEnv) ReadModel(blob string, slot ModelSlot) string {
	keys, ok := claudeModelKeys[slot]
	if !ok {
		return ""
	}
	return firstJSON(FormatJSONEnv, blob, keys...)
}

func (jsonEnv) WriteModel(blob string, slot ModelSlot, value string) string {
	keys, ok := claudeModelKeys[slot]
	if !ok {
		return blob
	}
	return setJSON(FormatJSONEnv, blob, keys[0], value, keys[1:]...)
}
