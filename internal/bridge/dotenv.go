package bridge

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
)

const (
	geminiAPIKey  = "GEMINI_API_KEY"
	geminiBaseURL = "GOOGLE_GEMINI_BASE_URL"
	geminiModel   = "GEMINI_MODEL"
)

// geminiKeys are the keys EnvToJSON carries into the JSON wrapper.
var geminiKeys = []string{geminiAPIKey, geminiBaseURL, geminiModel}

// dotenv is the Gemini-style adapter: KEY=value lines.
type dotenv struct{}

func (dotenv) Format() Format { return FormatDotenv }

func (dotenv) Slots() []ModelSlot { return []ModelSlot{SlotMain} }

func (dotenv) ReadAPIKey(blob string) string { return ParseEnv(blob)[geminiAPIKey] }

func (dotenv) WriteAPIKey(blob, value string) string { return setEnvLine(blob, geminiAPIKey, value) }

func (dotenv) ReadBaseURL(blob string) string {
	return endpoint.Normalize(ParseEnv(blob)[geminiBaseURL])
}

func (dotenv) WriteBaseURL(blob, value string) string {
	return setEnvLine(blob, geminiBaseURL, endpoint.Normalize(value))
}

func (dotenv) ReadModel(blob string, slot ModelSlot) string {
	if slot != SlotMain {
		return ""
	}
	return ParseEnv(blob)[geminiModel]
}

func (dotenv) WriteModel(blob string, slot ModelSlot, value string) string {
	if slot != SlotMain {
		return blob
	}
	return setEnvLine(blob, geminiModel, value)
}

// ParseEnv parses KEY=value lines. Blank lines and # comments are ignored, an
// "export " prefix is allowed, and matching surrounding quotes are removed.
// Later assignments win.
func ParseEnv(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}

func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	eq := strings.Index(line, "=")
	if eq <= 0 {
		log.Debug().Str("line", line).Msg("ignoring env line without assignment")
		return "", "", false
	}
	key = strings.TrimSpace(line[:eq])
	value = strings.TrimSpace(line[eq+1:])
	if n := len(value); n >= 2 && (value[0] == '"' || value[0] == '\'') && value[n-1] == value[0] {
		if value[0] == '"' {
			value = strings.ReplaceAll(value[1:n-1], `\"`, `"`)
		} else {
			value = value[1 : n-1]
		}
	}
	return key, value, true
}

// setEnvLine replaces the line assigning key, appends one, or removes every
// assignment of key when value is empty. Other lines are left untouched.
func setEnvLine(text, key, value string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, line := range lines {
		k, _, ok := parseEnvLine(line)
		if !ok || k != key {
			out = append(out, line)
			continue
		}
		if value == "" || replaced {
			continue
		}
		cr := ""
		if strings.HasSuffix(line, "\r") {
			cr = "\r"
		}
		out = append(out, formatEnvLine(key, value)+cr)
		replaced = true
	}
	if !replaced && value != "" {
		line := formatEnvLine(key, value)
		if strings.Contains(text, "\r\n") {
			line += "\r"
		}
		switch n := len(out); {
		case n == 1 && out[0] == "":
			out[0] = line
		case n > 0 && out[n-1] == "":
			out = append(out[:n-1], line, "")
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func formatEnvLine(key, value string) string {
	if strings.ContainsAny(value, " \t#\"'") {
		value = `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
	}
	return key + "=" + value
}

// EnvToJSON wraps the recognized keys of an env text in {"env": {...}}.
func EnvToJSON(text string) string {
	env := ParseEnv(text)
	doc := `{"env":{}}`
	for _, k := range geminiKeys {
		v, ok := env[k]
		if !ok {
			continue
		}
		next, err := sjson.Set(doc, "env."+k, v)
		if err != nil {
			log.Warn().Err(err).Str("key", k).Msg("building env wrapper")
			continue
		}
		doc = next
	}
	return doc
}

// EnvFromJSON renders the recognized keys of an {"env": {...}} wrapper as
// KEY=value lines. A malformed wrapper yields an empty text.
func EnvFromJSON(blob string) string {
	if !gjson.Valid(blob) {
		if strings.TrimSpace(blob) != "" {
			log.Warn().Str("format", string(FormatDotenv)).Msg("malformed env wrapper; treated as empty")
		}
		return ""
	}
	var b strings.Builder
	env := gjson.Get(blob, "env")
	for _, k := range geminiKeys {
		if v := env.Get(k); v.Exists() && v.String() != "" {
			b.WriteString(formatEnvLine(k, v.String()))
			b.WriteByte('\n')
		}
	}
	return b.String()
}
