package bridge

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/allaspectsdev/provswitch/internal/endpoint"
)

const (
	codexConfigPath = "config"
	codexAPIKeyPath = "auth.OPENAI_API_KEY"
)

var codexModelKeys = map[ModelSlot]string{
	SlotMain:      "model",
	SlotReasoning: "model_reasoning_effort",
}

// tomlFragment is the Codex-style adapter. The blob is a JSON wrapper with a
// TOML "config" string and an "auth" object. TOML is read with a parser but
// written with line-level edits so user formatting is kept.
type tomlFragment struct{}

func (tomlFragment) Format() Format { return FormatTOMLFragment }

func (tomlFragment) Slots() []ModelSlot { return []ModelSlot{SlotMain, SlotReasoning} }

func (tomlFragment) ReadAPIKey(blob string) string {
	return readJSON(FormatTOMLFragment, blob, codexAPIKeyPath)
}

func (tomlFragment) WriteAPIKey(blob, value string) string {
	return setJSON(FormatTOMLFragment, blob, codexAPIKeyPath, value)
}

// ReadBaseURL resolves model_providers.<model_provider>.base_url, then the
// base_url of a sole provider table, then a root-level base_url.
func (tomlFragment) ReadBaseURL(blob string) string {
	doc, ok := parseCodexTOML(readJSON(FormatTOMLFragment, blob, codexConfigPath))
	if !ok {
		return ""
	}
	providers, _ := doc["model_providers"].(map[string]any)
	if mp, _ := doc["model_provider"].(string); mp != "" {
		if p, ok := providers[mp].(map[string]any); ok {
			if s, ok := p["base_url"].(string); ok {
				return endpoint.Normalize(s)
			}
		}
	}
	if len(providers) == 1 {
		for _, v := range providers {
			if p, ok := v.(map[string]any); ok {
				if s, ok := p["base_url"].(string); ok {
					return endpoint.Normalize(s)
				}
			}
		}
	}
	if s, ok := doc["base_url"].(string); ok {
		return endpoint.Normalize(s)
	}
	return ""
}

func (tomlFragment) WriteBaseURL(blob, value string) string {
	return patchCodexTOML(blob, func(d *tomlDoc) {
		setCodexBaseURL(d, endpoint.Normalize(value))
	})
}

func (tomlFragment) ReadModel(blob string, slot ModelSlot) string {
	key, ok := codexModelKeys[slot]
	if !ok {
		return ""
	}
	doc, ok := parseCodexTOML(readJSON(FormatTOMLFragment, blob, codexConfigPath))
	if !ok {
		return ""
	}
	s, _ := doc[key].(string)
	return s
}

func (tomlFragment) WriteModel(blob string, slot ModelSlot, value string) string {
	key, ok := codexModelKeys[slot]
	if !ok {
		return blob
	}
	return patchCodexTOML(blob, func(d *tomlDoc) {
		d.setRoot(key, value)
	})
}

func parseCodexTOML(text string) (map[string]any, bool) {
	if text == "" {
		return nil, false
	}
	var doc map[string]any
	if err := toml.Unmarshal([]byte(text), &doc); err != nil {
		log.Warn().Err(err).Str("format", string(FormatTOMLFragment)).Msg("malformed config fragment; field treated as absent")
		return nil, false
	}
	return doc, true
}

// patchCodexTOML applies edit to the TOML text inside the wrapper and stores
// the result back under "config". The text is edited even when it does not
// parse as TOML.
func patchCodexTOML(blob string, edit func(*tomlDoc)) string {
	wrapper, ok := patchable(FormatTOMLFragment, blob)
	if !ok {
		return blob
	}
	orig := gjson.Get(wrapper, codexConfigPath).String()
	d := parseTOMLText(orig)
	edit(d)
	text := d.String()
	if text == orig {
		return blob
	}
	out, err := sjson.Set(wrapper, codexConfigPath, text)
	if err != nil {
		log.Warn().Err(err).Msg("storing config fragment")
		return blob
	}
	return out
}

// setCodexBaseURL replaces, inserts or removes the base_url that
// ReadBaseURL resolves: the active model provider table, then a sole
// provider table, then the root. Tables outside model_providers are never
// touched. Only the affected line changes.
func setCodexBaseURL(d *tomlDoc, value string) {
	table := ""
	if i := d.find("", "model_provider"); i >= 0 {
		if mp, ok := d.stringValue(i); ok && mp != "" {
			table = "model_providers." + mp
		}
	}

	header := -1
	if table != "" {
		header = d.headerIndex(table)
	}

	line := -1
	switch {
	case header >= 0:
		line = d.find(table, "base_url")
	default:
		if sole := d.soleSubtable("model_providers"); sole != "" {
			line = d.find(sole, "base_url")
		}
		if line < 0 {
			line = d.find("", "base_url")
		}
	}

	switch {
	case line >= 0 && value == "":
		d.remove(line)
	case line >= 0:
		d.replaceValue(line, value)
	case value == "":
	case header >= 0:
		d.insert(header+1, "base_url = "+quoteTOML(value, '"'))
	case table != "":
		d.appendLine("")
		d.appendLine("[" + table + "]")
		d.appendLine("base_url = " + quoteTOML(value, '"'))
	default:
		d.insertRoot("base_url = " + quoteTOML(value, '"'))
	}
}
