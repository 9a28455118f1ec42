package bridge

import (
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// readJSON returns the string at path, or "" when the blob is not valid JSON.
func readJSON(format Format, blob, path string) string {
	if strings.TrimSpace(blob) == "" {
		return ""
	}
	if !gjson.Valid(blob) {
		log.Warn().Str("format", string(format)).Str("path", path).Msg("malformed config blob; field treated as absent")
		return ""
	}
	return gjson.Get(blob, path).String()
}

// firstJSON returns the first non-empty string among paths.
func firstJSON(format Format, blob string, paths ...string) string {
	for _, p := range paths {
		if v := readJSON(format, blob, p); v != "" {
			return v
		}
	}
	return ""
}

// patchable returns a JSON object to patch. An empty blob becomes an empty
// object, a malformed blob is repaired when possible, and a valid document
// whose root is not an object (array, string, number) is replaced by {}.
func patchable(format Format, blob string) (string, bool) {
	if strings.TrimSpace(blob) == "" {
		return "{}", true
	}
	doc := blob
	if !gjson.Valid(doc) {
		repaired, err := jsonrepair.JSONRepair(blob)
		if err != nil || !gjson.Valid(repaired) {
			log.Warn().Err(err).Str("format", string(format)).Msg("malformed config blob could not be repaired; write skipped")
			return blob, false
		}
		log.Warn().Str("format", string(format)).Msg("malformed config blob repaired before write")
		doc = repaired
	}
	if !gjson.Parse(doc).IsObject() {
		log.Warn().Str("format", string(format)).Msg("config blob root is not an object; replaced before write")
		return "{}", true
	}
	return doc, true
}

// setJSON sets path to value, or deletes it when value is empty. Aliases are
// always deleted. The blob is returned unchanged if it cannot be patched.
func setJSON(format Format, blob, path, value string, aliases ...string) string {
	doc, ok := patchable(format, blob)
	if !ok {
		return blob
	}
	var err error
	for _, a := range aliases {
		if gjson.Get(doc, a).Exists() {
			if doc, err = sjson.Delete(doc, a); err != nil {
				log.Warn().Err(err).Str("path", a).Msg("deleting config alias")
				return blob
			}
		}
	}
	if value == "" {
		if gjson.Get(doc, path).Exists() {
			doc, err = sjson.Delete(doc, path)
		}
	} else {
		doc, err = sjson.Set(doc, path, value)
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("patching config blob")
		return blob
	}
	return doc
}
