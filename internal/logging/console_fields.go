package logging

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

// infoHighlightKeys are printed first, in this order, on info-level console lines.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"status",
	"target",
	"group_key",
	"attempt",
	"max_retries",
	"next_eligible_at",
	"band",
	"used_percent",
	"free_bytes",
	"removed",
	"freed_bytes",
	"claimed",
	"reclaimed",
	"follow_ups",
	"elapsed",
	"error",
	FieldErrorHint,
	FieldImpact,
	"reason",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit.
func selectInfoFields(attrs []kv, limit int) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	add := func(idx int) {
		used[idx] = true
		attr := attrs[idx]
		if skipInfoKey(attr.key) {
			return
		}
		if isDebugOnlyKey(attr.key) {
			hidden++
			return
		}
		val := formatValueForKey(attr.key, attr.value)
		if shouldHideInfoValue(attr.key, val) || (limit > 0 && len(result) >= limit) {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: val})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				add(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			add(idx)
		}
	}
	return result, hidden
}

// formatValueForKey applies display formatting based on the key name.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	switch {
	case isByteSizeKey(key) && v.Kind() == slog.KindInt64:
		if v.Int64() >= 0 {
			return humanize.IBytes(uint64(v.Int64()))
		}
	case isByteSizeKey(key) && v.Kind() == slog.KindUint64:
		return humanize.IBytes(v.Uint64())
	case v.Kind() == slog.KindDuration:
		return formatDuration(v.Duration())
	case isPercentKey(key) && v.Kind() == slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 1, 64) + "%"
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := formatValue(v)
	if key == "error" {
		value = truncateErrorValue(value)
	}
	return value
}

func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") || key == "size"
}

func isPercentKey(key string) bool {
	return strings.HasSuffix(key, "_percent")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldJobID, FieldKind, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case "", FieldCorrelationID, FieldWorkerID, "params", "result", "command":
		return true
	}
	return strings.HasSuffix(key, "_path") && key != "artifact_path"
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error", FieldErrorHint, FieldImpact:
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case "next_eligible_at":
		return "Next Attempt"
	case "used_percent":
		return "Used"
	case "free_bytes":
		return "Free"
	case "freed_bytes":
		return "Freed"
	case "follow_ups":
		return "Follow-ups"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	return titleWord(strings.Join(parts, " "))
}

// titleWord capitalizes each word. A Caser holds state, so one is built per call.
func titleWord(value string) string {
	return cases.Title(language.Und).String(value)
}
