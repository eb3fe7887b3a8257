package shared

import "github.com/janekbaraniewski/quotaprobe/internal/core"

// SourceLabels are display names for acquisition sources.
var SourceLabels = map[core.Source]string{
	core.SourceAuto:         "auto",
	core.SourceOAuth:        "OAuth API",
	core.SourceWeb:          "browser session",
	core.SourceCLI:          "CLI",
	core.SourceAPI:          "API key",
	core.SourceLocalStorage: "browser local storage",
}

func SourceLabel(src core.Source) string {
	if label, ok := SourceLabels[src]; ok {
		return label
	}
	return string(src)
}

// PlanLabel renders a source with the browser store it will read, if any.
func PlanLabel(src core.Source, store string) string {
	label := SourceLabel(src)
	if store != "" && (src == core.SourceWeb || src == core.SourceLocalStorage) {
		return label + " (" + store + ")"
	}
	return label
}

// SnapshotSource is the label stamped on a snapshot, e.g. "web · Chrome (Default)".
func SnapshotSource(src core.Source, store string) string {
	if store == "" {
		return string(src)
	}
	return string(src) + " · " + store
}
