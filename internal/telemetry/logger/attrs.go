package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Attribute keys whose values are user-space addresses.
var addressKeys = []string{
	"robust_list",
	"clear_child_tid",
	"stack_top",
	"addr",
}

// formatAddress renders address-valued attributes in hex.
func formatAddress(a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindUint64 {
		return a
	}
	key := strings.ToLower(a.Key)
	for _, k := range addressKeys {
		if key == k {
			return slog.String(a.Key, fmt.Sprintf("%#x", a.Value.Uint64()))
		}
	}
	return a
}
