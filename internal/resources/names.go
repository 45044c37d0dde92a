package resources

import (
	"strings"

	"github.com/google/uuid"
)

// SanitizeName converts an arbitrary identifier (model IDs like
// "meta/Llama-3.1-8B") into a DNS-1123 compatible resource name.
// Slashes and dots become hyphens; any other character outside
// [a-z0-9-] is dropped; leading and trailing hyphens are trimmed.
func SanitizeName(id string) string {
	name := strings.ToLower(id)
	name = strings.NewReplacer("/", "-", ".", "-").Replace(name)

	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}

// UniqueName appends a short random suffix so parallel test processes
// never collide on cluster-scoped names.
func UniqueName(prefix string) string {
	return SanitizeName(prefix) + "-" + uuid.NewString()[:8]
}
