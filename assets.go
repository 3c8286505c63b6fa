// Package marketplace provides embedded assets for production builds.
package marketplace

import "embed"

// In dev mode (IsDev=true), assets are loaded from disk for hot reloading.
// In production mode they are served from these embedded filesystems.

//go:embed all:web/static
var StaticFS embed.FS

//go:embed all:web/templates
var TemplateFS embed.FS
