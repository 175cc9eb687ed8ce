// Package web embeds the login, registration and welcome pages together with
// their scripts.
package web

import "embed"

//go:embed static
var StaticFiles embed.FS
