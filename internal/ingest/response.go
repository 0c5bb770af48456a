package ingest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// Disguise payloads. The bytes only need to be valid enough for a
// document viewer to accept them without retrying.

const transparentPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

var transparentPNG, _ = base64.StdEncoding.DecodeString(transparentPNGBase64)

// minimalWOFF2 is the smallest header-only WOFF2 an Office client will
// swallow silently.
var minimalWOFF2 = []byte{
	0x77, 0x4F, 0x46, 0x32, 0x00, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x1C, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

var configRuntime = map[string]any{
	"theme":   "light",
	"density": "comfortable",
	"version": "2.4.1",
}

var configUIFlags = map[string]any{
	"features": map[string]bool{
		"tables":        true,
		"charts":        false,
		"comments":      true,
		"track_changes": false,
	},
	"experimental": map[string]any{},
}

var configDocSettings = map[string]any{
	"page_size":   "A4",
	"margins":     "normal",
	"orientation": "portrait",
	"render_mode": "standard",
}

func writePNG(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Content-Length", fmt.Sprint(len(transparentPNG)))
	w.WriteHeader(http.StatusOK)
	w.Write(transparentPNG)
}

func writeWOFF2(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "font/woff2")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.WriteHeader(http.StatusOK)
	w.Write(minimalWOFF2)
}

func writeCSS(w http.ResponseWriter, theme string) {
	safe := make([]rune, 0, len(theme))
	for _, r := range theme {
		if r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			safe = append(safe, r)
		}
	}
	name := string(safe)
	if name == "" {
		name = "default"
	}
	w.Header().Set("Content-Type", "text/css")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "/* %s theme */\n:root { --theme: %s; }\n", name, name)
}

func writeConfigJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
