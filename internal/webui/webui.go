// Package webui embeds the single page symbolication form served at /.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// StaticFS returns an http.FileSystem for the embedded static files.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the embed path is fixed at compile time
		panic(err)
	}
	return http.FS(sub)
}

// Handler serves the embedded files.
func Handler() http.Handler {
	return http.FileServer(StaticFS())
}
