package model

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed schemas/*.yml
var embeddedSchemas embed.FS

//go:embed locales/*.yml
var embeddedLocales embed.FS

// SchemasFS returns dir when set, otherwise the schemas compiled into the binary.
func SchemasFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, _ := fs.Sub(embeddedSchemas, "schemas")
	return sub
}

// LocalesFS returns dir when set, otherwise the dictionaries compiled into the binary.
func LocalesFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, _ := fs.Sub(embeddedLocales, "locales")
	return sub
}
