package web

import (
	"embed"
	"io/fs"
)

//go:embed templates static
var content embed.FS

var (
	// Templates holds index.html
	Templates = mustSub("templates")

	// Static holds the page's script and stylesheet, served under /static/
	Static = mustSub("static")
)

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(content, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
