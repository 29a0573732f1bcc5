package gist

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// File is one file of a gist.
type File struct {
	Filename string
	RawURL   string
	Language string
	Size     int64
}

// Gist is a listing entry. Files keep the order in which the API listed them;
// decoding into a Go map would lose it.
type Gist struct {
	ID          string
	Description string
	Files       []File
}

// ParseListing decodes one page of GET /users/{user}/gists.
func ParseListing(text string) ([]Gist, error) {
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformedListing)
	}
	doc := gjson.Parse(text)
	if !doc.IsArray() {
		return nil, fmt.Errorf("%w: expected an array, got %s", ErrMalformedListing, doc.Type)
	}

	gists := make([]Gist, 0, len(doc.Array()))
	doc.ForEach(func(_, g gjson.Result) bool {
		gist := Gist{
			ID:          g.Get("id").String(),
			Description: g.Get("description").String(),
		}
		g.Get("files").ForEach(func(name, f gjson.Result) bool {
			filename := name.String()
			if fn := f.Get("filename"); filename == "" && fn.Exists() {
				filename = fn.String()
			}
			gist.Files = append(gist.Files, File{
				Filename: filename,
				RawURL:   f.Get("raw_url").String(),
				Language: f.Get("language").String(),
				Size:     f.Get("size").Int(),
			})
			return true
		})
		gists = append(gists, gist)
		return true
	})
	return gists, nil
}

// FindFile returns the first file matching target, by gist order and then
// file order. It is not the best or newest match, only the first.
func FindFile(gists []Gist, target string) (File, bool) {
	for _, g := range gists {
		for _, f := range g.Files {
			if FilenameMatches(f.Filename, target) {
				return f, true
			}
		}
	}
	return File{}, false
}
