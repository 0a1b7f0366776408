package huddle

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
)

// StaticFS is a wrapper around http.FileSystem that adds etag support, cache control support
// and an optional fallback file served in place of missing paths.
type StaticFS struct {
	http.FileSystem
	etags map[string]string
	// a map of globs to cache control headers
	cacheControl map[string]string
	fallbackFile string
}

// Open returns the file if found. Otherwise, it returns the fallback file when there is one.
func (fs StaticFS) Open(name string) (http.File, error) {
	f, err := fs.FileSystem.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && fs.fallbackFile != "" {
			return fs.FileSystem.Open(fs.fallbackFile)
		}
		return nil, err
	}
	return f, nil
}

// NewStaticFS returns a new StaticFS. An empty fallback disables the fallback.
func NewStaticFS(fsys fs.FS, fallback string, cacheControl map[string]string) (*StaticFS, error) {
	if fallback != "" {
		f, err := fsys.Open(fallback)
		if err != nil {
			return nil, fmt.Errorf("opening fallback file %s: %w", fallback, err)
		}
		f.Close()
	}

	etags, err := calculateEtags(fsys)
	if err != nil {
		return nil, fmt.Errorf("calculating etags: %w", err)
	}
	cc, err := expandCacheControl(fsys, cacheControl)
	if err != nil {
		return nil, fmt.Errorf("expanding cache control paths: %w", err)
	}

	return &StaticFS{FileSystem: http.FS(fsys), etags: etags, cacheControl: cc, fallbackFile: fallback}, nil
}

// NewStaticDir serves dir with index.html as fallback when present.
// It returns nil when dir does not exist.
func NewStaticDir(dir string) (*StaticFS, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsys := os.DirFS(dir)
	fallback := ""
	if _, err := fs.Stat(fsys, "index.html"); err == nil {
		fallback = "index.html"
	}
	return NewStaticFS(fsys, fallback, map[string]string{
		"*.html": "no-cache",
	})
}

func calculateEtags(fsys fs.FS) (map[string]string, error) {
	etags := make(map[string]string)
	hasher := sha1.New()
	return etags, fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := fsys.Open(p)
		if err != nil {
			return fmt.Errorf("opening %s: %w", p, err)
		}
		defer f.Close()
		defer hasher.Reset()
		if _, err := io.Copy(hasher, f); err != nil {
			return fmt.Errorf("hashing %s: %w", p, err)
		}
		etags[p] = fmt.Sprintf(`"%x"`, hasher.Sum(nil))
		return nil
	})
}

func expandCacheControl(fsys fs.FS, cacheControl map[string]string) (map[string]string, error) {
	expanded := make(map[string]string)

	return expanded, fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for glob, cc := range cacheControl {
			matched, err := path.Match(glob, path.Base(p))
			if err != nil {
				return fmt.Errorf("matching %s: %w", p, err)
			}
			if matched {
				expanded[p] = cc
				return nil
			}
		}
		return nil
	})
}

func (fs StaticFS) EtagMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := r.URL.Path
			// strip the leading slash
			if len(p) > 0 && p[0] == '/' {
				p = p[1:]
			}
			if p == "" {
				p = "index.html"
			}
			// check if the match exists if not set to fallback
			if _, ok := fs.etags[p]; !ok && fs.fallbackFile != "" {
				p = fs.fallbackFile
			}

			if matched := r.Header.Get("If-None-Match"); matched != "" {
				if etag, ok := fs.etags[p]; ok && matched == etag {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}

			if etag, ok := fs.etags[p]; ok {
				w.Header().Set("Etag", etag)
				if cc, ok := fs.cacheControl[p]; ok {
					w.Header().Set("Cache-Control", cc)
				}
			}

			next.ServeHTTP(w, r)
		})

	}
}
