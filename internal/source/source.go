// Package source discovers source files under a package root and builds
// the ordered module-namespace index the import resolver consults.
// Directory discovery walks down from a configured root (the opposite
// direction of the teacher's repository.Detector, which walks up from a
// start file looking for marker files); initializer classification and
// the root-detection marker-file idiom itself are adapted from
// inspector/repository/detector.go. File content is read through the
// same afs.Service-backed path importresolver uses, so binary or
// unreadable files degrade to empty source rather than erroring.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/viant/callgraph/internal/contenthash"
	"github.com/viant/callgraph/ns"
)

// File is one discovered module file.
type File struct {
	// Namespace is the dotted module name relative to the package root,
	// e.g. "pkg.sub.mod" for "<root>/pkg/sub/mod.py".
	Namespace string
	AbsPath   string
	IsInit    bool
	Hash      uint64
}

// Reader abstracts the file-content source (normally
// importresolver.Resolver.ReadFile) so this package stays free of a
// direct afs dependency and is trivially testable with an in-memory stub.
type Reader func(ctx context.Context, path string) []byte

// WalkPackage discovers every source file with the given extension under
// root, classifies package initializers by filename, and returns the
// discovered files along with a namespace -> absolute path index ready
// for the import resolver's ResolveFunc. Unreadable files are included
// with empty content, hashed as such, rather than aborting the walk,
// matching the specification's file-read-error handling.
func WalkPackage(ctx context.Context, root, ext, initializerFilename string, read Reader) ([]File, map[string]string, error) {
	var files []File
	index := map[string]string{}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("source: walk error, skipping")
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ext) {
			return nil
		}
		isInit := filepath.Base(path) == initializerFilename
		namespace := toNamespace(root, path, ext, isInit)
		content := read(ctx, path)
		hash, herr := contenthash.Hash(content)
		if herr != nil {
			log.Warn().Err(herr).Str("path", path).Msg("source: hash failed")
		}
		files = append(files, File{Namespace: namespace, AbsPath: path, IsInit: isInit, Hash: hash})
		index[namespace] = path
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, index, nil
}

func toNamespace(root, path, ext string, isInit bool) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, ext)
	if isInit {
		rel = strings.TrimSuffix(rel, "/__init__")
		rel = strings.TrimSuffix(rel, "__init__")
	}
	rel = strings.Trim(rel, "/")
	parts := strings.Split(rel, "/")
	return ns.Join(parts...)
}

// Resolver returns a importresolver.ResolveFunc backed by index, the
// namespace -> absolute-path map WalkPackage produced.
func Resolver(index map[string]string) func(string) (string, bool) {
	return func(moduleName string) (string, bool) {
		p, ok := index[moduleName]
		return p, ok
	}
}
