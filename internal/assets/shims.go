package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// writeShims generates one inject module per provided global. esbuild only
// substitutes a shim where its global is referenced. Globals whose module is
// not installed are skipped with a warning. The caller removes dir.
func writeShims(dir string, resolver *Resolver, provide map[string]string) ([]string, error) {
	globals := make([]string, 0, len(provide))
	for global := range provide {
		globals = append(globals, global)
	}
	sort.Strings(globals)

	files := make([]string, 0, len(globals))
	for _, global := range globals {
		module, export, found := strings.Cut(provide[global], "#")
		if !found || export == "" {
			export = global
		}
		if strings.HasPrefix(module, "./") || strings.HasPrefix(module, "../") {
			module = filepath.ToSlash(resolver.Abs(module))
		} else if !packageInstalled(resolver, module) {
			log.Warn().Str("global", global).Str("module", module).Msg("Provided module not installed, skipping shim")
			continue
		}

		src := fmt.Sprintf("export { %s as %s } from %q;\n", export, global, module)
		path := filepath.Join(dir, "provide-"+global+".js")
		if err := os.WriteFile(path, []byte(src), 0600); err != nil {
			return nil, &IOError{Op: "write", Path: path, Err: err}
		}
		files = append(files, path)
	}
	return files, nil
}

func packageInstalled(resolver *Resolver, module string) bool {
	for _, dir := range resolver.NodePaths() {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(module))); err == nil {
			return true
		}
	}
	return false
}
