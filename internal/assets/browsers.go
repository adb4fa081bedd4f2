package assets

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// latestVersions is the newest major release tracked per browser.
var latestVersions = map[string]struct {
	engine api.EngineName
	major  int
}{
	"chrome":  {api.EngineChrome, 131},
	"edge":    {api.EngineEdge, 131},
	"firefox": {api.EngineFirefox, 133},
	"safari":  {api.EngineSafari, 18},
	"ios":     {api.EngineIOS, 18},
	"opera":   {api.EngineOpera, 115},
}

var (
	lastVersionsQuery = regexp.MustCompile(`^last (\d+) versions?$`)
	browserQuery      = regexp.MustCompile(`^([a-z]+) (\d+(?:\.\d+)*)$`)
)

// ParseBrowsers converts a browser support matrix into esbuild engine targets.
// Supported queries are "last N versions" and "<browser> <version>". When a
// browser is named more than once the oldest version wins.
func ParseBrowsers(queries []string) ([]api.Engine, error) {
	versions := map[string]string{}

	setOldest := func(browser, version string) {
		if cur, ok := versions[browser]; !ok || compareVersions(version, cur) < 0 {
			versions[browser] = version
		}
	}

	for _, q := range queries {
		q = strings.ToLower(strings.TrimSpace(q))

		if m := lastVersionsQuery.FindStringSubmatch(q); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n < 1 {
				return nil, &ConfigurationError{Msg: fmt.Sprintf("invalid browser query %q", q)}
			}
			for browser, latest := range latestVersions {
				setOldest(browser, strconv.Itoa(max(1, latest.major-n+1)))
			}
			continue
		}

		if m := browserQuery.FindStringSubmatch(q); m != nil {
			if _, ok := latestVersions[m[1]]; !ok {
				return nil, &ConfigurationError{Msg: fmt.Sprintf("unknown browser %q", m[1])}
			}
			setOldest(m[1], m[2])
			continue
		}

		return nil, &ConfigurationError{Msg: fmt.Sprintf("unsupported browser query %q", q)}
	}

	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)

	engines := make([]api.Engine, 0, len(names))
	for _, name := range names {
		engines = append(engines, api.Engine{Name: latestVersions[name].engine, Version: versions[name]})
	}
	return engines, nil
}

func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		var x, y int
		if i < len(as) {
			x, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			y, _ = strconv.Atoi(bs[i])
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// parseTarget maps a dialect name such as "es5" or "es2015" to esbuild.
func parseTarget(target string) (api.Target, error) {
	switch strings.ToLower(target) {
	case "", "es5":
		return api.ES5, nil
	case "es2015", "es6":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	case "es2023":
		return api.ES2023, nil
	case "esnext":
		return api.ESNext, nil
	default:
		return 0, &ConfigurationError{Msg: fmt.Sprintf("unknown target %q", target)}
	}
}
