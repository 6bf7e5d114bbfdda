package http

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"text/tabwriter"
)

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
}

// RouteStats is the full route table with per-method counts.
type RouteStats struct {
	Total   int            `json:"total"`
	Methods map[string]int `json:"methods"`
	Routes  []RouteInfo    `json:"routes"`
}

// RouteFilters narrows and orders the route listing.
type RouteFilters struct {
	Method string
	Path   string
	SortBy string
}

// CollectRoutes walks the router and builds the route table.
func CollectRoutes(router Router) RouteStats {
	stats := RouteStats{
		Methods: make(map[string]int),
		Routes:  []RouteInfo{},
	}

	_ = router.Walk(func(method, path string, handler http.Handler) error {
		stats.Routes = append(stats.Routes, RouteInfo{
			Method:  method,
			Path:    path,
			Handler: handlerName(handler),
		})
		stats.Methods[method]++
		stats.Total++
		return nil
	})

	return stats
}

// handlerName resolves the handler's function name via the runtime; method
// values carry an -fm suffix that is stripped.
func handlerName(handler http.Handler) string {
	fn := runtime.FuncForPC(reflect.ValueOf(handler).Pointer())
	if fn == nil {
		return fmt.Sprintf("%T", handler)
	}
	name := fn.Name()
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// PrintRoutes writes the filtered route listing in the requested format:
// table (default), json, csv, or simple.
func PrintRoutes(w io.Writer, stats RouteStats, format string, filters RouteFilters) {
	routes := filters.apply(stats.Routes)

	switch format {
	case "json":
		out := RouteStats{Total: stats.Total, Methods: stats.Methods, Routes: routes}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	case "csv":
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"method", "path", "handler"})
		for _, r := range routes {
			_ = cw.Write([]string{r.Method, r.Path, r.Handler})
		}
		cw.Flush()
	case "simple":
		for _, r := range routes {
			fmt.Fprintf(w, "%-8s %s\n", r.Method, r.Path)
		}
	default:
		printRouteTable(w, routes, stats)
	}
}

func (f RouteFilters) apply(routes []RouteInfo) []RouteInfo {
	filtered := make([]RouteInfo, 0, len(routes))
	for _, r := range routes {
		if f.Method != "" && !strings.EqualFold(r.Method, f.Method) {
			continue
		}
		if f.Path != "" && !strings.Contains(r.Path, f.Path) {
			continue
		}
		filtered = append(filtered, r)
	}

	less := func(i, j int) bool {
		if filtered[i].Path == filtered[j].Path {
			return filtered[i].Method < filtered[j].Method
		}
		return filtered[i].Path < filtered[j].Path
	}
	switch f.SortBy {
	case "method":
		less = func(i, j int) bool {
			if filtered[i].Method == filtered[j].Method {
				return filtered[i].Path < filtered[j].Path
			}
			return filtered[i].Method < filtered[j].Method
		}
	case "handler":
		less = func(i, j int) bool { return filtered[i].Handler < filtered[j].Handler }
	}
	sort.Slice(filtered, less)

	return filtered
}

func printRouteTable(w io.Writer, routes []RouteInfo, stats RouteStats) {
	fmt.Fprintf(w, "Registered routes: %d\n", stats.Total)

	methods := make([]string, 0, len(stats.Methods))
	for m := range stats.Methods {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(w, "  %-8s %d\n", m, stats.Methods[m])
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPATH\tHANDLER")
	for _, r := range routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Method, r.Path, r.Handler)
	}
	tw.Flush()

	if len(routes) != stats.Total {
		fmt.Fprintf(w, "\nShowing %d of %d routes\n", len(routes), stats.Total)
	}
}
