package heartbeat

import "strings"

// pageNames maps portal routes to the names reported in heartbeats.
var pageNames = map[string]string{
	"/":           "Farm overview",
	"/active":     "Active rooms",
	"/harvest":    "Harvest",
	"/trim":       "Trim",
	"/clones":     "Clones",
	"/vegetation": "Vegetation",
	"/archive":    "Cycle archive",
	"/stats":      "Statistics",
	"/strains":    "Strains",
	"/workers":    "Workers",
	"/audit":      "Audit log",
	"/trash":      "Trash",
}

// PageName returns the readable name for a portal route. Sub-routes take
// the name of their section, so /archive/abc123 is "Cycle archive". Unknown
// routes are reported as is.
func PageName(route string) string {
	if route == "" {
		route = "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if name, ok := pageNames[route]; ok {
		return name
	}

	best := ""
	for prefix := range pageNames {
		if prefix == "/" || !strings.HasPrefix(route, prefix+"/") {
			continue
		}
		if len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return pageNames[best]
	}
	return route
}
