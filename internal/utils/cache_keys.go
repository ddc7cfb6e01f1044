package utils

import (
	"strings"
)

// scope is "all" for unscoped views or the upper-cased station code.
func scope(station string) string {
	s := strings.ToUpper(strings.TrimSpace(station))
	if s == "" {
		return "all"
	}
	return s
}

func BuildParcelStatsCacheKey(station string) string {
	return "parcels:stats:v1:station=" + scope(station)
}

func BuildAdminDashboardCacheKey(station string) string {
	return "dashboard:admin:v1:station=" + scope(station)
}

func BuildSuperadminDashboardCacheKey() string {
	return "dashboard:superadmin:v1"
}
