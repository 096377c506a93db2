package fancontrol

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const thermalRoot = "/sys/class/thermal"

// cpuZoneTypes are thermal zone "type" names that measure the SoC/CPU on
// common single-board computers, in preference order.
var cpuZoneTypes = []string{"cpu-thermal", "cpu_thermal", "soc_thermal", "x86_pkg_temp"}

// parseTempC converts a sysfs temp reading to degrees C. sysfs reports
// millidegrees; small values are taken as whole degrees.
func parseTempC(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("fancontrol: temperature empty")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("fancontrol: parse temperature %q: %w", s, err)
	}
	if n > 1000 || n < -1000 {
		return float64(n) / 1000.0, nil
	}
	return float64(n), nil
}

// ReadTempC reads a sysfs temperature file in degrees C.
func ReadTempC(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("fancontrol: read temperature: %w", err)
	}
	return parseTempC(string(b))
}

// FindCPUTempPath returns the temp file of the CPU thermal zone under root,
// falling back to thermal_zone0.
func FindCPUTempPath(root string) string {
	zones, _ := filepath.Glob(filepath.Join(root, "thermal_zone*"))
	sort.Strings(zones)

	byType := make(map[string]string, len(zones))
	for _, z := range zones {
		b, err := os.ReadFile(filepath.Join(z, "type"))
		if err != nil {
			continue
		}
		t := strings.TrimSpace(string(b))
		if _, seen := byType[t]; !seen {
			byType[t] = z
		}
	}
	for _, t := range cpuZoneTypes {
		if z, ok := byType[t]; ok {
			return filepath.Join(z, "temp")
		}
	}
	return filepath.Join(root, "thermal_zone0", "temp")
}
