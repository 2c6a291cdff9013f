package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ResourceKind enumerates the kinds of accountable resources.
type ResourceKind string

const (
	ResourceKindCPU  ResourceKind = "cpu"
	ResourceKindDisk ResourceKind = "disk"
)

// ResourceKinds lists every resource kind.
var ResourceKinds = []ResourceKind{ResourceKindCPU, ResourceKindDisk}

// ResourceUnit enumerates the measurement units of resource usage.
type ResourceUnit string

const (
	ResourceUnitMilliseconds ResourceUnit = "milliseconds"
	ResourceUnitBytes        ResourceUnit = "bytes"
)

// CanonicalUnit returns the unit a resource kind is measured in.
func CanonicalUnit(kind ResourceKind) ResourceUnit {
	if kind == ResourceKindCPU {
		return ResourceUnitMilliseconds
	}
	return ResourceUnitBytes
}

var byteUnits = []string{"Bytes", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB", "YiB"}

// HumanReadable converts a raw usage value into a display string for the
// given unit. Presentation only, never parsed back.
func HumanReadable(unit ResourceUnit, value int64) string {
	switch unit {
	case ResourceUnitBytes:
		return humanReadableBytes(value)
	case ResourceUnitMilliseconds:
		return humanReadableMilliseconds(value)
	default:
		return strconv.FormatInt(value, 10)
	}
}

func humanReadableBytes(value int64) string {
	if value == 0 {
		return "0 Bytes"
	}
	sign := ""
	if value < 0 {
		sign = "-"
	}
	magnitude := math.Abs(float64(value))
	idx := int(math.Floor(math.Log(magnitude) / math.Log(1024)))
	if idx >= len(byteUnits) {
		idx = len(byteUnits) - 1
	}
	converted := math.Round(magnitude/math.Pow(1024, float64(idx))*100) / 100
	// FormatFloat with -1 precision trims trailing zeros, so 35.0
	// renders as "35" while 34.18 stays "34.18".
	return fmt.Sprintf("%s%s %s", sign, strconv.FormatFloat(converted, 'f', -1, 64), byteUnits[idx])
}

func humanReadableMilliseconds(value int64) string {
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	hours := value / (1000 * 60 * 60)
	minutes := (value / (1000 * 60)) % 60
	seconds := (value / 1000) % 60

	var parts []string
	for _, c := range []struct {
		value int64
		unit  string
	}{{hours, "h"}, {minutes, "m"}, {seconds, "s"}} {
		if c.value >= 1 {
			parts = append(parts, fmt.Sprintf("%d%s", c.value, c.unit))
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return sign + strings.Join(parts, " ")
}
