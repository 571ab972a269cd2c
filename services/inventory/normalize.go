package inventory

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"sort"
	"strconv"
	"strings"
)

const (
	bytesPerGB = 1 << 30

	// maxCPUPackages bounds the legacy cpu_count summary.
	maxCPUPackages = 256
	// maxReportInt bounds every integer read from a report.
	maxReportInt = math.MaxInt32
)

// placeholderSerials are values firmware vendors ship in place of a real serial.
var placeholderSerials = map[string]struct{}{
	"none":                    {},
	"null":                    {},
	"nil":                     {},
	"n/a":                     {},
	"na":                      {},
	"unknown":                 {},
	"default string":          {},
	"to be filled by o.e.m.":  {},
	"system serial number":    {},
	"chassis serial number":   {},
	"serial number":           {},
	"not specified":           {},
	"not available":           {},
	"not applicable":          {},
	"0123456789":              {},
	"123456789":               {},
	"invalid":                 {},
	"empty":                   {},
}

// IsPlaceholderSN reports whether sn carries no identity: blank, a known vendor
// placeholder, or nothing but filler characters such as zeros and dashes.
func IsPlaceholderSN(sn string) bool {
	s := strings.ToLower(strings.TrimSpace(sn))
	if s == "" {
		return true
	}
	if _, ok := placeholderSerials[s]; ok {
		return true
	}
	return strings.Trim(s, "0.-_ x*") == ""
}

// ParseAssetType validates an asset_type value.
func ParseAssetType(v string) (AssetType, error) {
	t := AssetType(strings.ToLower(strings.TrimSpace(v)))
	if _, ok := variants[t]; !ok {
		return "", malformed("asset_type", "unrecognized value %q", v)
	}
	return t, nil
}

// Normalize validates a raw report document and returns its canonical form.
// It has no side effects. Both the current shape (cpus, ram, disks, nics) and
// the legacy agent shape (cpu_count, physical_disk_driver, nic) are accepted.
func Normalize(raw map[string]any) (Report, error) {
	if raw == nil {
		return Report{}, malformed("report", "empty document")
	}

	typeValue, err := stringValue(raw["asset_type"], "asset_type")
	if err != nil {
		return Report{}, err
	}
	assetType, err := ParseAssetType(typeValue)
	if err != nil {
		return Report{}, err
	}

	sn, err := stringValue(raw["sn"], "sn")
	if err != nil {
		return Report{}, err
	}
	sn = strings.TrimSpace(sn)
	if IsPlaceholderSN(sn) {
		return Report{}, malformed("sn", "missing or placeholder serial %q", sn)
	}

	report := Report{AssetType: assetType, SN: sn}
	if report.Name, err = optionalString(raw, "name"); err != nil {
		return Report{}, err
	}
	if report.Model, err = optionalString(raw, "model"); err != nil {
		return Report{}, err
	}
	if report.Manufacturer, err = optionalString(raw, "manufacturer"); err != nil {
		return Report{}, err
	}
	if report.Extension, err = variants[assetType].extract(raw); err != nil {
		return Report{}, err
	}

	if report.CPUs, err = normalizeCPUs(raw); err != nil {
		return Report{}, err
	}
	if report.RAM, err = normalizeRAM(raw); err != nil {
		return Report{}, err
	}
	if report.Disks, err = normalizeDisks(raw); err != nil {
		return Report{}, err
	}
	if report.NICs, err = normalizeNICs(raw); err != nil {
		return Report{}, err
	}

	return report, nil
}

func normalizeCPUs(raw map[string]any) ([]CPU, error) {
	if v, ok := raw["cpus"]; ok && v != nil {
		items, err := objectList(v, "cpus")
		if err != nil {
			return nil, err
		}
		cpus := make([]CPU, 0, len(items))
		for i, item := range items {
			field := fmt.Sprintf("cpus[%d]", i)
			model, err := optionalString(item, "model")
			if err != nil {
				return nil, prefixed(field, err)
			}
			cores, err := optionalInt(item, "core_count")
			if err != nil {
				return nil, prefixed(field, err)
			}
			cpus = append(cpus, CPU{Model: model, CoreCount: cores})
		}
		sortCPUs(cpus)
		return cpus, nil
	}

	// Legacy agents send one summary: package count, model and total cores.
	count, err := optionalInt(raw, "cpu_count")
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []CPU{}, nil
	}
	if count > maxCPUPackages {
		return nil, malformed("cpu_count", "%d exceeds %d packages", count, maxCPUPackages)
	}
	model, err := optionalString(raw, "cpu_model")
	if err != nil {
		return nil, err
	}
	total, err := optionalInt(raw, "cpu_core_count")
	if err != nil {
		return nil, err
	}
	// Cores are spread evenly and one package carries any remainder.
	cpus := make([]CPU, count)
	for i := range cpus {
		cpus[i] = CPU{Model: model, CoreCount: total / count}
	}
	cpus[0].CoreCount += total % count
	sortCPUs(cpus)
	return cpus, nil
}

func normalizeRAM(raw map[string]any) ([]RAM, error) {
	items, err := objectList(raw["ram"], "ram")
	if err != nil {
		return nil, err
	}
	out := make([]RAM, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		field := fmt.Sprintf("ram[%d]", i)
		slot, err := slotValue(item["slot"])
		if err != nil {
			return nil, prefixed(field, err)
		}
		if slot == "" {
			return nil, malformed(field+".slot", "required")
		}
		if _, dup := seen[slot]; dup {
			return nil, malformed(field+".slot", "duplicate slot %q", slot)
		}
		seen[slot] = struct{}{}

		capacity, err := capacityGB(item)
		if err != nil {
			return nil, prefixed(field, err)
		}
		module := RAM{Slot: slot, Capacity: capacity}
		if module.Model, err = optionalString(item, "model"); err != nil {
			return nil, prefixed(field, err)
		}
		if module.Manufacturer, err = optionalString(item, "manufacturer"); err != nil {
			return nil, prefixed(field, err)
		}
		if module.SN, err = optionalString(item, "sn"); err != nil {
			return nil, prefixed(field, err)
		}
		out = append(out, module)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func normalizeDisks(raw map[string]any) ([]Disk, error) {
	key := "disks"
	if _, ok := raw[key]; !ok {
		key = "physical_disk_driver"
	}
	items, err := objectList(raw[key], key)
	if err != nil {
		return nil, err
	}
	out := make([]Disk, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", key, i)
		slot, err := slotValue(item["slot"])
		if err != nil {
			return nil, prefixed(field, err)
		}
		if slot == "" {
			return nil, malformed(field+".slot", "required")
		}
		if _, dup := seen[slot]; dup {
			return nil, malformed(field+".slot", "duplicate slot %q", slot)
		}
		seen[slot] = struct{}{}

		capacity, err := capacityGB(item)
		if err != nil {
			return nil, prefixed(field, err)
		}
		disk := Disk{Slot: slot, Capacity: capacity}
		if disk.SN, err = optionalString(item, "sn"); err != nil {
			return nil, prefixed(field, err)
		}
		if disk.Model, err = optionalString(item, "model"); err != nil {
			return nil, prefixed(field, err)
		}
		if disk.Manufacturer, err = optionalString(item, "manufacturer"); err != nil {
			return nil, prefixed(field, err)
		}
		if disk.IfaceType, err = optionalString(item, "iface_type"); err != nil {
			return nil, prefixed(field, err)
		}
		disk.IfaceType = strings.ToLower(disk.IfaceType)
		if disk.IfaceType == "" {
			disk.IfaceType = "unknown"
		}
		out = append(out, disk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func normalizeNICs(raw map[string]any) ([]NIC, error) {
	key := "nics"
	if _, ok := raw[key]; !ok {
		key = "nic"
	}
	items, err := objectList(raw[key], key)
	if err != nil {
		return nil, err
	}
	byMAC := make(map[string]NIC, len(items))
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", key, i)
		macValue, err := optionalString(item, "mac")
		if err != nil {
			return nil, prefixed(field, err)
		}
		if strings.TrimSpace(macValue) == "" {
			// Interfaces without a hardware address (loopback, tunnels) carry no identity.
			continue
		}
		mac, err := NormalizeMAC(macValue)
		if err != nil {
			return nil, malformed(field+".mac", "%v", err)
		}

		nic := NIC{MAC: mac}
		if nic.Name, err = optionalString(item, "name"); err != nil {
			return nil, prefixed(field, err)
		}
		if nic.Model, err = optionalString(item, "model"); err != nil {
			return nil, prefixed(field, err)
		}
		if nic.IPAddress, err = firstString(item["ip_address"], field+".ip_address"); err != nil {
			return nil, err
		}
		if nic.NetMask, err = firstString(item["net_mask"], field+".net_mask"); err != nil {
			return nil, err
		}

		// Bonded and aliased interfaces repeat a MAC; keep the entry that has an address.
		if prev, dup := byMAC[mac]; dup && prev.IPAddress != "" {
			continue
		}
		byMAC[mac] = nic
	}

	out := make([]NIC, 0, len(byMAC))
	for _, nic := range byMAC {
		out = append(out, nic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out, nil
}

// NormalizeMAC returns the lower-case colon form of a hardware address.
// Embedded spaces, as some agents emit, are dropped first.
func NormalizeMAC(v string) (string, error) {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(v), " ", ""))
	if len(s) == 12 && strings.Trim(s, "0123456789abcdef") == "" {
		s = strings.Join([]string{s[0:2], s[2:4], s[4:6], s[6:8], s[8:10], s[10:12]}, ":")
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return "", err
	}
	return hw.String(), nil
}

func sortCPUs(cpus []CPU) {
	sort.Slice(cpus, func(i, j int) bool {
		if cpus[i].Model != cpus[j].Model {
			return cpus[i].Model < cpus[j].Model
		}
		return cpus[i].CoreCount < cpus[j].CoreCount
	})
}

// capacityGB reads "capacity" (GB) or "capacity_bytes", truncating to whole GB.
func capacityGB(item map[string]any) (int, error) {
	if v, ok := item["capacity_bytes"]; ok && v != nil {
		n, err := numberValue(v, "capacity_bytes")
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, malformed("capacity_bytes", "negative value")
		}
		gb := math.Floor(n / bytesPerGB)
		if gb > maxReportInt {
			return 0, malformed("capacity_bytes", "value out of range")
		}
		return int(gb), nil
	}
	return optionalInt(item, "capacity")
}

func stringValue(v any, field string) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", malformed(field, "required")
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", malformed(field, "expected a string, got %T", v)
	}
}

func optionalString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, err := stringValue(v, key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// firstString accepts a scalar or a list and returns the first non-empty element.
func firstString(v any, field string) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case []any:
		for _, item := range t {
			s, err := stringValue(item, field)
			if err != nil {
				return "", err
			}
			if s = strings.TrimSpace(s); s != "" {
				return s, nil
			}
		}
		return "", nil
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				return s, nil
			}
		}
		return "", nil
	default:
		s, err := stringValue(v, field)
		return strings.TrimSpace(s), err
	}
}

// slotValue accepts string or integer slot identifiers.
func slotValue(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, err := stringValue(v, "slot")
	return strings.TrimSpace(s), err
}

func numberValue(v any, field string) (float64, error) {
	switch t := v.(type) {
	case float64:
		return finite(t, field)
	case float32:
		return finite(float64(t), field)
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, malformed(field, "not a number: %q", t.String())
		}
		return finite(f, field)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, malformed(field, "not a number: %q", t)
		}
		return finite(f, field)
	default:
		return 0, malformed(field, "expected a number, got %T", v)
	}
}

func finite(f float64, field string) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, malformed(field, "not a finite number")
	}
	return f, nil
}

func optionalInt(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	n, err := numberValue(v, key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, malformed(key, "negative value")
	}
	if n > maxReportInt {
		return 0, malformed(key, "value out of range")
	}
	return int(n), nil
}

func objectList(v any, field string) ([]map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return t, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, malformed(fmt.Sprintf("%s[%d]", field, i), "expected an object, got %T", item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, malformed(field, "expected a list, got %T", v)
	}
}

func prefixed(field string, err error) error {
	if m, ok := err.(*MalformedReportError); ok {
		return &MalformedReportError{Field: field + "." + m.Field, Reason: m.Reason}
	}
	return err
}
