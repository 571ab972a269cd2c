package inventory

import (
	"maps"
	"strings"
)

// variant describes the type-specific part of an asset. The shared base
// fields are handled uniformly; only the extension goes through here.
type variant struct {
	fields []string
	merge  func(current, incoming map[string]string) map[string]string
}

var variants = map[AssetType]variant{
	AssetTypeServer: {
		fields: []string{"os_type", "os_release", "os_distribution"},
		merge:  replaceExtension,
	},
	AssetTypeNetworkDevice: {
		fields: []string{"sub_asset_type", "firmware", "port_num", "intranet_ip", "vlan_ip"},
		merge:  overlayExtension,
	},
	AssetTypeStorageDevice: {
		fields: []string{"sub_asset_type", "firmware"},
		merge:  overlayExtension,
	},
	AssetTypeSecurityDevice: {
		fields: []string{"sub_asset_type", "firmware"},
		merge:  overlayExtension,
	},
}

// extract pulls the variant's fields from a raw report. Values may sit at the
// top level or under "extension".
func (v variant) extract(raw map[string]any) (map[string]string, error) {
	nested, _ := raw["extension"].(map[string]any)
	out := make(map[string]string)
	for _, field := range v.fields {
		src := raw
		if _, ok := raw[field]; !ok && nested != nil {
			src = nested
		}
		val, err := optionalString(src, field)
		if err != nil {
			return nil, err
		}
		if val != "" {
			out[field] = val
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// The OS of a server is reported as a whole; a field missing from the report
// was cleared on the host.
func replaceExtension(_, incoming map[string]string) map[string]string {
	if len(incoming) == 0 {
		return nil
	}
	return maps.Clone(incoming)
}

// Devices are often inventoried by scripts that only see part of the picture,
// so an empty incoming value never erases a known one.
func overlayExtension(current, incoming map[string]string) map[string]string {
	out := maps.Clone(current)
	if out == nil {
		out = make(map[string]string, len(incoming))
	}
	for k, v := range incoming {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeExtension(t AssetType, current, incoming map[string]string) map[string]string {
	v, ok := variants[t]
	if !ok {
		return maps.Clone(incoming)
	}
	return v.merge(current, incoming)
}
