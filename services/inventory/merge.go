package inventory

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
)

// applyReport returns current with the report's fields written over it.
// current is nil when the asset does not exist yet. Timestamps, id and
// approved_by are left to the caller.
func applyReport(current *Asset, r Report) Asset {
	var a Asset
	var currentExt map[string]string
	if current != nil {
		a = cloneAsset(*current)
		if current.AssetType == r.AssetType {
			currentExt = current.Extension
		}
	}

	a.AssetType = r.AssetType
	a.SN = r.SN
	if r.Name != "" {
		a.Name = r.Name
	} else if a.Name == "" {
		a.Name = r.SN
	}
	a.Model = r.Model
	a.Manufacturer = r.Manufacturer
	a.Extension = mergeExtension(r.AssetType, currentExt, r.Extension)
	if a.Status == "" {
		a.Status = AssetStatusOnline
	}
	a.Components = cloneComponents(r.Components)
	return a
}

// assetSnapshot flattens the fields a report can change into comparable
// values. Components are keyed by their natural key so order never matters.
func assetSnapshot(a Asset) map[string]any {
	snap := map[string]any{
		"asset_type":   string(a.AssetType),
		"name":         a.Name,
		"model":        a.Model,
		"manufacturer": a.Manufacturer,
	}
	for k, v := range a.Extension {
		snap["ext."+k] = v
	}

	cpus := make([]string, 0, len(a.CPUs))
	for _, c := range a.CPUs {
		cpus = append(cpus, fmt.Sprintf("%s/%d", c.Model, c.CoreCount))
	}
	sort.Strings(cpus)
	snap["cpus"] = cpus

	ram := make(map[string]RAM, len(a.RAM))
	for _, m := range a.RAM {
		ram[m.Slot] = m
	}
	snap["ram"] = ram

	disks := make(map[string]Disk, len(a.Disks))
	for _, d := range a.Disks {
		disks[d.Slot] = d
	}
	snap["disks"] = disks

	nics := make(map[string]NIC, len(a.NICs))
	for _, n := range a.NICs {
		nics[n.MAC] = n
	}
	snap["nics"] = nics

	return snap
}

// computeDiff returns old/new pairs for every key whose value differs.
func computeDiff(previous, current map[string]any) map[string]map[string]any {
	if previous == nil {
		previous = map[string]any{}
	}
	if current == nil {
		current = map[string]any{}
	}

	diff := make(map[string]map[string]any)

	for key, prevVal := range previous {
		curVal, ok := current[key]
		if !ok {
			diff[key] = map[string]any{"old": prevVal, "new": nil}
			continue
		}
		if !reflect.DeepEqual(prevVal, curVal) {
			diff[key] = map[string]any{"old": prevVal, "new": curVal}
		}
	}

	for key, curVal := range current {
		if _, seen := previous[key]; seen {
			continue
		}
		diff[key] = map[string]any{"old": nil, "new": curVal}
	}

	return diff
}

// changedFields lists the diff keys in a stable order.
func changedFields(diff map[string]map[string]any) []string {
	return slices.Sorted(maps.Keys(diff))
}

func cloneAsset(a Asset) Asset {
	a.Extension = maps.Clone(a.Extension)
	a.Components = cloneComponents(a.Components)
	return a
}

func cloneComponents(c Components) Components {
	return Components{
		CPUs:  nonNil(slices.Clone(c.CPUs)),
		RAM:   nonNil(slices.Clone(c.RAM)),
		Disks: nonNil(slices.Clone(c.Disks)),
		NICs:  nonNil(slices.Clone(c.NICs)),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
