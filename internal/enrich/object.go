package enrich

import (
	"context"
	"maps"
	"strings"
)

// GeoSuffix is appended to a field name to form the key its record is
// written under.
const GeoSuffix = "_geo"

// DefaultFields are the IP-bearing fields scanned when none are given.
var DefaultFields = []string{
	"source_ip",
	"destination_ip",
	"src_ip",
	"dst_ip",
	"remote_ip",
	"local_ip",
	"device_ip",
	"ip",
	"device.ip",
	"remote.ip",
}

// EnrichObject returns a copy of obj with a record written at "<field>_geo"
// for every listed field holding an IP that resolved successfully. Dotted
// fields address nested maps. Fields whose value is not a string, or that
// already have a "_geo" sibling, are skipped. When nothing is written obj
// itself is returned; obj is never modified.
func (e *Engine) EnrichObject(ctx context.Context, obj map[string]any, fields ...string) map[string]any {
	if obj == nil || !e.features.EnrichmentEnabled() || !e.features.ShouldSample() {
		return obj
	}
	reqs := e.collect(obj, fields)
	if len(reqs) == 0 {
		return obj
	}
	return apply(obj, reqs, e.EnrichBatch(ctx, reqs))
}

// EnrichObjects enriches a slice of objects with a single batch so IPs
// shared between objects are resolved once.
func (e *Engine) EnrichObjects(ctx context.Context, objs []map[string]any, fields ...string) []map[string]any {
	out := make([]map[string]any, len(objs))
	copy(out, objs)
	if !e.features.EnrichmentEnabled() {
		return out
	}

	perObj := make([][]BatchRequest, len(objs))
	var all []BatchRequest
	for i, obj := range objs {
		if obj == nil || !e.features.ShouldSample() {
			continue
		}
		perObj[i] = e.collect(obj, fields)
		all = append(all, perObj[i]...)
	}
	if len(all) == 0 {
		return out
	}

	results := e.EnrichBatch(ctx, all)
	for i, reqs := range perObj {
		if len(reqs) > 0 {
			out[i] = apply(objs[i], reqs, results)
		}
	}
	return out
}

// collect builds the batch requests for obj.
func (e *Engine) collect(obj map[string]any, fields []string) []BatchRequest {
	if len(fields) == 0 {
		fields = e.opts.Fields
	}
	var reqs []BatchRequest
	for _, field := range fields {
		path, v, ok := lookup(obj, field)
		if !ok {
			continue
		}
		ip, ok := v.(string)
		if !ok || strings.TrimSpace(ip) == "" {
			continue
		}
		if _, exists := lookupPath(obj, geoPath(path)); exists {
			continue
		}
		reqs = append(reqs, BatchRequest{IP: ip, FieldPath: strings.Join(path, ".")})
	}
	return reqs
}

// apply writes successful results onto a copy of obj. Maps along written
// paths are copied once; everything else is shared with obj.
func apply(obj map[string]any, reqs []BatchRequest, results map[string]Result) map[string]any {
	var out map[string]any
	copied := make(map[string]map[string]any)

	for _, req := range reqs {
		res, ok := results[req.IP]
		if !ok || !res.Success || res.Data == nil {
			continue
		}
		if out == nil {
			out = maps.Clone(obj)
			copied[""] = out
		}

		path := geoPath(splitPath(obj, req.FieldPath))
		m := out
		for i, key := range path[:len(path)-1] {
			prefix := strings.Join(path[:i+1], "\x00")
			if c, ok := copied[prefix]; ok {
				m = c
				continue
			}
			child, _ := m[key].(map[string]any)
			c := maps.Clone(child)
			m[key] = c
			copied[prefix] = c
			m = c
		}
		m[path[len(path)-1]] = res.Data
	}

	if out == nil {
		return obj
	}
	return out
}

// lookup resolves field against obj. A top-level key containing a dot wins
// over the nested interpretation.
func lookup(obj map[string]any, field string) ([]string, any, bool) {
	if v, ok := obj[field]; ok {
		return []string{field}, v, true
	}
	if !strings.Contains(field, ".") {
		return nil, nil, false
	}
	path := strings.Split(field, ".")
	v, ok := lookupPath(obj, path)
	return path, v, ok
}

func lookupPath(obj map[string]any, path []string) (any, bool) {
	m := obj
	for i, key := range path {
		v, ok := m[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		if m, ok = v.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

// splitPath recovers the path segments collect chose for a field path.
func splitPath(obj map[string]any, fieldPath string) []string {
	if _, ok := obj[fieldPath]; ok {
		return []string{fieldPath}
	}
	return strings.Split(fieldPath, ".")
}

func geoPath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	out[len(out)-1] += GeoSuffix
	return out
}
