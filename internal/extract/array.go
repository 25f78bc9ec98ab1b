package extract

import (
	"encoding/json"
	"sort"

	"token-radar/internal/domain"
)

// preferredArrayKeys are the nested key names known to carry the record list
// in at least one observed upstream revision, in priority order.
var preferredArrayKeys = []string{"items", "transactions", "txs", "records", "rows", "result", "list"}

// FindArray locates the record array inside an upstream response body of
// unknown shape. Resolution order: the body itself is an array; a top-level
// "data" array; a preferred key under "data" or top level; any other
// array-valued key. A body with no array anywhere yields an empty slice,
// never an error.
func FindArray(body []byte) []domain.RawRecord {
	var top any
	if err := json.Unmarshal(body, &top); err != nil {
		return nil
	}
	return findArrayValue(top)
}

func findArrayValue(v any) []domain.RawRecord {
	if arr, ok := v.([]any); ok {
		return toRecords(arr)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	if data, ok := obj["data"]; ok {
		if arr, ok := data.([]any); ok {
			return toRecords(arr)
		}
		if inner, ok := data.(map[string]any); ok {
			if recs := arrayUnderPreferredKey(inner); recs != nil {
				return recs
			}
		}
	}

	if recs := arrayUnderPreferredKey(obj); recs != nil {
		return recs
	}

	// Last resort: any array-valued key, scanned in sorted key order so the
	// choice is deterministic. Within one response the upstream has only ever
	// carried a single list, so first match is fine.
	if recs := firstArrayValue(obj); recs != nil {
		return recs
	}
	if data, ok := obj["data"].(map[string]any); ok {
		if recs := firstArrayValue(data); recs != nil {
			return recs
		}
	}

	return nil
}

func firstArrayValue(obj map[string]any) []domain.RawRecord {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if arr, ok := obj[k].([]any); ok {
			return toRecords(arr)
		}
	}
	return nil
}

func arrayUnderPreferredKey(obj map[string]any) []domain.RawRecord {
	for _, key := range preferredArrayKeys {
		if arr, ok := obj[key].([]any); ok {
			return toRecords(arr)
		}
	}
	return nil
}

func toRecords(arr []any) []domain.RawRecord {
	records := make([]domain.RawRecord, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, domain.RawRecord(obj))
		}
	}
	return records
}
