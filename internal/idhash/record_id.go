// Package idhash derives stable identifiers from upstream records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/mr-tron/base58"

	"token-radar/internal/domain"
)

// identityKeys are the fields that identify a record, in priority order:
// transaction identifiers first, then pool/mint addresses.
var identityKeys = []string{
	"txHash", "tx_hash", "signature", "txSignature", "tx_signature", "tx",
	"pairAddress", "pair_address", "poolAddress", "pool_address", "address",
	"mint", "tokenAddress", "token_address",
}

// DedupKey computes a deterministic dedup key for a raw record.
// The first usable identity field wins; records with no identity field fall
// back to a digest of the full canonical serialization, so identical payloads
// always map to the same key regardless of source key ordering.
func DedupKey(raw domain.RawRecord) string {
	for _, key := range identityKeys {
		s, ok := raw[key].(string)
		if !ok || s == "" {
			continue
		}
		if isAddressKey(key) && !IsLikelyAddress(s) {
			continue
		}
		return hashString(key + "|" + s)
	}
	return hashString(canonicalJSON(raw))
}

func isAddressKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "address") || key == "mint"
}

// IsLikelyAddress reports whether s decodes as a 32-byte base58 value,
// the shape of a Solana pubkey. Garbage in an address field (upstream debug
// placeholders, truncated values) must not become an identity key, because
// every such record would then collapse onto one dedup key.
func IsLikelyAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// canonicalJSON serializes a record with sorted keys so the digest is stable
// across key-order variance in the source object.
func canonicalJSON(raw domain.RawRecord) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		b.WriteString(canonicalValue(raw[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func canonicalValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return canonicalJSON(domain.RawRecord(val))
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalValue(item))
		}
		b.WriteByte(']')
		return b.String()
	default:
		vb, _ := json.Marshal(v)
		return string(vb)
	}
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
