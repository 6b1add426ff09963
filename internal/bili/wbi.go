// Package bili implements the playback REST client (C3): signed (app) and
// unsigned (web) HTTP requests for room info, user info, and stream URLs.
package bili

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// wbiMixinKeyEncTable is the fixed permutation applied to the concatenation
// of an img_key and sub_key's MD5 hashes to derive the 32-byte WBI mixin key
// (spec.md §6, WBI signing).
var wbiMixinKeyEncTable = [32]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
}

// ExtractWBIKey pulls the key component out of an img/sub URL, e.g.
// ".../7cd084941338484aae1ad9425b84077c.png" -> "7cd084941338484aae1ad9425b84077c".
func ExtractWBIKey(rawURL string) string {
	base := rawURL
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		base = base[:idx]
	}
	return base
}

// MakeWBIKey derives the 32-character mixin key from an img_key and sub_key,
// per spec.md §8's round-trip law: with img_key=7cd084941338484aae1ad9425b84077c,
// sub_key=4932caff0ff746eab6f01bf08b70ac45, the derived key equals
// ea1db124af3c7062474693fa704f4ff8.
func MakeWBIKey(imgKey, subKey string) string {
	combined := imgKey + subKey
	out := make([]byte, len(wbiMixinKeyEncTable))
	for i, idx := range wbiMixinKeyEncTable {
		if idx < len(combined) {
			out[i] = combined[idx]
		}
	}
	return string(out)
}

// EncodeWBIValue percent-encodes a WBI query parameter value: characters in
// "!'()*" are dropped (not encoded and not kept, matching the original
// implementation's stripping behaviour), unreserved characters pass through,
// and everything else is percent-encoded with uppercase hex, per spec.md §8's
// round-trip law: encode(")-_-( F**' 哔~!") == "-_-%20F%20%E5%93%94~".
func EncodeWBIValue(value string) string {
	const stripped = "!'()*"
	var b strings.Builder
	for _, r := range value {
		if strings.ContainsRune(stripped, r) {
			continue
		}
		if isUnreservedWBIRune(r) {
			b.WriteRune(r)
			continue
		}
		for _, by := range []byte(string(r)) {
			fmt.Fprintf(&b, "%%%02X", by)
		}
	}
	return b.String()
}

func isUnreservedWBIRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.' || r == '~':
		return true
	default:
		return false
	}
}

// BuildWBIQuery builds the signed query string for a WBI-protected endpoint:
// appends wts=ts, sorts params by name, percent-encodes each value with
// EncodeWBIValue, joins as name=value&..., and appends &w_rid=md5(query+key).
func BuildWBIQuery(key string, ts int64, params [][2]string) string {
	all := append(append([][2]string{}, params...), [2]string{"wts", strconv.FormatInt(ts, 10)})
	sort.Slice(all, func(i, j int) bool { return all[i][0] < all[j][0] })

	parts := make([]string, 0, len(all))
	for _, kv := range all {
		parts = append(parts, kv[0]+"="+EncodeWBIValue(kv[1]))
	}
	query := strings.Join(parts, "&")

	sum := md5.Sum([]byte(query + key))
	return query + "&w_rid=" + hex.EncodeToString(sum[:])
}

// appKey and appSec are the fixed Android app-signing credentials, per
// spec.md §8's round-trip law.
const (
	appKey = "1d8b6e7d45233436"
	appSec = "560c52ccd288fed045859ed18bffd973"
)

// SignAppParams sorts params ∪ {appkey: appKey} alphabetically, URL-encodes
// them, and appends sign=md5(query+appSec): spec.md §6's App signing law.
func SignAppParams(params url.Values) url.Values {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = v
	}
	signed.Set("appkey", appKey)

	query := signed.Encode()
	sum := md5.Sum([]byte(query + appSec))
	signed.Set("sign", hex.EncodeToString(sum[:]))
	return signed
}
