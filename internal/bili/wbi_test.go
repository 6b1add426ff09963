package bili

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeWBIKey(t *testing.T) {
	key := MakeWBIKey("7cd084941338484aae1ad9425b84077c", "4932caff0ff746eab6f01bf08b70ac45")
	require.Equal(t, "ea1db124af3c7062474693fa704f4ff8", key)
}

func TestEncodeWBIValue(t *testing.T) {
	require.Equal(t, "-_-%20F%20%E5%93%94~", EncodeWBIValue(")-_-( F**' 哔~!"))
}

func TestBuildWBIQuery(t *testing.T) {
	key := MakeWBIKey("7cd084941338484aae1ad9425b84077c", "4932caff0ff746eab6f01bf08b70ac45")
	query := BuildWBIQuery(key, 1748867128, [][2]string{
		{"foo", ")-_-( F**' 哔~!"},
		{"bar", "2333"},
	})
	require.Contains(t, query, "&w_rid=6ba96e28a3f09b40e704f1e4b4f8e3e3")
}

func TestSignAppParams(t *testing.T) {
	params := url.Values{"a": {"1"}, "b": {"2"}, "ts": {"0"}}
	signed := SignAppParams(params)

	expectedQuery := "a=1&appkey=1d8b6e7d45233436&b=2&ts=0"
	sum := md5.Sum([]byte(expectedQuery + appSec))
	require.Equal(t, hex.EncodeToString(sum[:]), signed.Get("sign"))
}

func TestExtractWBIKey(t *testing.T) {
	require.Equal(t, "7cd084941338484aae1ad9425b84077c", ExtractWBIKey("https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png"))
}
