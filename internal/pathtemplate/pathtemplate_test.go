package pathtemplate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveSubstitutesPlaceholders(t *testing.T) {
	dir := t.TempDir()
	fields := Fields{
		RoomID:    123,
		UserName:  "some/one",
		Title:     "hello",
		StartTime: time.Date(2026, 7, 30, 9, 5, 3, 0, time.UTC),
	}

	path, err := Resolve(dir, "{roomid}/{year}-{month}-{day}_{hour}-{minute}-{second}_{title}_{uname}", fields)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "123", "2026-07-30_09-05-03_hello_some_one.flv"), path)
}
