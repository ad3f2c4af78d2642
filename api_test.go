package phpext

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carved4/phpext-inspect/pkg/errors"
)

func TestInspect_KeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.dll")
	b := filepath.Join(dir, "b.dll")
	require.NoError(t, os.WriteFile(b, []byte("not a dll"), 0o644))

	results, err := Inspect(ModeStatic, a, b, a)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []string{a, b, a} {
		assert.Equal(t, want, results[i].Path)
		assert.True(t, errors.IsCode(results[i].Err, errors.ErrOpen))
		assert.Equal(t, "Unable to open the DLL.", Line(results[i], false))
	}
}

func TestInspectFile_NativeOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("native backend is available")
	}
	_, err := InspectFile(ModeNative, "php_intl.dll")
	assert.Error(t, err)
}

func TestPHPLabel(t *testing.T) {
	assert.Equal(t, "7.4", PHPLabel(20190529))
	assert.Equal(t, "", PHPLabel(20200930))
}
