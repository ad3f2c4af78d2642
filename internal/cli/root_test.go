package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carved4/phpext-inspect/internal/testutil"
	"github.com/carved4/phpext-inspect/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd("phpext-inspect", &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRoot_NoPaths(t *testing.T) {
	out, _, err := execute(t)
	assert.True(t, errors.IsCode(err, errors.ErrUsage))
	assert.Equal(t, "Syntax: phpext-inspect <path-to-extension-1> ... <path-to-extension-N>\n", out)
}

func TestRoot_FailureLinesInInputOrder(t *testing.T) {
	dir := t.TempDir()
	notPE := filepath.Join(dir, "readme.dll")
	require.NoError(t, os.WriteFile(notPE, []byte("plain text"), 0o644))
	missing := filepath.Join(dir, "missing.dll")

	out, _, err := execute(t, "--mode", "static", missing, notPE, missing)
	require.NoError(t, err)
	assert.Equal(t,
		"Unable to open the DLL.\nUnable to open the DLL.\nUnable to open the DLL.\n",
		out)
}

func TestRoot_YAML(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.dll")

	out, _, err := execute(t, "--mode", "static", "--format", "yaml", missing)
	require.NoError(t, err)
	assert.Contains(t, out, "filename: "+missing)
	assert.Contains(t, out, "error: Unable to open the DLL.")
}

func TestRoot_DebugLogsGoToStderr(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.dll")

	out, logs, err := execute(t, "--mode", "static", "--log-level", "debug", missing)
	require.NoError(t, err)
	assert.Equal(t, "Unable to open the DLL.\n", out)
	assert.Contains(t, logs, "inspecting")
	assert.Contains(t, logs, `"component":"inspect"`)
}

func TestRoot_BadFlags(t *testing.T) {
	_, _, err := execute(t, "--mode", "emulated", "x.dll")
	assert.Error(t, err)

	_, _, err = execute(t, "--format", "json", "x.dll")
	assert.Error(t, err)
}

func TestRoot_DashPathAfterTerminator(t *testing.T) {
	dir := t.TempDir()
	odd := filepath.Join(dir, "-odd.dll")
	require.NoError(t, os.WriteFile(odd, []byte("plain text"), 0o644))

	t.Chdir(dir)

	out, _, err := execute(t, "--mode", "static", "--", "-odd.dll")
	require.NoError(t, err)
	assert.Equal(t, "Unable to open the DLL.\n", out)
}

func TestRoot_StaticOpcache(t *testing.T) {
	path := testutil.Extension{
		Machine: testutil.MachineAMD64,
		APINo:   20190529,
		ZTS:     1,
		Name:    "opcache",
		Version: "7.4.0",
	}.Image().WriteFile(t, "php_opcache.dll")

	out, _, err := execute(t, "--mode", "static", path)
	require.NoError(t, err)
	assert.Equal(t,
		"api:20190529\tarchitecture:x64\tthreadSafe:1\ttype:Php\tname:opcache\tversion:7.4.0\tfilename:"+path+"\n",
		out)
}

func TestRoot_StaticPhpAndZend(t *testing.T) {
	path := testutil.Extension{
		Machine:  testutil.MachineI386,
		APINo:    20131226,
		Name:     "Zend OPcache",
		Zend:     &testutil.ZendEntry{Name: "opcache-zend", Version: "7.0.1", Author: "Zend Technologies"},
		Marker:   true,
		Decorate: true,
	}.Image().WriteFile(t, "php_opcache.dll")

	out, _, err := execute(t, "--mode", "static", path)
	require.NoError(t, err)
	assert.Equal(t,
		"api:20131226\tarchitecture:x86\tthreadSafe:0\ttype:Php,Zend\tname:Zend OPcache\tversion:7.0.1\tfilename:"+path+"\n",
		out)

	out, _, err = execute(t, "--mode", "static", "--format", "yaml", path)
	require.NoError(t, err)
	assert.Contains(t, out, "author: Zend Technologies")
}

func TestRoot_StaticOldLayoutWithLabel(t *testing.T) {
	path := testutil.Extension{
		Machine: testutil.MachineI386,
		APINo:   20020429,
		ZTS:     1,
		Name:    "mbstring",
		Version: "4.3.11",
	}.Image().WriteFile(t, "php_mbstring.dll")

	out, _, err := execute(t, "--mode", "static", "--php-label", path)
	require.NoError(t, err)
	assert.Equal(t,
		"php:4.3\tarchitecture:x86\tthreadSafe:1\ttype:Php\tname:mbstring\tversion:4.3.11\tfilename:"+path+"\n",
		out)
}

func TestRoot_CorruptFileDoesNotStopTheRun(t *testing.T) {
	broken := testutil.CorruptExports(testutil.MachineAMD64).WriteFile(t, "broken.dll")
	good := testutil.Extension{
		Machine: testutil.MachineAMD64,
		APINo:   20190529,
		Name:    "intl",
		Version: "7.4.0",
	}.Image().WriteFile(t, "php_intl.dll")

	out, _, err := execute(t, "--mode", "static", broken, good)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Unrecognized DLL.", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "api:20190529\tarchitecture:x64\tthreadSafe:0\ttype:Php\tname:intl"))
}
