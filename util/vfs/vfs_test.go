package vfs

import (
	"io"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFileSystem(t *testing.T, fs FileSystem) {
	err := WriteFile(fs, "a.dat", func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	})
	require.NoError(t, err)

	file, err := fs.OpenFile("a.dat")
	require.NoError(t, err)
	data, err := ioutil.ReadAll(file)
	require.NoError(t, err)
	file.Close()
	assert.Equal(t, []byte("hello"), data)

	mapped, err := fs.MapFile("a.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), mapped.Data)
	require.NoError(t, mapped.Close())

	names, err := fs.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.dat"}, names)

	require.NoError(t, fs.Remove("a.dat"))
	_, err = fs.OpenFile("a.dat")
	assert.Error(t, err)
}

func TestMemDir(t *testing.T) {
	testFileSystem(t, CreateMemDir())
}

func TestFsDir(t *testing.T) {
	fs, err := CreateTempDir()
	require.NoError(t, err)
	defer fs.Close()
	testFileSystem(t, fs)
}

func TestAtomicFile_NotVisibleBeforeCommit(t *testing.T) {
	fs, err := CreateTempDir()
	require.NoError(t, err)
	defer fs.Close()

	file, err := fs.CreateAtomicFile("b.dat")
	require.NoError(t, err)
	_, err = file.Write([]byte("partial"))
	require.NoError(t, err)
	file.Close()

	_, err = fs.OpenFile("b.dat")
	assert.Error(t, err, "uncommitted file must not be visible")
}
