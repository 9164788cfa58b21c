package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)
	return sb
}

func TestNewSandbox(t *testing.T) {
	tmpDir := t.TempDir()
	sandboxDir := filepath.Join(tmpDir, "audios")

	sb, err := NewSandbox(sandboxDir)
	require.NoError(t, err)
	require.NotNil(t, sb)

	info, err := os.Stat(sandboxDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(sb.BaseDir()))
}

func TestSandbox_ResolvePath(t *testing.T) {
	sb := setupTestSandbox(t)

	tests := []struct {
		name        string
		path        string
		shouldError bool
	}{
		{"simple file", "task_audio.wav", false},
		{"nested path", "frames/task_0001.jpg", false},
		{"current dir", ".", false},
		{"parent escape attempt", "../escape.wav", true},
		{"nested parent escape", "frames/../../escape.wav", true},
		{"absolute path escape", "/etc/passwd", true},
		{"hidden file", ".upload", false},
		{"dot dot name", "..task.wav", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := sb.ResolvePath(tt.path)
			if tt.shouldError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "escapes sandbox")
			} else {
				assert.NoError(t, err)
				assert.True(t, strings.HasPrefix(resolved, sb.BaseDir()))
			}
		})
	}
}

func TestSandbox_Rel(t *testing.T) {
	sb := setupTestSandbox(t)

	inside, err := sb.ResolvePath("out/task.txt")
	require.NoError(t, err)

	rel, err := sb.Rel(inside)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "task.txt"), rel)

	// Round trip lands back on the same absolute path.
	back, err := sb.ResolvePath(rel)
	require.NoError(t, err)
	assert.Equal(t, inside, back)

	_, err = sb.Rel("/etc/passwd")
	assert.Error(t, err)

	_, err = sb.Rel("relative/path.txt")
	assert.Error(t, err)

	// A sibling directory sharing the base prefix is still outside.
	_, err = sb.Rel(sb.BaseDir() + "-evil/file.txt")
	assert.Error(t, err)
}

func TestSandbox_AtomicWrite(t *testing.T) {
	sb := setupTestSandbox(t)
	content := []byte("[00:00.000 -> 00:03.240] ola\n")

	err := sb.AtomicWrite("task_transcricao.txt", content)
	require.NoError(t, err)

	data, err := sb.ReadFile("task_transcricao.txt")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// No temp siblings left behind.
	entries, err := sb.List(".")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSandbox_OpenFileExclusive(t *testing.T) {
	sb := setupTestSandbox(t)

	f, err := sb.OpenFile("upload.wav.upload", os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0640)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = sb.OpenFile("upload.wav.upload", os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0640)
	assert.Error(t, err)
}

func TestSandbox_Rename(t *testing.T) {
	sb := setupTestSandbox(t)
	require.NoError(t, sb.AtomicWrite("a.wav.upload", []byte("pcm")))

	require.NoError(t, sb.Rename("a.wav.upload", "a.wav"))

	_, err := sb.Stat("a.wav")
	require.NoError(t, err)
	_, err = sb.Stat("a.wav.upload")
	assert.Error(t, err)
}

func TestSandbox_RemoveAll(t *testing.T) {
	sb := setupTestSandbox(t)
	require.NoError(t, sb.MkdirAll("task_frames"))
	require.NoError(t, sb.AtomicWrite("task_frames/f1.jpg", []byte("jpg")))

	require.NoError(t, sb.RemoveAll("task_frames"))
	_, err := sb.Stat("task_frames")
	assert.Error(t, err)

	// The base directory itself is protected.
	err = sb.RemoveAll(".")
	assert.Error(t, err)
}

func TestSandbox_List(t *testing.T) {
	sb := setupTestSandbox(t)
	require.NoError(t, sb.AtomicWrite("one.wav", []byte("a")))
	require.NoError(t, sb.AtomicWrite("two.wav.upload", []byte("b")))

	entries, err := sb.List(".")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	names := []string{entries[0].Name(), entries[1].Name()}
	assert.Contains(t, names, "one.wav")
	assert.Contains(t, names, "two.wav.upload")
}
