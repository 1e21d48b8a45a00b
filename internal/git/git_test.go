package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo initialises an empty repository in a temporary directory.
func newTestRepo(t *testing.T) (*Repository, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	t.Setenv("GIT_AUTHOR_NAME", "Test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q", "-b", "master")
	return New(dir, nil), dir
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestHead(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := context.Background()

	head, err := repo.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmptyTree, head)

	writeFile(t, dir, "dummy", "dummy\n")
	gitCmd(t, dir, "add", "dummy")
	gitCmd(t, dir, "commit", "-q", "-m", "dummy")

	head, err = repo.Head(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, EmptyTree, head)
	assert.Len(t, head, 40)
}

func TestWhitespaceErrors(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "whitespace.zone", "trailing \n")
	gitCmd(t, dir, "add", "whitespace.zone")
	head, err := repo.Head(ctx)
	require.NoError(t, err)

	report, err := repo.WhitespaceErrors(ctx, head, "", "*.zone")
	require.NoError(t, err)
	assert.Contains(t, report, "whitespace.zone")

	gitCmd(t, dir, "rm", "-q", "-f", "whitespace.zone")
	report, err = repo.WhitespaceErrors(ctx, head, "", "*.zone")
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestWhitespaceErrorsPathspec(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "README", "trailing \n")
	gitCmd(t, dir, "add", "README")

	report, err := repo.WhitespaceErrors(ctx, EmptyTree, "", "*.zone")
	require.NoError(t, err)
	assert.Empty(t, report, "non-zone files are not checked")
}

func TestFileContents(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "dummy", "dummy\n")
	gitCmd(t, dir, "add", "dummy")

	data, err := repo.FileContents(ctx, "dummy", "")
	require.NoError(t, err)
	assert.Equal(t, "dummy\n", string(data))

	_, err = repo.FileContents(ctx, "nonexistent", "")
	assert.ErrorIs(t, err, ErrNotFound)

	gitCmd(t, dir, "commit", "-q", "-m", "dummy")
	head, err := repo.Head(ctx)
	require.NoError(t, err)
	data, err = repo.FileContents(ctx, "dummy", head)
	require.NoError(t, err)
	assert.Equal(t, "dummy\n", string(data))

	_, err = repo.FileContents(ctx, "dummy", EmptyTree)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlteredFiles(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "dummy", "dummy\n")
	gitCmd(t, dir, "add", "dummy")
	gitCmd(t, dir, "commit", "-q", "-m", "dummy")
	first, err := repo.Head(ctx)
	require.NoError(t, err)

	writeFile(t, dir, "dummy", "dummy2\n")
	writeFile(t, dir, "zones/new.zone", "newfile\n")
	gitCmd(t, dir, "add", "dummy", "zones/new.zone")

	files, err := repo.AlteredFiles(ctx, "HEAD", FilterAdded+FilterModified, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dummy", "zones/new.zone"}, files)

	files, err = repo.AlteredFiles(ctx, "HEAD", FilterAdded, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"zones/new.zone"}, files)

	gitCmd(t, dir, "commit", "-q", "-m", "second")
	second, err := repo.Head(ctx)
	require.NoError(t, err)

	files, err = repo.AlteredFiles(ctx, first, FilterModified, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"dummy"}, files)

	files, err = repo.AlteredFiles(ctx, "HEAD", FilterAdded+FilterModified, "")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NotNil(t, files)
}

func TestConfig(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := context.Background()

	gitCmd(t, dir, "config", "dzonegit.checkoutpath", "/srv/zones")
	gitCmd(t, dir, "config", "dzonegit.noserialupdate", "yes")
	gitCmd(t, dir, "config", "dzonegit.count", "3")

	s, ok, err := repo.ConfigString(ctx, "dzonegit.checkoutpath")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/srv/zones", s)

	b, ok, err := repo.ConfigBool(ctx, "dzonegit.noserialupdate")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, b)

	n, ok, err := repo.ConfigInt(ctx, "dzonegit.count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok, err = repo.ConfigString(ctx, "dzonegit.unset")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckout(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "zones/example.com.zone", "zone\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "zone")

	target := t.TempDir()
	require.NoError(t, repo.Checkout(ctx, target, "refs/heads/master"))

	data, err := os.ReadFile(filepath.Join(target, "zones", "example.com.zone"))
	require.NoError(t, err)
	assert.Equal(t, "zone\n", string(data))

	gitDir, err := repo.GitDir(ctx)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(gitDir))
}

func TestTopLevelAndGitDir(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := context.Background()
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	top, err := repo.TopLevel(ctx)
	require.NoError(t, err)
	top, err = filepath.EvalSymlinks(top)
	require.NoError(t, err)
	assert.Equal(t, want, top)

	gitDir, err := repo.GitDir(ctx)
	require.NoError(t, err)
	gitDir, err = filepath.EvalSymlinks(gitDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(want, ".git"), gitDir)
}
