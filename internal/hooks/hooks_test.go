package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskar456/dzonegit/internal/compiler"
	"github.com/oskar456/dzonegit/internal/config"
	"github.com/oskar456/dzonegit/internal/git"
	"github.com/oskar456/dzonegit/internal/hookerr"
)

const (
	head   = "1111111111111111111111111111111111111111"
	pushed = "2222222222222222222222222222222222222222"
	index  = ""
)

// fakeRepo keeps every revision, and the index under "", in memory.
type fakeRepo struct {
	revs       map[string]map[string]string
	whitespace string
	pathspecs  []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{revs: map[string]map[string]string{
		git.EmptyTree: {},
		head:          {},
		pushed:        {},
		index:         {},
	}}
}

func (r *fakeRepo) AlteredFiles(_ context.Context, against, filter, revision string) ([]string, error) {
	a, b := r.revs[against], r.revs[revision]
	var out []string
	for p, data := range b {
		old, existed := a[p]
		switch {
		case !existed && strings.Contains(filter, git.FilterAdded):
			out = append(out, p)
		case existed && old != data && strings.Contains(filter, git.FilterModified):
			out = append(out, p)
		}
	}
	for p := range a {
		if _, ok := b[p]; !ok && strings.Contains(filter, git.FilterDeleted) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeRepo) FileContents(_ context.Context, path, revision string) ([]byte, error) {
	data, ok := r.revs[revision][path]
	if !ok {
		return nil, fmt.Errorf("%s:%s: %w", revision, path, git.ErrNotFound)
	}
	return []byte(data), nil
}

func (r *fakeRepo) WhitespaceErrors(_ context.Context, _, _ string, pathspecs ...string) (string, error) {
	r.pathspecs = pathspecs
	return r.whitespace, nil
}

func zoneText(serial, address string) string {
	return fmt.Sprintf(`$TTL 60
@	IN	SOA	ns1.example.com. hostmaster.example.com. %s 60 60 60 60
@	IN	NS	ns1
ns1	IN	A	%s
`, serial, address)
}

var testNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.Local)

func newValidator(t *testing.T, repo *fakeRepo) *Validator {
	t.Helper()
	cfg := &config.Config{}
	require.NoError(t, cfg.Validate())
	return &Validator{
		Repo:     repo,
		Compiler: compiler.Builtin{},
		Config:   cfg,
		WorkDir:  t.TempDir(),
		Now:      func() time.Time { return testNow },
	}
}

func requireHookErr(t *testing.T, err error, message string) *hookerr.Error {
	t.Helper()
	require.Error(t, err)
	he, ok := hookerr.As(err)
	require.True(t, ok, "expected hook failure, got %v", err)
	assert.Equal(t, message, he.Message)
	return he
}

func TestUpdateSerial(t *testing.T) {
	tests := []struct {
		name    string
		old     string
		new     string
		wantErr bool
	}{
		{"unchanged zone", zoneText("1", "192.0.2.1"), zoneText("1", "192.0.2.1"), false},
		{"changed without serial bump", zoneText("1", "192.0.2.1"), zoneText("1", "192.0.2.2"), true},
		{"changed with serial bump", zoneText("1", "192.0.2.1"), zoneText("2", "192.0.2.2"), false},
		{"serial decreased", zoneText("5", "192.0.2.1"), zoneText("4", "192.0.2.2"), true},
		{"comment only", zoneText("1", "192.0.2.1"), zoneText("1", "192.0.2.1") + "; just a note\n", false},
		{"serial wraps around", zoneText("4294967295", "192.0.2.1"), zoneText("1", "192.0.2.2"), false},
		{"unixtime serial", zoneText("$UNIXTIME", "192.0.2.1"), zoneText("$UNIXTIME", "192.0.2.2"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.revs[head]["example.com.zone"] = tt.old
			repo.revs[pushed]["example.com.zone"] = tt.new
			v := newValidator(t, repo)

			err := v.Update(context.Background(), config.DefaultBranch, head, pushed)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			he := requireHookErr(t, err, MsgSerialNotIncreased)
			assert.Equal(t, hookerr.KindValidation, he.Kind)
			assert.Equal(t, "example.com.zone", he.File)
			assert.Contains(t, he.Detail, "Old revision "+head)
		})
	}
}

func TestUpdateSerialDetail(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[head]["example.com.zone"] = zoneText("1", "192.0.2.1")
	repo.revs[pushed]["example.com.zone"] = zoneText("1", "192.0.2.2")
	v := newValidator(t, repo)

	err := v.Update(context.Background(), config.DefaultBranch, head, pushed)
	he := requireHookErr(t, err, MsgSerialNotIncreased)
	assert.Equal(t, "Old revision "+head+", serial 1, new serial 1", he.Detail)
}

func TestNewZoneSkipsSerialCheck(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[pushed]["example.com.zone"] = zoneText("1", "192.0.2.1")
	v := newValidator(t, repo)

	require.NoError(t, v.Update(context.Background(), config.DefaultBranch, git.ZeroRevision, pushed))
}

func TestNewZoneDoesNotCompile(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[pushed]["example.com.zone"] = "$TTL 60\n@ IN A 192.0.2.1\n"
	v := newValidator(t, repo)

	err := v.Update(context.Background(), config.DefaultBranch, head, pushed)
	he := requireHookErr(t, err, MsgDoesNotCompile)
	assert.Equal(t, "example.com.zone", he.File)
	assert.Contains(t, he.Detail, "not loaded due to errors")
}

func TestNonZoneFilesIgnored(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[pushed]["README.md"] = "this is not a zone"
	v := newValidator(t, repo)

	require.NoError(t, v.Update(context.Background(), config.DefaultBranch, head, pushed))
}

func TestZoneNameMismatch(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[pushed]["zones/example.com.zone"] = "$ORIGIN example.org.\n" + zoneText("1", "192.0.2.1")
	v := newValidator(t, repo)

	err := v.Update(context.Background(), config.DefaultBranch, head, pushed)
	he := requireHookErr(t, err, "Zone origin example.org differs from zone file name example.com.")
	assert.Equal(t, "zones/example.com.zone", he.File)

	v.Config.Validation.AllowFancyNames = true
	require.NoError(t, v.Update(context.Background(), config.DefaultBranch, head, pushed))
}

func TestMissingDotCheck(t *testing.T) {
	reverse := `$TTL 60
@	IN	SOA	ns1.example.com. hostmaster.example.com. 1 60 60 60 60
@	IN	NS	ns1.example.com.
1	IN	PTR	host.example.com
`
	repo := newFakeRepo()
	repo.revs[pushed]["2.0.192.in-addr.arpa.zone"] = reverse
	v := newValidator(t, repo)

	err := v.Update(context.Background(), config.DefaultBranch, head, pushed)
	he := requireHookErr(t, err, "Missing dot after hostname in PTR records")
	assert.Equal(t, "2.0.192.in-addr.arpa.zone", he.File)
	assert.Contains(t, he.Detail, "host.example.com.2.0.192.in-addr.arpa.")

	v.Config.Validation.NoMissingDotCheck = true
	require.NoError(t, v.Update(context.Background(), config.DefaultBranch, head, pushed))
}

func TestWhitespaceErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.whitespace = "example.com.zone:3: trailing whitespace.\n+@ IN NS ns1 \n"
	v := newValidator(t, repo)

	err := v.Update(context.Background(), config.DefaultBranch, head, pushed)
	he := requireHookErr(t, err, MsgWhitespaceErrors)
	assert.Contains(t, he.Detail, "trailing whitespace")
	assert.Equal(t, []string{"*.zone"}, repo.pathspecs)

	v.Config.Validation.IgnoreWhitespaceErrors = true
	require.NoError(t, v.Update(context.Background(), config.DefaultBranch, head, pushed))
}

func TestUpdateWrongBranch(t *testing.T) {
	v := newValidator(t, newFakeRepo())

	err := v.Update(context.Background(), "refs/heads/topic", head, pushed)
	he := requireHookErr(t, err, "Nothing else except refs/heads/master branch is accepted here")
	assert.Equal(t, hookerr.KindConfiguration, he.Kind)

	err = v.Update(context.Background(), config.DefaultBranch, head, git.ZeroRevision)
	he, ok := hookerr.As(err)
	require.True(t, ok)
	assert.Equal(t, hookerr.KindConfiguration, he.Kind)
}

func TestPreReceive(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[head]["example.com.zone"] = zoneText("1", "192.0.2.1")
	repo.revs[pushed]["example.com.zone"] = zoneText("1", "192.0.2.2")
	v := newValidator(t, repo)

	stdin := head + " " + pushed + " " + config.DefaultBranch + "\n"
	err := v.PreReceive(context.Background(), strings.NewReader(stdin))
	requireHookErr(t, err, MsgSerialNotIncreased)

	repo.revs[pushed]["example.com.zone"] = zoneText("2", "192.0.2.2")
	require.NoError(t, v.PreReceive(context.Background(), strings.NewReader(stdin)))

	err = v.PreReceive(context.Background(), strings.NewReader("garbage\n"))
	he, ok := hookerr.As(err)
	require.True(t, ok)
	assert.Equal(t, hookerr.KindConfiguration, he.Kind)
}

// stage writes data to the work tree and the index, like "git add".
func stage(t *testing.T, v *Validator, repo *fakeRepo, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(v.WorkDir, path), []byte(data), 0o644))
	repo.revs[index][path] = data
}

func TestPreCommitAutoRepair(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[head]["example.com.zone"] = zoneText("1", "192.0.2.1")
	v := newValidator(t, repo)
	stage(t, v, repo, "example.com.zone", zoneText("1", "192.0.2.2"))

	err := v.PreCommit(context.Background(), head)
	he := requireHookErr(t, err, MsgSerialNotIncreased)
	assert.Contains(t, he.Detail, "Serial has been corrected to 2, please recommit.")

	repaired, err := os.ReadFile(filepath.Join(v.WorkDir, "example.com.zone"))
	require.NoError(t, err)
	assert.Equal(t, zoneText("2", "192.0.2.2"), string(repaired))

	// Staging the repaired file makes the commit pass.
	repo.revs[index]["example.com.zone"] = string(repaired)
	require.NoError(t, v.PreCommit(context.Background(), head))
}

func TestPreCommitAutoRepairParenthesisedSOA(t *testing.T) {
	soa := func(serial, address string) string {
		return "$TTL 60\n@ 60 IN SOA ns1.example.com. hostmaster.example.com. (" + serial +
			" 60 60 60 60)\n@ IN NS ns1\nns1 IN A " + address + "\n"
	}
	repo := newFakeRepo()
	repo.revs[head]["example.com.zone"] = soa("60", "192.0.2.1")
	v := newValidator(t, repo)
	stage(t, v, repo, "example.com.zone", soa("60", "192.0.2.2"))

	err := v.PreCommit(context.Background(), head)
	he := requireHookErr(t, err, MsgSerialNotIncreased)
	assert.Contains(t, he.Detail, "Serial has been corrected to 61, please recommit.")

	repaired, err := os.ReadFile(filepath.Join(v.WorkDir, "example.com.zone"))
	require.NoError(t, err)
	assert.Equal(t, soa("61", "192.0.2.2"), string(repaired))

	repo.revs[index]["example.com.zone"] = string(repaired)
	require.NoError(t, v.PreCommit(context.Background(), head))
}

func TestPreCommitAutoRepairDisabled(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[head]["example.com.zone"] = zoneText("1", "192.0.2.1")
	v := newValidator(t, repo)
	v.Config.Validation.NoSerialUpdate = true
	stage(t, v, repo, "example.com.zone", zoneText("1", "192.0.2.2"))

	err := v.PreCommit(context.Background(), head)
	he := requireHookErr(t, err, MsgSerialNotIncreased)
	assert.NotContains(t, he.Detail, "corrected")

	data, err := os.ReadFile(filepath.Join(v.WorkDir, "example.com.zone"))
	require.NoError(t, err)
	assert.Equal(t, zoneText("1", "192.0.2.2"), string(data))
}

func TestPreCommitAutoRepairFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[head]["example.com.zone"] = zoneText("1", "192.0.2.1")
	repo.revs[index]["example.com.zone"] = zoneText("1", "192.0.2.2")
	v := newValidator(t, repo)

	err := v.PreCommit(context.Background(), head)
	he := requireHookErr(t, err, MsgSerialNotIncreased)
	assert.Contains(t, he.Detail, "Automatic serial repair failed")
}

func TestPreCommitFirstCommit(t *testing.T) {
	repo := newFakeRepo()
	v := newValidator(t, repo)
	stage(t, v, repo, "example.com.zone", zoneText("1", "192.0.2.1"))

	require.NoError(t, v.PreCommit(context.Background(), git.EmptyTree))
}

func TestFailFast(t *testing.T) {
	repo := newFakeRepo()
	repo.revs[pushed]["a.example.zone"] = "broken\n"
	repo.revs[pushed]["b.example.zone"] = "also broken\n"
	v := newValidator(t, repo)

	err := v.Update(context.Background(), config.DefaultBranch, head, pushed)
	he := requireHookErr(t, err, MsgDoesNotCompile)
	assert.Equal(t, "a.example.zone", he.File)
}
