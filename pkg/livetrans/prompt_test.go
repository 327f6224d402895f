package livetrans

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptResolverDefault(t *testing.T) {
	r := &PromptResolver{}

	prompt := r.Resolve()
	assert.Equal(t, PromptSourceDefault, prompt.Source)
	assert.Equal(t, DefaultPromptTemplate, prompt.Instructions)
	assert.Equal(t, PromptFingerprint(DefaultPromptTemplate), prompt.Fingerprint)
}

func TestPromptResolverConfigTemplate(t *testing.T) {
	r := &PromptResolver{ConfigTemplate: "Translate into {{targetLanguage}}, keep it short."}

	prompt := r.Resolve()
	assert.Equal(t, PromptSourceConfiguration, prompt.Source)
	assert.Contains(t, prompt.Instructions, "keep it short")
}

func TestPromptResolverWorkspaceOverrideWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, WorkspacePromptFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("Workspace override instructions.\n"), 0o644))

	r := &PromptResolver{
		WorkspaceDir:   dir,
		ConfigTemplate: "config template loses",
	}

	prompt := r.Resolve()
	assert.Equal(t, PromptSourceWorkspace, prompt.Source)
	assert.Equal(t, "Workspace override instructions.", prompt.Instructions)
	assert.Equal(t, path, prompt.Path)
}

func TestPromptResolverEmptyWorkspaceFileFallsThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, WorkspacePromptFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))

	r := &PromptResolver{WorkspaceDir: dir, ConfigTemplate: "config template"}

	// 空白的覆盖文件不生效
	prompt := r.Resolve()
	assert.Equal(t, PromptSourceConfiguration, prompt.Source)
}

func TestPromptFingerprintTracksInstructions(t *testing.T) {
	a := PromptFingerprint("instructions A")
	b := PromptFingerprint("instructions B")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, PromptFingerprint("instructions A"))
}

func TestRenderPrompt(t *testing.T) {
	out := RenderPrompt("Translate into {{targetLanguage}}; file: {{fileName}}.", "ja", "guide.md")
	assert.Equal(t, "Translate into ja; file: guide.md.", out)
}

func TestRenderPromptDefaultFileName(t *testing.T) {
	out := RenderPrompt("file: {{fileName}}", "ja", "")
	assert.Equal(t, "file: untitled.md", out)
}
