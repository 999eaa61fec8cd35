package languages_test

import (
	"strings"
	"testing"

	"github.com/itstheanurag/judge/internal/languages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIsCaseInsensitive(t *testing.T) {
	r := languages.NewRegistry()

	lang, err := r.Get("go")
	require.NoError(t, err)
	assert.Equal(t, "GO", lang.ID)
	assert.Equal(t, "go", lang.Folder)
	assert.Equal(t, ".go", lang.Extension)
}

func TestGetUnknownLanguage(t *testing.T) {
	r := languages.NewRegistry()

	_, err := r.Get("COBOL")
	require.ErrorIs(t, err, languages.ErrLanguageNotFound)
}

func TestDefaultsAreComplete(t *testing.T) {
	r := languages.NewRegistry()

	langs := r.List()
	require.NotEmpty(t, langs)
	for i, lang := range langs {
		if i > 0 {
			assert.Less(t, langs[i-1].ID, lang.ID, "list must be sorted")
		}
		assert.NotEmpty(t, lang.Folder, lang.ID)
		assert.True(t, strings.HasPrefix(lang.Extension, "."), lang.ID)
		assert.True(t, lang.HasExtension(lang.DefaultSourceFile), lang.ID)
		assert.Contains(t, lang.Dockerfile, "{{.SourceFile}}", lang.ID)
		assert.Contains(t, lang.Dockerfile, "entrypoint-$TEST_CASE_ID.sh", lang.ID)
		require.NotNil(t, lang.Command, lang.ID)
	}
}

func TestParamsWithAndWithoutInput(t *testing.T) {
	r := languages.NewRegistry()
	goLang, err := r.Get("GO")
	require.NoError(t, err)

	p := goLang.Params("main.go", 2, 256, "")
	assert.Equal(t, "./exec", p.ExecutionCommand)
	assert.Equal(t, 2, p.TimeLimit)
	assert.Equal(t, 256, p.MemoryLimit)
	assert.Equal(t, 256*1024, p.MemoryLimitKb)
	assert.True(t, p.LimitAddressSpace)

	p = goLang.Params("main.go", 2, 256, "test1-input.txt")
	assert.Equal(t, "./exec < test1-input.txt", p.ExecutionCommand)
}

func TestManagedRuntimesSizeTheirHeap(t *testing.T) {
	r := languages.NewRegistry()
	java, err := r.Get("JAVA")
	require.NoError(t, err)

	p := java.Params("Solution.java", 1, 512, "in.txt")
	assert.Equal(t, "java -Xmx512m -cp . Solution < in.txt", p.ExecutionCommand)
	assert.False(t, p.LimitAddressSpace)
}

func TestRegisterOverrides(t *testing.T) {
	r := languages.NewRegistry()
	r.Register(languages.Language{ID: "c", Name: "Custom C", Folder: "c", Extension: ".c"})

	lang, err := r.Get("C")
	require.NoError(t, err)
	assert.Equal(t, "Custom C", lang.Name)
}
