package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "7:123", Passage{BookID: 7, PageNumber: 123}.Key())
	assert.Equal(t, "2:255", Verse{BookNumber: 2, VerseNumber: 255}.Key())
	assert.Equal(t, "1:6", Narration{CollectionID: 1, NarrationNumber: 6}.Key())
}

func TestDisplayTextPrefersSnippet(t *testing.T) {
	p := Passage{Text: "full page text", Snippet: "<em>hit</em>"}
	assert.Equal(t, "<em>hit</em>", p.DisplayText())

	p.Snippet = ""
	assert.Equal(t, "full page text", p.DisplayText())
}

func TestRender(t *testing.T) {
	v := Verse{BookNumber: 1, VerseNumber: 2, Text: "نص الآية", ChapterName: "الفاتحة"}
	assert.Equal(t, "الفاتحة 2: نص الآية", v.Render())

	v.ChapterName = ""
	assert.Equal(t, "نص الآية", v.Render())

	n := Narration{NarrationNumber: 6, Text: "متن", CollectionTitle: "صحيح"}
	assert.Equal(t, "صحيح #6: متن", n.Render())

	p := Passage{Text: "نص", BookTitle: "الكتاب"}
	assert.Contains(t, p.Render(), "الكتاب")
	assert.Contains(t, p.Render(), "نص")
}
