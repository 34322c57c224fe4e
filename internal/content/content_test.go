package content

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentType(t *testing.T) {
	ct, err := ParseContentType(" Body ")
	require.NoError(t, err)
	assert.Equal(t, TypeBody, ct)

	_, err = ParseContentType("table")
	assert.ErrorIs(t, err, ErrUnknownContentType)
}

func TestClassifier(t *testing.T) {
	c := &Classifier{}

	steps := []struct {
		item RawItem
		want ContentType
	}{
		{RawItem{Type: "text", Text: "Deep Paper", TextLevel: 1}, TypeTitle},
		{RawItem{Type: "text", Text: "Abstract: we study things."}, TypeAbstract},
		{RawItem{Type: "text", Text: "Cites [3] before references."}, TypeReference},
		{RawItem{Type: "image", ImgPath: "images/a.jpg"}, TypeImage},
		{RawItem{Type: "text", Text: "[4] Doe, J. 2021."}, TypeReference},
		{RawItem{Type: "text", Text: "Plain sentence."}, TypeBody},
	}

	for _, s := range steps {
		assert.Equal(t, s.want, c.Classify(s.item), s.item.Text)
	}

	c.Reset()
	assert.Equal(t, TypeBody, c.Classify(RawItem{Type: "text", Text: "[4] Doe, J. 2021."}))
}

func TestClassifierBeforeReferences(t *testing.T) {
	c := &Classifier{}
	assert.Equal(t, TypeBody, c.Classify(RawItem{Type: "text", Text: "As shown in [2], results hold."}))
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "paper", DocumentName("/x/paper_translated.json"))
	assert.Equal(t, "paper", DocumentName("/x/paper_content_list.json"))
	assert.Equal(t, "paper", DocumentName("paper.pdf"))
}

func TestLoadTranslated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper_translated.json")
	meta := func(ct ContentType) *TranslationMetadata {
		return &TranslationMetadata{Model: "m", Timestamp: time.Unix(0, 0).UTC(), ContentType: ct}
	}
	raw := []RawItem{
		{Type: "text", TextEN: "Title", TextZH: "標題", PageIdx: 0, Translation: meta(TypeTitle)},
		{Type: "text", Text: "untranslated", PageIdx: 0},
		{Type: "image", ImgPath: "images/fig.jpg", PageIdx: 1},
		{Type: "text", TextEN: "Body.", TextZH: "正文。", PageIdx: 2, Translation: meta(TypeBody)},
	}
	require.NoError(t, WriteList(path, raw))

	items, err := LoadTranslated(path)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, ContentItem{Text: "標題", DocumentName: "paper", PageIndex: 0, ContentType: TypeTitle, SequenceIndex: 0}, items[0])
	assert.Equal(t, TypeImage, items[1].ContentType)
	assert.Equal(t, "images/fig.jpg", items[1].ImagePath)
	assert.Equal(t, 2, items[1].SequenceIndex)
	assert.Equal(t, "正文。", items[2].Text)
	assert.Equal(t, 3, items[2].SequenceIndex)
}

func TestLoadTranslatedEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty_translated.json")
	require.NoError(t, WriteList(path, []RawItem{{Type: "text", Text: "x"}}))

	_, err := LoadTranslated(path)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = LoadTranslated(filepath.Join(t.TempDir(), "missing_translated.json"))
	assert.Error(t, err)
}

func TestLoadTranslatedRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper_translated.json")
	raw := []RawItem{
		{Type: "text", TextZH: "好", Translation: &TranslationMetadata{Model: "m", ContentType: TypeBody}},
		{Type: "text", TextZH: "表", Translation: &TranslationMetadata{Model: "m", ContentType: "table"}},
	}
	require.NoError(t, WriteList(path, raw))

	_, err := LoadTranslated(path)
	assert.ErrorIs(t, err, ErrUnknownContentType)
}
