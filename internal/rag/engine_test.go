package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper_rag/internal/config"
	"paper_rag/internal/content"
	"paper_rag/internal/embedding"
	"paper_rag/internal/job"
	"paper_rag/internal/llm"
	"paper_rag/internal/llm/llmtest"
	"paper_rag/internal/vectorstore"
)

type fixture struct {
	engine *Engine
	store  *vectorstore.Store
	embed  *llmtest.Fake
	gen    *llmtest.Fake
}

func newFixture(t *testing.T, withGenerator bool) *fixture {
	t.Helper()
	store, err := vectorstore.Open(vectorstore.Options{CacheSize: 3})
	require.NoError(t, err)

	f := &fixture{store: store, embed: &llmtest.Fake{}, gen: &llmtest.Fake{}}
	deps := Deps{
		Store:    store,
		Embedder: embedding.New(f.embed, embedding.Config{MaxRetries: 2}),
	}
	if withGenerator {
		deps.Generator = f.gen
	}
	f.engine = New(deps, config.DefaultPrompts(), config.RAGConfig{TopK: 10, IncludeSources: true})
	return f
}

func writeTranslated(t *testing.T, dir, name string) string {
	t.Helper()
	meta := func(ct content.ContentType) *content.TranslationMetadata {
		return &content.TranslationMetadata{Model: "fake", Timestamp: time.Unix(0, 0).UTC(), ContentType: ct}
	}
	items := []content.RawItem{
		{Type: "text", TextLevel: 1, PageIdx: 0, TextZH: "Graph attention networks", Translation: meta(content.TypeTitle)},
		{Type: "text", PageIdx: 0, TextZH: "We study attention over graph nodes. Results improve accuracy.", Translation: meta(content.TypeAbstract)},
		{Type: "image", PageIdx: 1, ImgPath: "images/fig1.png"},
		{Type: "text", PageIdx: 1, TextZH: "Training uses a learning rate schedule.", Translation: meta(content.TypeBody)},
		{Type: "text", PageIdx: 2, TextZH: "[1] Smith 2020\n[2] Doe 2021\n", Translation: meta(content.TypeReference)},
	}
	path := filepath.Join(dir, name+content.TranslatedSuffix)
	require.NoError(t, content.WriteList(path, items))
	return path
}

func collect(t *testing.T, s *llm.Stream) string {
	t.Helper()
	require.NotNil(t, s)
	text, err := s.Collect()
	require.NoError(t, err)
	return text
}

func TestAskEmptyCollectionReturnsCannedAnswer(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.store.GetOrCreateCollection("paper", vectorstore.MetricCosine)
	require.NoError(t, err)

	resp := f.engine.Ask(context.Background(), f.engine.NewRequest("what is attention?", "paper"))

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, NoResultsAnswer, collect(t, resp.Answer))
	assert.Nil(t, resp.Sources)
	assert.Equal(t, 0, f.gen.Calls("Stream"))
}

func TestAskUnknownCollectionReturnsCannedAnswer(t *testing.T) {
	f := newFixture(t, true)

	resp := f.engine.Ask(context.Background(), f.engine.NewRequest("anything", "never-ingested"))

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, NoResultsAnswer, collect(t, resp.Answer))
	assert.Nil(t, resp.Sources)
}

func TestAskEmbeddingFailureSkipsGeneration(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)
	require.NoError(t, err)

	f.embed.EmbedFunc = func(string, llm.Purpose) ([]float32, error) {
		return nil, errors.New("model offline")
	}
	before := f.embed.Calls("Embed")

	resp := f.engine.Ask(context.Background(), f.engine.NewRequest("what is attention?", "paper"))

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Message, "query failed")
	assert.Contains(t, collect(t, resp.Answer), "model offline")
	assert.Equal(t, 2, f.embed.Calls("Embed")-before)
	assert.Equal(t, 0, f.gen.Calls("Stream"))
	assert.Nil(t, resp.Sources)
}

func TestStoreDocumentTwiceInsertsNothingNew(t *testing.T) {
	f := newFixture(t, true)
	path := writeTranslated(t, t.TempDir(), "paper")
	ctx := context.Background()

	first, err := f.engine.StoreDocument(ctx, path, nil)
	require.NoError(t, err)
	assert.Equal(t, "paper", first.Collection)
	assert.Positive(t, first.Inserted)
	assert.Equal(t, first.Chunks, first.Inserted)

	second, err := f.engine.StoreDocument(ctx, path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, first.Chunks, second.Chunks)

	assert.Equal(t, []string{"paper"}, f.store.ListCollections())
	info, err := f.store.CollectionInfo("paper")
	require.NoError(t, err)
	assert.Equal(t, first.Inserted, info.Count)
}

func TestStoreDocumentSkipsFailedEmbeddings(t *testing.T) {
	f := newFixture(t, true)
	f.embed.EmbedFunc = func(text string, _ llm.Purpose) ([]float32, error) {
		if strings.Contains(text, "Smith") {
			return nil, errors.New("too long")
		}
		return llmtest.Vector(text), nil
	}

	var updates []job.Update
	jc := job.New("paper", func(u job.Update) { updates = append(updates, u) })
	report, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), jc)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, report.Embedded, report.Inserted)
	require.NotEmpty(t, updates)
	assert.Equal(t, 100, updates[len(updates)-1].Percent)
}

func TestStoreDocumentFailsWhenEmbeddingUnavailable(t *testing.T) {
	f := newFixture(t, true)
	f.embed.PingErr = llm.ErrUnavailable

	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)

	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.Empty(t, f.store.ListCollections())
}

func TestStoreDocumentMissingFile(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.engine.StoreDocument(context.Background(), filepath.Join(t.TempDir(), "nope_translated.json"), nil)
	assert.Error(t, err)
}

func TestAskStreamsGroundedAnswer(t *testing.T) {
	f := newFixture(t, true)
	var prompt string
	f.gen.StreamFunc = func(p, _ string) (*llm.Stream, error) {
		prompt = p
		return llm.TextStream("attention ", "weights"), nil
	}
	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)
	require.NoError(t, err)

	req := f.engine.NewRequest("graph attention", "paper")
	req.TopK = 2
	resp := f.engine.Ask(context.Background(), req)

	require.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "attention weights", collect(t, resp.Answer))
	require.Len(t, resp.Sources, 2)
	assert.GreaterOrEqual(t, resp.Sources[0].Score, resp.Sources[1].Score)
	assert.Contains(t, prompt, "Question: graph attention")
	assert.Contains(t, prompt, "[fragment 1] (source: paper, page: ")
	assert.Contains(t, prompt, "[fragment 2]")
	assert.NotContains(t, prompt, "[fragment 3]")
	assert.Positive(t, resp.ResponseTime)
}

func TestAskWithoutSources(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)
	require.NoError(t, err)

	req := f.engine.NewRequest("graph attention", "paper")
	req.IncludeSources = false
	resp := f.engine.Ask(context.Background(), req)

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Nil(t, resp.Sources)
	assert.Equal(t, "streamed answer", collect(t, resp.Answer))
}

func TestAskWithoutGenerator(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)
	require.NoError(t, err)

	resp := f.engine.Ask(context.Background(), f.engine.NewRequest("graph attention", "paper"))

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, NoGeneratorAnswer, collect(t, resp.Answer))
	assert.NotEmpty(t, resp.Sources)
	assert.Equal(t, "not configured", f.engine.SystemInfo().Generator)
}

func TestAskRecoversFromPanic(t *testing.T) {
	f := newFixture(t, true)
	f.gen.StreamFunc = func(string, string) (*llm.Stream, error) {
		panic("boom")
	}
	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)
	require.NoError(t, err)

	resp := f.engine.Ask(context.Background(), f.engine.NewRequest("graph attention", "paper"))

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Message, "boom")
	assert.NotNil(t, resp.Answer)
}

func TestAskGenerationError(t *testing.T) {
	f := newFixture(t, true)
	f.gen.StreamFunc = func(string, string) (*llm.Stream, error) {
		return nil, llm.ErrRateLimited
	}
	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)
	require.NoError(t, err)

	resp := f.engine.Ask(context.Background(), f.engine.NewRequest("graph attention", "paper"))
	assert.Equal(t, StatusError, resp.Status)
	assert.Nil(t, resp.Sources)
}

func TestAskEmptyQuestion(t *testing.T) {
	f := newFixture(t, true)
	resp := f.engine.Ask(context.Background(), f.engine.NewRequest("   ", "paper"))
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, 0, f.embed.Calls("Embed"))
}

func TestSearchAndMinSimilarity(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)
	require.NoError(t, err)

	results, err := f.engine.Search(context.Background(), f.engine.NewRequest("graph attention", "paper"))
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	f.engine.cfg.MinSimilarity = 1.5
	results, err = f.engine.Search(context.Background(), f.engine.NewRequest("graph attention", "paper"))
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]vectorstore.SearchResult{
		{DocumentName: "paper", PageNum: 3, Score: 0.91234, Content: "alpha"},
		{DocumentName: "paper", PageNum: 4, Score: 0.5, Content: "beta"},
	})
	assert.Equal(t,
		"[fragment 1] (source: paper, page: 3, similarity: 0.912) alpha\n"+
			"[fragment 2] (source: paper, page: 4, similarity: 0.500) beta",
		got)
}

func TestSystemInfo(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.engine.StoreDocument(context.Background(), writeTranslated(t, t.TempDir(), "paper"), nil)
	require.NoError(t, err)

	info := f.engine.SystemInfo()
	assert.Equal(t, "fake/fake-model", info.Generator)
	assert.Equal(t, "fake/fake-model", info.Embedding)
	assert.Equal(t, []string{"paper"}, info.Collections)
	assert.Equal(t, 3, info.CacheCapacity)
	assert.Equal(t, 1, info.CachedHandles)
}
