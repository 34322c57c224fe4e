package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Prompts holds the LLM prompt templates. Placeholders are written as
// {name} and filled by Render.
type Prompts struct {
	RAGAnswer       string `toml:"rag_answer"`
	TranslateSystem string `toml:"translate_system"`
	TranslateItem   string `toml:"translate_item"`
}

func DefaultPrompts() Prompts {
	return Prompts{
		RAGAnswer: `Answer the question using only the document fragments below. Be accurate and detailed, and cite fragment numbers such as [fragment 2] where you use them.

Question: {question}

Document fragments:
{context}

If the fragments do not contain enough information to answer fully, say so explicitly instead of guessing.

Answer:`,

		TranslateSystem: `You are a professional translator of academic papers into {target_language}.

Content types:
- title: concise and precise, keep the research focus
- abstract: keep the logical structure and academic rigor
- body: clear logic, accurate terminology, natural phrasing
- reference: keep the citation format, translate only the paper title

Rules:
1. Keep terminology consistent with the term list you are given.
2. On first use of a term write the translation followed by the original in parentheses.
3. Leave formulas, variable names, symbols and well known abbreviations untouched.

Output only the translation, with no explanations.`,

		TranslateItem: `Content type: {content_type}; Text: {text}; Known terms: {terms}; Translation:`,
	}
}

// LoadPrompts returns the default prompts overlaid with the values found in
// the TOML file at path. An empty path yields the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}
	if err := toml.Unmarshal(data, &prompts); err != nil {
		return prompts, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	return prompts, nil
}

// Render substitutes {key} placeholders in tmpl.
func Render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
