package understanding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/nithin8919/policyretrieval/internal/rerrors"
)

const (
	DefaultRewriteTimeout   = 5 * time.Second
	DefaultRewriteCacheSize = 512
	DefaultRewriteModel     = "gpt-4o-mini"
)

var rewritePromptTemplate = `Generate %d alternate phrasings of the following policy question, preserving its meaning and any section, order, or case numbers exactly as written. Respond with one phrasing per line, no numbering or preamble.

Query: %s`

var numberingPrefix = regexp.MustCompile(`^\s*(\d+[.):-]|[-*•])\s*`)

// Rewriter produces alternate phrasings of a query (spec.md §4.1). It
// prefers calling an external LLM and falls back to a deterministic
// rule-based generator on timeout, refusal, or authorization failure. A
// single authorization failure permanently downgrades it to rule-based
// generation for the remainder of the process — the core never retries an
// authorization failure.
type Rewriter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	cache   *lru.Cache[string, []string]

	downgraded atomic.Bool
}

// NewRewriter creates an LLM-backed rewriter. An empty apiKey starts the
// rewriter already downgraded to rule-based generation, useful for
// air-gapped or test deployments.
func NewRewriter(apiKey, model string) *Rewriter {
	if model == "" {
		model = DefaultRewriteModel
	}
	cache, _ := lru.New[string, []string](DefaultRewriteCacheSize)
	r := &Rewriter{model: model, timeout: DefaultRewriteTimeout, cache: cache}
	if apiKey == "" {
		r.downgraded.Store(true)
		return r
	}
	r.client = openai.NewClient(apiKey)
	return r
}

// Downgraded reports whether the rewriter has permanently fallen back to
// rule-based generation for this process.
func (r *Rewriter) Downgraded() bool {
	return r.downgraded.Load()
}

// Rewrite returns exactly n alternate phrasings of normalizedQuery — always
// including normalizedQuery itself as rewrite #1 — plus the trace step name
// describing which path produced them ("rewriter_llm", "rewriter_fallback",
// "rewriter_auth_denied", or "rewriter_cache_hit").
func (r *Rewriter) Rewrite(ctx context.Context, normalizedQuery string, n int) ([]string, string) {
	if n <= 0 {
		n = 1
	}
	cacheKey := fmt.Sprintf("%d:%s", n, normalizedQuery)
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached, "rewriter_cache_hit"
	}

	if !r.downgraded.Load() {
		rewrites, err := r.rewriteViaLLM(ctx, normalizedQuery, n)
		if err == nil {
			r.cache.Add(cacheKey, rewrites)
			return rewrites, "rewriter_llm"
		}

		step := "rewriter_fallback"
		if rerrors.IsCategory(err, rerrors.CategoryAuthorizationDenied) {
			step = "rewriter_auth_denied"
			r.downgraded.Store(true)
		}
		rewrites = r.rewriteViaRules(normalizedQuery, n)
		r.cache.Add(cacheKey, rewrites)
		return rewrites, step
	}

	rewrites := r.rewriteViaRules(normalizedQuery, n)
	r.cache.Add(cacheKey, rewrites)
	return rewrites, "rewriter_fallback"
}

func (r *Rewriter) rewriteViaLLM(ctx context.Context, query string, n int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := fmt.Sprintf(rewritePromptTemplate, n, query)
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, classifyLLMError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, rerrors.New(rerrors.CategoryDependencyTimeout, "rewriter", "llm returned no choices")
	}

	rewrites := []string{query}
	seen := map[string]bool{query: true}
	for _, line := range strings.Split(resp.Choices[0].Message.Content, "\n") {
		line = strings.TrimSpace(numberingPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		rewrites = append(rewrites, line)
		if len(rewrites) >= n {
			break
		}
	}
	return padRewrites(rewrites, query, n), nil
}

// classifyLLMError maps a go-openai client error onto the rewriter's three
// documented failure modes (spec.md §5's LLM contract): Unauthorized,
// Timeout, Refused.
func classifyLLMError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return rerrors.Wrap(rerrors.CategoryDependencyTimeout, "rewriter", "llm rewrite timed out", err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return rerrors.Wrap(rerrors.CategoryAuthorizationDenied, "rewriter", "llm rewrite unauthorized", err)
		}
	}
	return rerrors.Wrap(rerrors.CategoryDependencyTimeout, "rewriter", "llm rewrite refused", err)
}

// ruleSynonyms is the fixed domain lexicon the fallback generator substitutes
// from when the LLM path is unavailable.
var ruleSynonyms = map[string]string{
	"scheme":     "yojana",
	"department": "directorate",
	"section":    "clause",
	"order":      "notification",
	"policy":     "guideline",
	"act":        "statute",
	"rule":       "regulation",
	"benefit":    "entitlement",
	"eligibility": "qualification",
}

// rewriteViaRules deterministically substitutes synonyms from the fixed
// domain lexicon and emits morphological variants, always returning exactly
// n rewrites with normalizedQuery first.
func (r *Rewriter) rewriteViaRules(query string, n int) []string {
	rewrites := []string{query}
	words := strings.Fields(query)

	for i, w := range words {
		if len(rewrites) >= n {
			break
		}
		if syn, ok := ruleSynonyms[w]; ok {
			variant := append([]string{}, words...)
			variant[i] = syn
			rewrites = appendUniqueRewrite(rewrites, strings.Join(variant, " "))
		}
	}

	if len(rewrites) < n && len(words) > 0 {
		last := words[len(words)-1]
		if !strings.HasSuffix(last, "s") {
			variant := append([]string{}, words[:len(words)-1]...)
			variant = append(variant, last+"s")
			rewrites = appendUniqueRewrite(rewrites, strings.Join(variant, " "))
		}
	}

	if len(rewrites) < n && !strings.HasPrefix(query, "what is") {
		rewrites = appendUniqueRewrite(rewrites, "what is "+query)
	}

	return padRewrites(rewrites, query, n)
}

func appendUniqueRewrite(list []string, candidate string) []string {
	for _, existing := range list {
		if existing == candidate {
			return list
		}
	}
	return append(list, candidate)
}

// padRewrites ensures exactly n rewrites are returned, repeating the
// original query when the generator runs out of distinct candidates — the
// executor's per-rewrite fan-out assumes exactly plan.Rewrites entries.
func padRewrites(rewrites []string, original string, n int) []string {
	for len(rewrites) < n {
		rewrites = append(rewrites, original)
	}
	return rewrites[:n]
}
