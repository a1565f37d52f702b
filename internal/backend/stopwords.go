package backend

// englishStopWords is the built-in stop-word list the lexical backend
// uses when the configuration does not supply a custom one.
var englishStopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am",
	"an", "and", "any", "are", "as", "at", "be", "because", "been",
	"before", "being", "below", "between", "both", "but", "by", "can",
	"did", "do", "does", "doing", "down", "during", "each", "few",
	"for", "from", "further", "had", "has", "have", "having", "he",
	"her", "here", "hers", "him", "his", "how", "i", "if", "in",
	"into", "is", "it", "its", "just", "me", "more", "most", "my",
	"no", "nor", "not", "now", "of", "off", "on", "once", "only",
	"or", "other", "our", "ours", "out", "over", "own", "same", "she",
	"so", "some", "such", "than", "that", "the", "their", "theirs",
	"them", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was",
	"we", "were", "what", "when", "where", "which", "while", "who",
	"whom", "why", "will", "with", "you", "your", "yours",
}

// buildStopWordSet builds the lookup set, falling back to the English
// list when no custom words are configured.
func buildStopWordSet(custom []string) map[string]struct{} {
	words := custom
	if words == nil {
		words = englishStopWords
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// filterStopWords drops stop words from an already-lowercased token list.
func filterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, isStop := stopWords[tok]; !isStop {
			kept = append(kept, tok)
		}
	}
	return kept
}
