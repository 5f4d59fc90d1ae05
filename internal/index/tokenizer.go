package index

import "github.com/robfisher/mailshare/internal/textutil"

// Tokenize splits text into the words the index is keyed by.
func Tokenize(s string) []string {
	return textutil.Words(s)
}

func uniqueTokens(s string) []string {
	tokens := Tokenize(s)
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
