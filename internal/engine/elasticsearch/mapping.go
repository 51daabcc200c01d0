package elasticsearch

import "github.com/gmaxsoft/elasticsearch-project/internal/domain"

// DefaultIndexName is the index product documents live in.
const DefaultIndexName = "products"

// autocompleteSubfield is the edge n-gram subfield queried for prefix matches.
const autocompleteSubfield = "autocomplete"

// prefixFields maps fields to their edge n-gram subfield. Fields without one
// are queried as they are.
func prefixFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case domain.FieldTitle, domain.FieldCategory:
			out = append(out, f+"."+autocompleteSubfield)
		default:
			out = append(out, f)
		}
	}
	return out
}

// buildIndexMapping returns the JSON mapping for the products index. Text
// fields fold diacritics so "zolty" matches "żółty".
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "folding": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        },
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 1,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":          { "type": "keyword" },
      "title":       { "type": "text", "analyzer": "folding", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "folding" } } },
      "description": { "type": "text", "analyzer": "folding" },
      "category":    { "type": "text", "analyzer": "folding", "fields": { "keyword": { "type": "keyword" }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "folding" } } },
      "price":       { "type": "scaled_float", "scaling_factor": 100 },
      "quantity":    { "type": "integer" }
    }
  }
}`
}
