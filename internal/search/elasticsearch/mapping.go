package elasticsearch

// DefaultIndexName is the index holding tour documents.
const DefaultIndexName = "natours_tours"

// indexMapping analyzes names for autocomplete as well as full words, and
// keeps every filter and sort field as a keyword or number.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase", "asciifolding"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":              { "type": "keyword" },
      "name":            { "type": "text", "analyzer": "english", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "slug":            { "type": "keyword" },
      "summary":         { "type": "text", "analyzer": "english" },
      "description":     { "type": "text", "analyzer": "english" },
      "difficulty":      { "type": "keyword" },
      "duration":        { "type": "integer" },
      "price":           { "type": "double" },
      "ratingsAverage":  { "type": "double" },
      "ratingsQuantity": { "type": "integer" },
      "imageCover":      { "type": "keyword", "index": false },
      "createdAt":       { "type": "date" }
    }
  }
}`
