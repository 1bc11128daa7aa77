package types

// DictionaryItem is a codec or format option, e.g. {Key: "preset", Value: "fast"}.
type DictionaryItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type DictionaryItems []DictionaryItem

// Deduplicate keeps only the last item of every key, ordered by the
// position of that last item.
func (s DictionaryItems) Deduplicate() DictionaryItems {
	if s == nil {
		return nil
	}
	last := make(map[string]int, len(s))
	for idx, item := range s {
		last[item.Key] = idx
	}
	result := make(DictionaryItems, 0, len(last))
	for idx, item := range s {
		if last[item.Key] == idx {
			result = append(result, item)
		}
	}
	return result
}
