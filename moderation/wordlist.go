package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed wordlists/*.txt
var wordlistFS embed.FS

// Wordlist carries the loaded dictionary plus metadata for logging.
type Wordlist struct {
	Words     []string
	Languages []string
}

// LoadWordlists reads every embedded .txt dictionary, one word per line,
// named after its language ("en.txt" -> "en"). Duplicates across languages
// collapse into a single entry.
func LoadWordlists() (Wordlist, error) {
	entries, err := fs.ReadDir(wordlistFS, "wordlists")
	if err != nil {
		return Wordlist{}, err
	}

	var languages []string
	unique := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := wordlistFS.ReadFile("wordlists/" + entry.Name())
		if err != nil {
			return Wordlist{}, err
		}

		// A scanner handles both \n and \r\n endings.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			unique[strings.ToLower(word)] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return Wordlist{}, err
		}
	}

	words := make([]string, 0, len(unique))
	for word := range unique {
		words = append(words, word)
	}
	sort.Strings(words)
	return Wordlist{Words: words, Languages: languages}, nil
}
