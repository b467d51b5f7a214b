//go:build ignore

// Generates a small synthetic snapshot directory for local-mode
// development and benchmarking.
// Usage: go run scripts/generate-test-corpus.go -docs 500 -dims 64 -output testdata/snapshot
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numDocs   = flag.Int("docs", 500, "Documents per collection")
	dims      = flag.Int("dims", 64, "Embedding dimensions")
	outputDir = flag.String("output", "testdata/snapshot", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Word pool for synthetic Arabic text. Real relevance does not matter;
// the generator only has to produce tokenizable text with repeated terms
// so keyword search returns overlapping hit sets.
var words = []string{
	"الرحمة", "الصبر", "العلم", "الحكمة", "العدل", "التوبة",
	"الشكر", "الدعاء", "الصلاة", "الصيام", "الزكاة", "الإخلاص",
	"القلب", "النية", "الخير", "البر", "التقوى", "اليقين",
}

type line struct {
	Key       string          `json:"key"`
	Text      string          `json:"text"`
	Payload   json.RawMessage `json:"payload"`
	Embedding []float32       `json:"embedding"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fatal(err)
	}

	collections := map[string]func(i int, text string) (string, any){
		"passages": func(i int, text string) (string, any) {
			book, page := int64(1+i/50), 1+i%50
			return fmt.Sprintf("%d:%d", book, page),
				map[string]any{"book_id": book, "page_number": page, "text": text}
		},
		"verses": func(i int, text string) (string, any) {
			book, verse := 1+i/100, 1+i%100
			return fmt.Sprintf("%d:%d", book, verse),
				map[string]any{"book_number": book, "verse_number": verse, "text": text}
		},
		"narrations": func(i int, text string) (string, any) {
			col, num := int64(1+i/200), 1+i%200
			return fmt.Sprintf("%d:%d", col, num),
				map[string]any{"collection_id": col, "narration_number": num, "text": text}
		},
	}

	for name, shape := range collections {
		if err := writeCollection(rng, name, shape); err != nil {
			fatal(err)
		}
	}
	fmt.Printf("Wrote 3 collections x %d documents to %s\n", *numDocs, *outputDir)
}

func writeCollection(rng *rand.Rand, name string, shape func(int, string) (string, any)) error {
	f, err := os.Create(filepath.Join(*outputDir, name+".jsonl"))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := 0; i < *numDocs; i++ {
		text := sentence(rng, 6+rng.Intn(20))
		key, payload := shape(i, text)
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := enc.Encode(line{Key: key, Text: text, Payload: raw, Embedding: vector(rng)}); err != nil {
			return err
		}
	}
	return nil
}

func sentence(rng *rand.Rand, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += " "
		}
		out += words[rng.Intn(len(words))]
	}
	return out
}

func vector(rng *rand.Rand) []float32 {
	v := make([]float32, *dims)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
