package main

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/andy-wagner/Trinity/postings"
	"github.com/andy-wagner/Trinity/util/vfs"
)

var indexCommand = cli.Command{
	Name:      "index",
	Usage:     "Builds a segment from a JSON-lines document file",
	ArgsUsage: "[file]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "path, p", Usage: "segment directory to write"},
	},
	Action: runIndex,
}

type inputDocument struct {
	ID   uint32 `json:"id"`
	Text string `json:"text"`
}

// tokenize lowercases the text and splits it on anything that is not a
// letter or digit. Token positions are 1-based; the codec reserves
// position 0.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func indexDocuments(w *postings.SegmentWriter, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	n, lineNo := 0, 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var doc inputDocument
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return n, errors.Wrapf(err, "invalid document on line %d", lineNo)
		}
		if doc.ID == 0 {
			return n, errors.Errorf("document on line %d has no id", lineNo)
		}
		for i, token := range tokenize(doc.Text) {
			w.Add(doc.ID, token, uint16(i+1), nil)
		}
		n++
	}
	return n, scanner.Err()
}

func runIndex(c *cli.Context) error {
	path := c.String("path")
	if path == "" {
		return errors.New("no segment directory specified")
	}

	input := io.Reader(os.Stdin)
	if name := c.Args().First(); name != "" {
		file, err := os.Open(name)
		if err != nil {
			return errors.Wrap(err, "failed to open the document file")
		}
		defer file.Close()
		input = file
	}

	w := postings.NewSegmentWriter()
	n, err := indexDocuments(w, input)
	if err != nil {
		return err
	}
	log.Printf("indexed %v documents", n)

	fs, err := vfs.OpenDir(path, true)
	if err != nil {
		return errors.Wrap(err, "failed to open the segment directory")
	}
	defer fs.Close()

	segment, err := w.Write(fs)
	if err != nil {
		return errors.Wrap(err, "failed to write the segment")
	}
	return segment.Close()
}
