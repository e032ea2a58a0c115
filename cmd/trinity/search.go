package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"

	"github.com/andy-wagner/Trinity/exec"
	"github.com/andy-wagner/Trinity/index"
	"github.com/andy-wagner/Trinity/postings"
	"github.com/andy-wagner/Trinity/query"
	"github.com/andy-wagner/Trinity/util/vfs"
)

var searchCommand = cli.Command{
	Name:      "search",
	Usage:     "Runs a query against one or more segments",
	ArgsUsage: "query...",
	Flags: []cli.Flag{
		cli.StringSliceFlag{Name: "path, p", Usage: "segment directory, may repeat"},
		cli.IntFlag{Name: "limit, n", Value: 0, Usage: "stop after this many matches per segment"},
	},
	Action: runSearch,
}

type printFilter struct {
	mu      *sync.Mutex
	segment string
	limit   int
	matched int
}

func (f *printFilter) Consider(doc *index.MatchedDocument, dws *index.DocWordsSpace) index.ConsiderResponse {
	f.mu.Lock()
	var terms []string
	for _, mt := range doc.Terms {
		terms = append(terms, mt.Instances.Token)
	}
	fmt.Printf("%s\t%d\t%s\n", f.segment, doc.ID, strings.Join(terms, " "))
	f.mu.Unlock()

	f.matched++
	if f.limit > 0 && f.matched >= f.limit {
		return index.Abort
	}
	return index.Continue
}

func runSearch(c *cli.Context) error {
	paths := c.StringSlice("path")
	if len(paths) == 0 {
		return errors.New("no segment directory specified")
	}
	input := strings.Join(c.Args(), " ")
	if input == "" {
		return errors.New("no query given")
	}

	q, err := query.Parse(input)
	if err != nil {
		return errors.Wrap(err, "failed to parse the query")
	}

	// Each segment runs in its own goroutine with its own runtime
	// context; the segments themselves are immutable and shared.
	var mu sync.Mutex
	var g errgroup.Group
	for _, path := range paths {
		path := path
		g.Go(func() error {
			fs, err := vfs.OpenDir(path, false)
			if err != nil {
				return errors.Wrapf(err, "failed to open segment %v", path)
			}
			defer fs.Close()

			segment, err := postings.Open(fs)
			if err != nil {
				return errors.Wrapf(err, "failed to open segment %v", path)
			}
			defer segment.Close()

			filter := &printFilter{mu: &mu, segment: path, limit: c.Int("limit")}
			return exec.Exec(q, segment, nil, filter)
		})
	}
	return g.Wait()
}
