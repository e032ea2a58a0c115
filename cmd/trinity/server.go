package main

import (
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/andy-wagner/Trinity/postings"
	"github.com/andy-wagner/Trinity/server"
	"github.com/andy-wagner/Trinity/util/vfs"
)

var serverCommand = cli.Command{
	Name:  "server",
	Usage: "Serves a segment over HTTP",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML config file"},
		cli.StringFlag{Name: "listen, l", Usage: "address on which to listen"},
		cli.StringFlag{Name: "path, p", Usage: "segment directory to serve"},
	},
	Action: runServer,
}

func runServer(c *cli.Context) error {
	cfg := server.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = server.LoadConfig(path)
		if err != nil {
			return err
		}
	}
	if listen := c.String("listen"); listen != "" {
		cfg.Listen = listen
	}
	if path := c.String("path"); path != "" {
		cfg.IndexPath = path
	}
	if cfg.IndexPath == "" {
		return errors.New("no segment directory specified")
	}

	fs, err := vfs.OpenDir(cfg.IndexPath, false)
	if err != nil {
		return errors.Wrap(err, "failed to open the segment directory")
	}
	defer fs.Close()

	segment, err := postings.Open(fs)
	if err != nil {
		return errors.Wrap(err, "failed to open the segment")
	}
	defer segment.Close()

	return server.NewServer(segment, nil, cfg).ListenAndServe()
}
