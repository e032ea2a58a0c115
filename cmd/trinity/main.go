package main

import (
	"log"
	"os"

	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "trinity"
	app.HelpName = os.Args[0]
	app.Usage = "full-text search engine"
	app.HideVersion = true
	app.Commands = []cli.Command{
		indexCommand,
		searchCommand,
		serverCommand,
	}
	app.Before = func(ctx *cli.Context) error {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		return nil
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
