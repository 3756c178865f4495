package main

import (
	"context"
	"fmt"
	"os"

	"github.com/eringen/pubrender"
	"github.com/eringen/pubrender/config"
	"github.com/eringen/pubrender/engine"
	"github.com/eringen/pubrender/publication"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cfg := mustLoad(configArg(2))
		if err := pubrender.New(cfg).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "render":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pubrender render <id> [site.yaml]")
			os.Exit(1)
		}
		os.Exit(runRender(os.Args[2], mustLoad(configArg(3))))
	case "check":
		if err := runCheck(mustLoad(configArg(2))); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ok")
	case "new":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: pubrender new <dir>")
			os.Exit(1)
		}
		if err := runNew(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("pubrender %s\n", pubrender.Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func configArg(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return config.DefaultFile
}

func mustLoad(path string) config.SiteConfig {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// runRender writes one rendered publication to stdout and returns the
// process exit code.
func runRender(id string, cfg config.SiteConfig) int {
	app := pubrender.New(cfg)
	app.Logger.SetOutput(os.Stderr)
	if err := app.Setup(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	out := app.Controller.Render(context.Background(), id)
	switch out.Status {
	case engine.StatusOK:
		fmt.Print(out.HTML)
		return 0
	case engine.StatusNotFound:
		fmt.Print(out.HTML)
		fmt.Fprintf(os.Stderr, "%s: not found\n", id)
		return 2
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", out.Err)
		return 1
	}
}

func runCheck(cfg config.SiteConfig) error {
	list, err := publication.Read(cfg.ManifestPath())
	if err != nil {
		return err
	}
	if err := list.Validate(cfg.Scenes); err != nil {
		return err
	}
	fmt.Printf("%d publications, %d posts, %d scenes\n",
		len(list), len(list.Posts(publication.Filter{})), len(cfg.Scenes))
	return nil
}

func printUsage() {
	fmt.Println(`pubrender - Render-on-request publishing server

Usage:
  pubrender <command> [arguments]

Commands:
  serve [site.yaml]         Serve the site
  render <id> [site.yaml]   Render one publication to stdout
  check [site.yaml]         Validate the configuration and manifest
  new <dir>                 Create a new site
  version                   Print the pubrender version
  help                      Show this help message

Examples:
  pubrender new mysite
  pubrender serve mysite/site.yaml
  pubrender render root`)
}
