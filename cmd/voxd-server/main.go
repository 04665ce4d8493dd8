package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"voxd-server/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to built-in defaults)")
	flag.Parse()

	result := bootstrap.Run(context.Background(), *configPath)
	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "voxd-server: %v\n", result.Err)
	}
	os.Exit(int(result.Code))
}
