package main

import (
	"context"
	"fmt"
	"os"

	"github.com/osamaflash/catalog/cmd/api/commands"
)

// @title Catalog API
// @version 1.0
// @description File download catalog: items, download counters, ratings and site configuration.

// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the token returned by login.

func main() {
	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
