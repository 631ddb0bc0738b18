// Command somactl records and reviews body measurements from the terminal,
// either in a local snapshot store or against a soma server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"soma/internal/adapter/remote"
)

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "somactl:", err)
		if errors.Is(err, remote.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "not logged in or session expired; run `somactl login <username>`")
		}
		os.Exit(1)
	}
}
