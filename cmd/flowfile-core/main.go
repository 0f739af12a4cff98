// Flowfile core server: the §6 HTTP surface around the DAG execution engine.
package main

import (
	"log"
	"os"

	"github.com/smilemakc/flowfile/pkg/server"
)

func main() {
	srv, err := server.New()
	if err != nil {
		log.Fatalf("flowfile-core: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Printf("flowfile-core: %v", err)
		os.Exit(1)
	}
}
