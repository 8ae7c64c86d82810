// Command remem-stats drives a small allocation workload through a
// Collector and prints its DebugStats summary, exercising the public
// facade end to end outside of the test suite.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/jonahmer22/ReMem"
)

func main() {
	freeEmptyPages := false
	for _, arg := range os.Args[1:] {
		if arg == "-free" {
			freeEmptyPages = true
		}
	}

	var stackTop int
	g, err := remem.Init(unsafe.Pointer(&stackTop), freeEmptyPages)
	if err != nil {
		fmt.Fprintln(os.Stderr, "remem-stats:", err)
		os.Exit(1)
	}
	defer g.Destroy()

	sizes := []uintptr{16, 24, 32, 40, 48, 64, 80, 96, 128, 256, 512, 1024, 2048}

	var kept unsafe.Pointer
	kept = g.Alloc(64)
	remem.Root(g, &kept)

	for round := 0; round < 8; round++ {
		for _, n := range sizes {
			for i := 0; i < 64; i++ {
				_ = g.Alloc(n)
			}
		}
		g.Collect()
		fmt.Println(g.DebugStats())
	}

	remem.Unroot(g, &kept)
}
