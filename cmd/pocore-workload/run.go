package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/pocore-go/pocore/mem"
)

var runOpts struct {
	stdSize        int
	pools          int
	allocsPerPool  int
	minAllocSize   int
	maxAllocSize   int
	coalesce       bool
	trackUnhandled bool
	joinErrors     bool
	seed           int64
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Allocate and free from a tree of pools, then report what happened",
	RunE:  runWorkload,
}

func init() {
	flags := runCmd.Flags()
	flags.IntVar(&runOpts.stdSize, "std-size", mem.DefaultStdSize, "standard block size")
	flags.IntVar(&runOpts.pools, "pools", 8, "number of child pools to create under the root pool")
	flags.IntVar(&runOpts.allocsPerPool, "allocs-per-pool", 32, "allocations performed in each pool")
	flags.IntVar(&runOpts.minAllocSize, "min-alloc", 16, "smallest allocation size")
	flags.IntVar(&runOpts.maxAllocSize, "max-alloc", 512, "largest allocation size")
	flags.BoolVar(&runOpts.coalesce, "coalesce", false, "create coalescing pools and free with FreeMemAuto")
	flags.BoolVar(&runOpts.trackUnhandled, "track-unhandled", true, "track unhandled errors on the context")
	flags.BoolVar(&runOpts.joinErrors, "join-errors", false, "join one synthetic error per pool instead of handling it immediately")
	flags.Int64Var(&runOpts.seed, "seed", 1, "random seed for allocation sizes")
}

type workloadResult struct {
	PoolsCreated           int `json:"pools_created"`
	AllocationsPerformed   int `json:"allocations_performed"`
	BytesRequested         int `json:"bytes_requested"`
	NonStandardAllocations int `json:"non_standard_allocations"`
	UnhandledErrorsAtExit  int `json:"unhandled_errors_at_exit"`
}

func runWorkload(cmd *cobra.Command, args []string) error {
	if runOpts.minAllocSize <= 0 || runOpts.maxAllocSize < runOpts.minAllocSize {
		return fmt.Errorf("invalid allocation size range [%d, %d]", runOpts.minAllocSize, runOpts.maxAllocSize)
	}

	ctx := mem.NewContext(
		mem.WithStdSize(runOpts.stdSize),
		mem.WithTrackUnhandled(runOpts.trackUnhandled),
		mem.WithLogger(log),
	)
	defer ctx.Destroy()

	root := mem.NewRootPool(ctx)
	if root == nil {
		return fmt.Errorf("failed to create root pool")
	}
	defer root.Destroy()

	rng := rand.New(rand.NewSource(runOpts.seed))
	result := workloadResult{PoolsCreated: runOpts.pools}
	var joined *mem.Error

	for i := 0; i < runOpts.pools; i++ {
		var pool *mem.Pool
		if runOpts.coalesce {
			pool = mem.NewCoalescingPool(root)
		} else {
			pool = mem.NewPool(root)
		}
		if pool == nil {
			return fmt.Errorf("failed to create pool %d", i)
		}

		for j := 0; j < runOpts.allocsPerPool; j++ {
			size := runOpts.minAllocSize + rng.Intn(runOpts.maxAllocSize-runOpts.minAllocSize+1)
			buf := pool.Alloc(size)
			if buf == nil {
				return fmt.Errorf("allocation of %d bytes failed in pool %d", size, i)
			}
			result.AllocationsPerformed++
			result.BytesRequested += size
			if size > runOpts.stdSize {
				result.NonStandardAllocations++
			}
			if runOpts.coalesce {
				pool.FreeMemAuto(buf)
			}
		}

		log.Debug("pool finished", "pool", i, "coalesce", runOpts.coalesce)

		syntheticErr := ctx.NewErrorf(mem.Code(i+1), "pool %d finished its workload", i)
		if runOpts.joinErrors {
			joined = mem.Join(joined, syntheticErr)
		} else {
			syntheticErr.Handled()
		}
	}

	if joined != nil {
		joined.Handled()
	}

	result.UnhandledErrorsAtExit = ctx.UnhandledCount()
	return printResult(result)
}

func printResult(result workloadResult) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Printf("pools created:            %d\n", result.PoolsCreated)
	fmt.Printf("allocations performed:    %d\n", result.AllocationsPerformed)
	fmt.Printf("bytes requested:          %d\n", result.BytesRequested)
	fmt.Printf("non-standard allocations: %d\n", result.NonStandardAllocations)
	fmt.Printf("unhandled errors at exit: %d\n", result.UnhandledErrorsAtExit)
	return nil
}
