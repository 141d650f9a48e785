// Command pocore-workload drives the mem package with configurable
// allocation workloads, for manual exercise and benchmarking of the pool
// tree, the non-standard-block cache, and the error-chaining API.
package main

func main() {
	execute()
}
