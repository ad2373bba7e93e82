// Command piddie-sync runs the file synchronization engine against a
// set of local directories: one primary and any number of secondaries.
package main

func main() {
	Execute()
}
